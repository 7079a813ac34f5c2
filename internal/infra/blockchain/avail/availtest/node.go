// Package availtest provides a fake Avail node that completes the connection
// handshake, for tests of packages built on avail.Conn.
package availtest

import (
	"encoding/json"
	"testing"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/transport/wsrpc/wsrpctest"
	"github.com/gabapcia/availkit/internal/pkg/types"
)

// ChainName is what the node answers to system_chain.
const ChainName = "Avail Testnet 03"

// GenesisHash is the node's block 0 hash.
var GenesisHash = types.H256{0x11, 0x11, 0x11, 0x11}

// Metadata mirrors the Avail runtime closely enough to build transfers.
// Pass it with avail.WithMetadata so the node does not need to serve
// state_getMetadata.
var Metadata avail.Metadata = avail.NewStaticMetadata(
	map[string]avail.CallIndex{
		"Balances.transfer_keep_alive":  {Section: 6, Method: 3},
		"Balances.transfer_allow_death": {Section: 6, Method: 0},
	},
	avail.AvailSignedExtensions,
)

// NewNode starts a fake node answering the handshake, system_chain and
// rpc_methods. Tests add the handlers they need on the returned server.
func NewNode(t testing.TB) *wsrpctest.Server {
	t.Helper()

	srv := wsrpctest.NewServer(t)
	srv.Handle("chain_getBlockHash", func(params []json.RawMessage) (any, error) {
		if len(params) == 1 && string(params[0]) == "0" {
			return GenesisHash, nil
		}
		return nil, nil
	})
	srv.HandleResult("state_getRuntimeVersion", avail.RuntimeVersion{
		SpecName:           "avail",
		ImplName:           "avail",
		SpecVersion:        37,
		TransactionVersion: 1,
	})
	srv.HandleResult("rpc_methods", map[string]any{
		"version": 1,
		"methods": []string{
			"system_chain",
			"system_accountNextIndex",
			"chain_getHeader",
			"author_submitExtrinsic",
			"author_submitAndWatchExtrinsic",
			avail.MethodBlockLength,
			avail.MethodQueryProof,
			avail.MethodQueryDataProof,
		},
	})
	srv.HandleResult("system_chain", ChainName)
	return srv
}

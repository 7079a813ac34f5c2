package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/gabapcia/availkit/internal/connection"
	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/infra/blockchain/avail/availtest"
	"github.com/gabapcia/availkit/internal/pkg/resilience/retry"
	"github.com/gabapcia/availkit/internal/pkg/transport/wsrpc/wsrpctest"
	"github.com/gabapcia/availkit/internal/pkg/types"
	"github.com/gabapcia/availkit/internal/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bobAddress = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"

var testHeader = avail.DaHeader{
	ParentHash: types.H256{0x01},
	Number:     42,
	Extension: avail.HeaderExtension{V1: &avail.V1HeaderExtension{
		Commitment: avail.KateCommitment{Rows: 1, Cols: 4, DataRoot: types.H256{0xda}},
	}},
}

// run executes availctl against a fake node and returns what it printed.
func run(t *testing.T, node *wsrpctest.Server, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp(
		connection.New(connection.Networks{connection.Local: node.WebSocketURL()}, connection.WithMetadata(availtest.Metadata)),
		transfer.New(),
		WithOutput(&out),
		WithDefaultNetwork(connection.Local),
		WithRequestTimeout(5*time.Second),
	)

	err := app.Run(t.Context(), append([]string{"availctl"}, args...))
	return out.String(), err
}

func decode(t *testing.T, out string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestRun(t *testing.T) {
	savedArgs := os.Args
	defer func() {
		os.Args = savedArgs
	}()

	t.Run("help", func(t *testing.T) {
		// Arrange
		os.Args = []string{"availctl", "--help"}

		// Act
		err := Run(t.Context(), connection.New(connection.StaticNetworks()), transfer.New(), WithOutput(&bytes.Buffer{}))

		// Assert
		assert.NoError(t, err)
	})

	t.Run("registers every command", func(t *testing.T) {
		app := newApp(connection.New(connection.StaticNetworks()), transfer.New())

		var names []string
		for _, cmd := range app.Commands {
			names = append(names, cmd.Name)
		}
		assert.ElementsMatch(t, []string{
			"chain", "head", "heads", "block", "nonce", "block-length", "query-proof", "data-proof", "transfer",
		}, names)
	})
}

func TestChainCommand(t *testing.T) {
	node := availtest.NewNode(t)
	node.HandleResult("system_name", "Avail Node")
	node.HandleResult("system_version", "2.2.5")

	out, err := run(t, node, "chain")
	require.NoError(t, err)

	var info chainInfo
	decode(t, out, &info)
	assert.Equal(t, availtest.ChainName, info.Chain)
	assert.Equal(t, "Avail Node", info.NodeName)
	assert.Equal(t, "2.2.5", info.NodeVersion)
	assert.Equal(t, availtest.GenesisHash, info.GenesisHash)
	assert.Equal(t, uint32(37), info.SpecVersion)
}

func TestHeadCommand(t *testing.T) {
	wantHash, err := testHeader.Hash()
	require.NoError(t, err)

	t.Run("latest", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult("chain_getHeader", testHeader)

		out, err := run(t, node, "head")
		require.NoError(t, err)

		var got headerSummary
		decode(t, out, &got)
		assert.Equal(t, uint64(42), got.Number)
		assert.Equal(t, wantHash, got.Hash)
		assert.Equal(t, types.H256{0xda}, got.DataRoot)
	})

	t.Run("finalized", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult("chain_getFinalizedHead", types.H256{0xf1})
		node.HandleResult("chain_getHeader", testHeader)

		out, err := run(t, node, "head", "--finalized")
		require.NoError(t, err)

		var got headerSummary
		decode(t, out, &got)
		assert.Equal(t, uint64(42), got.Number)

		calls := node.Calls("chain_getHeader")
		require.Len(t, calls, 1)
		require.Len(t, calls[0], 1)
		assert.JSONEq(t, `"`+types.H256{0xf1}.Hex()+`"`, string(calls[0][0]))
	})
}

func TestBlockCommand(t *testing.T) {
	block := avail.SignedBlock{Block: avail.Block{
		Header:     testHeader,
		Extrinsics: []types.Bytes{{0x28, 0x04, 0x03}, {0x1c, 0x04, 0x00}},
	}}

	t.Run("latest", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult("chain_getBlock", block)

		out, err := run(t, node, "block")
		require.NoError(t, err)

		var got blockOutput
		decode(t, out, &got)
		assert.Equal(t, uint64(42), got.Number)
		assert.Equal(t, 2, got.ExtrinsicCount)
		assert.Equal(t, types.Bytes{0x1c, 0x04, 0x00}, got.Extrinsics[1])

		calls := node.Calls("chain_getBlock")
		require.Len(t, calls, 1)
		assert.Empty(t, calls[0])
	})

	t.Run("at a block", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult("chain_getBlock", block)

		_, err := run(t, node, "block", "--at", types.H256{0xb1}.Hex())
		require.NoError(t, err)

		calls := node.Calls("chain_getBlock")
		require.Len(t, calls, 1)
		require.Len(t, calls[0], 1)
		assert.JSONEq(t, `"`+types.H256{0xb1}.Hex()+`"`, string(calls[0][0]))
	})

	t.Run("malformed block hash", func(t *testing.T) {
		node := availtest.NewNode(t)

		_, err := run(t, node, "block", "--at", "0x12")
		assert.ErrorIs(t, err, ErrInvalidFlag)
		assert.Zero(t, node.CallCount("chain_getBlock"))
	})
}

func TestHeadsCommand(t *testing.T) {
	node := availtest.NewNode(t)
	node.HandleSubscription("chain_subscribeNewHeads", "chain_newHead", func(sink *wsrpctest.Sink, _ []json.RawMessage) {
		for n := 1; n <= 3; n++ {
			h := testHeader
			h.Number = types.HexNumber(n)
			_ = sink.Notify(h)
		}
	})
	node.HandleResult("chain_unsubscribeNewHeads", true)

	out, err := run(t, node, "heads", "--count", "2")
	require.NoError(t, err)

	dec := json.NewDecoder(bytes.NewBufferString(out))
	var numbers []uint64
	for dec.More() {
		var h headerSummary
		require.NoError(t, dec.Decode(&h))
		numbers = append(numbers, h.Number)
	}
	assert.Equal(t, []uint64{1, 2}, numbers)

	assert.Eventually(t, func() bool {
		return node.CallCount("chain_unsubscribeNewHeads") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNonceCommand(t *testing.T) {
	node := availtest.NewNode(t)
	node.HandleResult("system_accountNextIndex", 11)

	out, err := run(t, node, "nonce", "--address", bobAddress)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"`+bobAddress+`","nonce":11}`, out)

	calls := node.Calls("system_accountNextIndex")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `"`+bobAddress+`"`, string(calls[0][0]))
}

func TestKateCommands(t *testing.T) {
	at := types.H256{0xab}

	t.Run("block length at a block", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult(avail.MethodBlockLength, avail.BlockLength{Cols: 256, Rows: 256, ChunkSize: 32})

		out, err := run(t, node, "block-length", "--at", at.Hex())
		require.NoError(t, err)

		var got avail.BlockLength
		decode(t, out, &got)
		assert.Equal(t, uint32(256), got.Cols)

		calls := node.Calls(avail.MethodBlockLength)
		require.Len(t, calls, 1)
		require.Len(t, calls[0], 1)
		assert.JSONEq(t, `"`+at.Hex()+`"`, string(calls[0][0]))
	})

	t.Run("query proof cells", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult(avail.MethodQueryProof, types.Bytes{0x01, 0x02})

		_, err := run(t, node, "query-proof", "--cell", "0:1", "--cell", "2:3")
		require.NoError(t, err)

		calls := node.Calls(avail.MethodQueryProof)
		require.Len(t, calls, 1)
		assert.JSONEq(t, `[{"row":0,"col":1},{"row":2,"col":3}]`, string(calls[0][0]))
	})

	t.Run("malformed cell", func(t *testing.T) {
		node := availtest.NewNode(t)

		_, err := run(t, node, "query-proof", "--cell", "7")
		assert.ErrorIs(t, err, ErrInvalidFlag)
		assert.Zero(t, node.CallCount(avail.MethodQueryProof))
	})

	t.Run("data proof", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult(avail.MethodQueryDataProof, avail.DataProof{NumberOfLeaves: 4, LeafIndex: 2})

		out, err := run(t, node, "data-proof", "--index", "2")
		require.NoError(t, err)

		var got avail.DataProof
		decode(t, out, &got)
		assert.Equal(t, uint32(2), got.LeafIndex)
	})

	t.Run("negative data index", func(t *testing.T) {
		node := availtest.NewNode(t)

		_, err := run(t, node, "data-proof", "--index", "-1")
		assert.ErrorIs(t, err, ErrInvalidFlag)
	})

	t.Run("malformed block hash", func(t *testing.T) {
		node := availtest.NewNode(t)

		_, err := run(t, node, "block-length", "--at", "0x1234")
		assert.ErrorIs(t, err, ErrInvalidFlag)
	})
}

func TestTransferCommand(t *testing.T) {
	t.Run("submits one AVL", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult("system_accountNextIndex", 0)
		node.HandleResult("author_submitExtrinsic", types.H256{0x77})

		out, err := run(t, node, "transfer", "--secret", "//Alice", "--to", bobAddress, "--amount", "1")
		require.NoError(t, err)

		var got submissionOutput
		decode(t, out, &got)
		assert.Equal(t, types.H256{0x77}, got.Hash)
		assert.Equal(t, "1000000000000000000", got.AmountBaseUnits)
		assert.Equal(t, bobAddress, got.Receiver)
	})

	t.Run("secret from the environment", func(t *testing.T) {
		t.Setenv("AVAIL_SECRET", "//Alice")

		node := availtest.NewNode(t)
		node.HandleResult("system_accountNextIndex", 3)
		node.HandleResult("author_submitExtrinsic", types.H256{0x78})

		out, err := run(t, node, "transfer", "--to", bobAddress, "--amount", "2")
		require.NoError(t, err)

		var got submissionOutput
		decode(t, out, &got)
		assert.Equal(t, uint64(3), got.Nonce)
	})

	t.Run("rejected", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult("system_accountNextIndex", 0)
		node.HandleError("author_submitExtrinsic", 1010, "Invalid Transaction")

		_, err := run(t, node, "transfer", "--secret", "//Alice", "--to", bobAddress, "--amount", "1")
		assert.ErrorIs(t, err, transfer.ErrSubmission)
	})

	t.Run("invalid amount", func(t *testing.T) {
		node := availtest.NewNode(t)

		_, err := run(t, node, "transfer", "--secret", "//Alice", "--to", bobAddress, "--amount", "1.5")
		assert.ErrorIs(t, err, transfer.ErrAmountOutOfRange)
	})

	t.Run("watch until finalized", func(t *testing.T) {
		node := availtest.NewNode(t)
		node.HandleResult("system_accountNextIndex", 0)
		node.HandleSubscription("author_submitAndWatchExtrinsic", "author_extrinsicUpdate", func(sink *wsrpctest.Sink, _ []json.RawMessage) {
			_ = sink.Notify("ready")
			_ = sink.Notify(map[string]any{"finalized": types.H256{0x0b}})
		})
		node.HandleResult("author_unwatchExtrinsic", true)

		out, err := run(t, node, "transfer", "--secret", "//Alice", "--to", bobAddress, "--amount", "1", "--watch")
		require.NoError(t, err)

		dec := json.NewDecoder(bytes.NewBufferString(out))
		var sub submissionOutput
		require.NoError(t, dec.Decode(&sub))
		assert.Equal(t, bobAddress, sub.Receiver)

		var statuses []avail.ExtrinsicStatus
		for dec.More() {
			var s avail.ExtrinsicStatus
			require.NoError(t, dec.Decode(&s))
			statuses = append(statuses, s)
		}
		require.Len(t, statuses, 2)
		assert.Equal(t, avail.StatusReady, statuses[0].Kind)
		assert.Equal(t, avail.StatusFinalized, statuses[1].Kind)
	})
}

// countingService counts Connect calls.
type countingService struct {
	connection.Service
	calls int
}

func (s *countingService) Connect(ctx context.Context, selector string) (*avail.Conn, error) {
	s.calls++
	return s.Service.Connect(ctx, selector)
}

func TestConnectRetry(t *testing.T) {
	node := wsrpctest.NewServer(t)
	endpoint := node.WebSocketURL()
	node.Close()

	t.Run("transient failures are retried", func(t *testing.T) {
		conns := &countingService{Service: connection.New(connection.StaticNetworks(), connection.WithDialTimeout(time.Second))}
		app := newApp(conns, transfer.New(),
			WithOutput(&bytes.Buffer{}),
			WithConnectRetry(retry.New(
				retry.WithAttempts(3),
				retry.WithDelay(time.Millisecond),
				retry.WithRetryIf(connection.IsTransient),
			)),
		)

		err := app.Run(context.Background(), []string{"availctl", "--network", endpoint, "chain"})

		assert.ErrorIs(t, err, connection.ErrConnection)
		assert.Equal(t, 3, conns.calls)
	})

	t.Run("configuration errors are not", func(t *testing.T) {
		conns := &countingService{Service: connection.New(connection.StaticNetworks())}
		app := newApp(conns, transfer.New(),
			WithOutput(&bytes.Buffer{}),
			WithConnectRetry(retry.New(
				retry.WithAttempts(3),
				retry.WithDelay(time.Millisecond),
				retry.WithRetryIf(connection.IsTransient),
			)),
		)

		err := app.Run(context.Background(), []string{"availctl", "--network", "ftp://127.0.0.1:1", "chain"})

		assert.ErrorIs(t, err, connection.ErrUnsupportedScheme)
		assert.Equal(t, 1, conns.calls)
	})
}

func TestParseCell(t *testing.T) {
	cell, err := parseCell(" 4 : 9 ")
	require.NoError(t, err)
	assert.Equal(t, avail.Cell{Row: 4, Col: 9}, cell)

	for _, in := range []string{"", "1", "a:1", "1:-1", "4294967296:0"} {
		_, err := parseCell(in)
		assert.ErrorIs(t, err, ErrInvalidFlag, in)
	}
}

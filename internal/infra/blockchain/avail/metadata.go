package avail

import (
	"fmt"

	gsrpctypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// CallIndex locates a call in the runtime: pallet index and call index.
type CallIndex struct {
	Section uint8
	Method  uint8
}

// Metadata is the part of the runtime metadata needed to build extrinsics.
type Metadata interface {
	// CallIndex resolves a call named "Pallet.call", e.g. "Balances.transfer".
	CallIndex(name string) (CallIndex, error)

	// SignedExtensions lists the runtime's signed extension identifiers in
	// the order they are encoded.
	SignedExtensions() []string
}

type runtimeMetadata struct {
	meta *gsrpctypes.Metadata
}

var _ Metadata = (*runtimeMetadata)(nil)

// DecodeMetadata decodes the hex result of state_getMetadata. Only V14
// metadata describes signed extensions and is accepted.
func DecodeMetadata(hexMetadata string) (*runtimeMetadata, error) {
	var meta gsrpctypes.Metadata
	if err := codec.DecodeFromHex(hexMetadata, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrDecode, err)
	}

	if meta.Version != 14 {
		return nil, fmt.Errorf("%w: unsupported metadata version %d", ErrSchemaMismatch, meta.Version)
	}

	return &runtimeMetadata{meta: &meta}, nil
}

func (m *runtimeMetadata) CallIndex(name string) (CallIndex, error) {
	idx, err := m.meta.FindCallIndex(name)
	if err != nil {
		return CallIndex{}, fmt.Errorf("%w: %w", ErrCallNotFound, err)
	}
	return CallIndex{Section: idx.SectionIndex, Method: idx.MethodIndex}, nil
}

func (m *runtimeMetadata) SignedExtensions() []string {
	exts := m.meta.AsMetadataV14.Extrinsic.SignedExtensions

	names := make([]string, len(exts))
	for i, ext := range exts {
		names[i] = string(ext.Identifier)
	}
	return names
}

type staticMetadata struct {
	calls      map[string]CallIndex
	extensions []string
}

// NewStaticMetadata builds Metadata from known values, for nodes whose
// runtime is pinned or for tests.
func NewStaticMetadata(calls map[string]CallIndex, signedExtensions []string) *staticMetadata {
	return &staticMetadata{calls: calls, extensions: signedExtensions}
}

func (m *staticMetadata) CallIndex(name string) (CallIndex, error) {
	idx, ok := m.calls[name]
	if !ok {
		return CallIndex{}, fmt.Errorf("%w: %s", ErrCallNotFound, name)
	}
	return idx, nil
}

func (m *staticMetadata) SignedExtensions() []string {
	return m.extensions
}

// AvailSignedExtensions is the signed extension order of the Avail runtime.
var AvailSignedExtensions = []string{
	"CheckNonZeroSender",
	"CheckSpecVersion",
	"CheckTxVersion",
	"CheckGenesis",
	"CheckMortality",
	"CheckNonce",
	"CheckWeight",
	"ChargeTransactionPayment",
	"CheckAppId",
}

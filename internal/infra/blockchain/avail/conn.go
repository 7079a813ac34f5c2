// Package avail is a typed client for Avail data availability nodes. It
// registers the chain's custom RPC methods and types (see Schema) on top of
// a JSON-RPC transport and signs extrinsics carrying the CheckAppId signed
// extension.
package avail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/ss58"
	"github.com/gabapcia/availkit/internal/pkg/transport/wsrpc"
	"github.com/gabapcia/availkit/internal/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrDisconnected is returned by every operation after Disconnect.
	ErrDisconnected = errors.New("connection is disconnected")

	// ErrMethodUnavailable is returned when calling a custom RPC method the
	// node did not advertise.
	ErrMethodUnavailable = errors.New("rpc method not available on node")

	// ErrSchemaMismatch is returned when the node runtime does not match the
	// types and signed extensions this package encodes.
	ErrSchemaMismatch = errors.New("runtime does not match the avail schema")

	// ErrSubscriptionsUnsupported is returned by subscription operations on a
	// transport without server push (HTTP).
	ErrSubscriptionsUnsupported = errors.New("transport does not support subscriptions")

	// ErrCallNotFound is returned when the runtime has no call with the
	// requested name.
	ErrCallNotFound = errors.New("runtime call not found")

	// ErrInvalidArgument is returned for arguments that cannot be encoded.
	ErrInvalidArgument = errors.New("invalid argument")
)

const tracerName = "github.com/gabapcia/availkit/internal/infra/blockchain/avail"

// Transport sends JSON-RPC requests to a node.
type Transport interface {
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	Close() error
}

// Subscriber is implemented by transports with server push.
type Subscriber interface {
	Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (*wsrpc.Subscription, error)
}

// RuntimeVersion is the result of state_getRuntimeVersion.
type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

// Conn is a live session with a node. It is safe for concurrent use and
// must be released with Disconnect.
type Conn struct {
	transport  Transport
	subscriber Subscriber
	tracer     trace.Tracer

	runtime    runtimeInfo
	version    RuntimeVersion
	methods    types.Set[string] // nil when the node did not list its methods
	ss58Format uint16

	closed atomic.Bool
}

type config struct {
	metadata   Metadata
	ss58Format uint16
}

// Option customizes Open.
type Option func(*config)

// WithMetadata skips fetching and decoding state_getMetadata.
func WithMetadata(m Metadata) Option {
	return func(c *config) {
		c.metadata = m
	}
}

// WithSS58Format sets the address format used to render and check
// addresses.
//
// Default: 42.
func WithSS58Format(format uint16) Option {
	return func(c *config) {
		c.ss58Format = format
	}
}

// Open performs the handshake over t and returns a ready Conn. Open owns t:
// it is closed when the handshake fails.
func Open(ctx context.Context, t Transport, opts ...Option) (*Conn, error) {
	cfg := config{ss58Format: ss58.SubstrateFormat}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Conn{
		transport:  t,
		tracer:     otel.Tracer(tracerName),
		ss58Format: cfg.ss58Format,
	}
	c.subscriber, _ = t.(Subscriber)

	if err := c.handshake(ctx, cfg.metadata); err != nil {
		_ = t.Close()
		return nil, err
	}

	logger.Info(ctx, "avail: connected",
		"chain.genesis", c.runtime.genesisHash.Hex(),
		"chain.spec_name", c.version.SpecName,
		"chain.spec_version", c.version.SpecVersion,
		"chain.tx_version", c.version.TransactionVersion,
	)

	return c, nil
}

func (c *Conn) handshake(ctx context.Context, metadata Metadata) error {
	genesis, err := fetch[types.H256](ctx, c, "chain_getBlockHash", 0)
	if err != nil {
		return fmt.Errorf("genesis hash: %w", err)
	}

	version, err := fetch[RuntimeVersion](ctx, c, "state_getRuntimeVersion")
	if err != nil {
		return fmt.Errorf("runtime version: %w", err)
	}

	if metadata == nil {
		raw, err := fetch[string](ctx, c, "state_getMetadata")
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}

		if metadata, err = DecodeMetadata(raw); err != nil {
			return err
		}
	}

	if err := checkSignedExtensions(metadata.SignedExtensions()); err != nil {
		return err
	}

	c.version = version
	c.runtime = runtimeInfo{
		genesisHash: genesis,
		specVersion: version.SpecVersion,
		txVersion:   version.TransactionVersion,
		metadata:    metadata,
	}

	methods, err := fetch[struct {
		Methods []string `json:"methods"`
	}](ctx, c, "rpc_methods")
	if err != nil {
		logger.Warn(ctx, "avail: rpc_methods failed, assuming every custom method is available", "error", err)
		return nil
	}

	c.methods = types.NewSet(methods.Methods...)
	for _, m := range Schema.RPC {
		if !c.methods.Has(m.Name()) {
			logger.Warn(ctx, "avail: node does not expose custom rpc method", "rpc.method", m.Name())
		}
	}
	return nil
}

// fetch calls method and decodes its result into T.
func fetch[T any](ctx context.Context, c *Conn, method string, params ...any) (T, error) {
	var out T

	ctx, span := c.tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
		),
	)
	defer span.End()

	raw, err := c.transport.Fetch(ctx, method, params...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		err = fmt.Errorf("%w: %s result: %w", ErrDecode, method, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	return out, nil
}

func (c *Conn) ensureOpen() error {
	if c.closed.Load() {
		return ErrDisconnected
	}
	return nil
}

func (c *Conn) ensureMethod(name string) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}

	if c.methods != nil && !c.methods.Has(name) {
		return fmt.Errorf("%w: %s", ErrMethodUnavailable, name)
	}
	return nil
}

// Disconnect closes the transport. Only the first call succeeds; later calls
// return ErrDisconnected.
func (c *Conn) Disconnect() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrDisconnected
	}
	return c.transport.Close()
}

// Schema returns the custom RPC and type surface registered on the
// connection.
func (c *Conn) Schema() SchemaExtension {
	return Schema
}

// GenesisHash is the hash of block 0, fetched during the handshake.
func (c *Conn) GenesisHash() types.H256 {
	return c.runtime.genesisHash
}

// RuntimeVersion is the runtime version seen during the handshake.
func (c *Conn) RuntimeVersion() RuntimeVersion {
	return c.version
}

// Metadata is the runtime metadata used to build extrinsics.
func (c *Conn) Metadata() Metadata {
	return c.runtime.metadata
}

func (c *Conn) SS58Format() uint16 {
	return c.ss58Format
}

// Chain returns the chain name, e.g. "Avail Turing Network".
func (c *Conn) Chain(ctx context.Context) (string, error) {
	if err := c.ensureOpen(); err != nil {
		return "", err
	}
	return fetch[string](ctx, c, "system_chain")
}

// Name returns the node implementation name.
func (c *Conn) Name(ctx context.Context) (string, error) {
	if err := c.ensureOpen(); err != nil {
		return "", err
	}
	return fetch[string](ctx, c, "system_name")
}

// Version returns the node implementation version.
func (c *Conn) Version(ctx context.Context) (string, error) {
	if err := c.ensureOpen(); err != nil {
		return "", err
	}
	return fetch[string](ctx, c, "system_version")
}

// BlockHash returns the hash of the block at height number.
func (c *Conn) BlockHash(ctx context.Context, number uint64) (types.H256, error) {
	if err := c.ensureOpen(); err != nil {
		return types.H256{}, err
	}

	hash, err := fetch[*types.H256](ctx, c, "chain_getBlockHash", number)
	if err != nil {
		return types.H256{}, err
	}

	if hash == nil {
		return types.H256{}, fmt.Errorf("%w: no block at height %d", ErrInvalidArgument, number)
	}
	return *hash, nil
}

// LatestHeader returns the header of the best block.
func (c *Conn) LatestHeader(ctx context.Context) (DaHeader, error) {
	if err := c.ensureOpen(); err != nil {
		return DaHeader{}, err
	}
	return fetch[DaHeader](ctx, c, "chain_getHeader")
}

// Header returns the header of the block with the given hash.
func (c *Conn) Header(ctx context.Context, hash types.H256) (DaHeader, error) {
	if err := c.ensureOpen(); err != nil {
		return DaHeader{}, err
	}
	return fetch[DaHeader](ctx, c, "chain_getHeader", hash)
}

// Block returns the block with the given hash, or the best block when hash
// is nil.
func (c *Conn) Block(ctx context.Context, hash *types.H256) (SignedBlock, error) {
	if err := c.ensureOpen(); err != nil {
		return SignedBlock{}, err
	}
	return fetch[SignedBlock](ctx, c, "chain_getBlock", withAt(nil, hash)...)
}

// FinalizedHead returns the hash of the last finalized block.
func (c *Conn) FinalizedHead(ctx context.Context) (types.H256, error) {
	if err := c.ensureOpen(); err != nil {
		return types.H256{}, err
	}
	return fetch[types.H256](ctx, c, "chain_getFinalizedHead")
}

// SubscribeNewHeads streams the header of every new best block.
func (c *Conn) SubscribeNewHeads(ctx context.Context) (*HeadSubscription, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	if c.subscriber == nil {
		return nil, ErrSubscriptionsUnsupported
	}

	sub, err := c.subscriber.Subscribe(ctx, "chain_subscribeNewHeads", "chain_unsubscribeNewHeads")
	if err != nil {
		return nil, err
	}
	return newStream[DaHeader](sub, nil), nil
}

// AccountNextIndex returns the next nonce of an account, counting the
// transactions already in the pool.
func (c *Conn) AccountNextIndex(ctx context.Context, address string) (uint64, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	return fetch[uint64](ctx, c, "system_accountNextIndex", address)
}

func withAt(params []any, at *types.H256) []any {
	if at == nil {
		return params
	}
	return append(params, *at)
}

// BlockLength calls kate_blockLength at the given block, or the best block
// when at is nil.
func (c *Conn) BlockLength(ctx context.Context, at *types.H256) (BlockLength, error) {
	if err := c.ensureMethod(MethodBlockLength); err != nil {
		return BlockLength{}, err
	}
	return fetch[BlockLength](ctx, c, MethodBlockLength, withAt(nil, at)...)
}

// QueryProof calls kate_queryProof for cells.
func (c *Conn) QueryProof(ctx context.Context, cells []Cell, at *types.H256) (types.Bytes, error) {
	if err := c.ensureMethod(MethodQueryProof); err != nil {
		return nil, err
	}

	if cells == nil {
		cells = []Cell{}
	}
	return fetch[types.Bytes](ctx, c, MethodQueryProof, withAt([]any{cells}, at)...)
}

// QueryDataProof calls kate_queryDataProof for the transaction at dataIndex.
func (c *Conn) QueryDataProof(ctx context.Context, dataIndex uint32, at *types.H256) (DataProof, error) {
	if err := c.ensureMethod(MethodQueryDataProof); err != nil {
		return DataProof{}, err
	}
	return fetch[DataProof](ctx, c, MethodQueryDataProof, withAt([]any{dataIndex}, at)...)
}

// TransferCall builds a balance transfer call for this runtime.
func (c *Conn) TransferCall(dest AccountID, amount *big.Int) (Call, error) {
	if err := c.ensureOpen(); err != nil {
		return Call{}, err
	}
	return NewTransferCall(c.runtime.metadata, dest, amount)
}

// SignExtrinsic returns the encoded signed extrinsic and its hash.
func (c *Conn) SignExtrinsic(call Call, signer Signer, opts SignOptions) ([]byte, types.H256, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, types.H256{}, err
	}
	return c.runtime.signExtrinsic(call, signer, opts)
}

// SignAndSubmit signs call and returns once the pool has accepted it.
func (c *Conn) SignAndSubmit(ctx context.Context, call Call, signer Signer, opts SignOptions) (types.H256, error) {
	encoded, _, err := c.SignExtrinsic(call, signer, opts)
	if err != nil {
		return types.H256{}, err
	}
	return fetch[types.H256](ctx, c, "author_submitExtrinsic", types.Bytes(encoded).Hex())
}

// SignAndWatch signs call, submits it and streams its status.
func (c *Conn) SignAndWatch(ctx context.Context, call Call, signer Signer, opts SignOptions) (*ExtrinsicWatch, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	if c.subscriber == nil {
		return nil, ErrSubscriptionsUnsupported
	}

	encoded, hash, err := c.SignExtrinsic(call, signer, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "author_submitAndWatchExtrinsic", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	sub, err := c.subscriber.Subscribe(ctx, "author_submitAndWatchExtrinsic", "author_unwatchExtrinsic", types.Bytes(encoded).Hex())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return newExtrinsicWatch(hash, sub), nil
}

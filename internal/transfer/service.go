// Package transfer signs and submits AVL balance transfers.
//
// A transfer takes its nonce from the node (system_accountNextIndex) while
// holding a per-account NonceLocker, and nothing is retried: a rejected
// submission surfaces as ErrSubmission for the caller to handle.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/ss58"
	"github.com/gabapcia/availkit/internal/pkg/types"
	"github.com/gabapcia/availkit/internal/pkg/validator"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gabapcia/availkit/internal/transfer"

var (
	ErrInvalidSecret    = errors.New("invalid secret")
	ErrInvalidReceiver  = errors.New("invalid receiver address")
	ErrAmountOutOfRange = errors.New("amount out of range")
	ErrLock             = errors.New("could not acquire nonce lock")
	ErrNonceQuery       = errors.New("could not query account nonce")
	ErrSubmission       = errors.New("transfer submission failed")
)

// Chain is the part of avail.Conn a transfer needs.
type Chain interface {
	SS58Format() uint16
	AccountNextIndex(ctx context.Context, address string) (uint64, error)
	TransferCall(dest avail.AccountID, amount *big.Int) (avail.Call, error)
	SignAndSubmit(ctx context.Context, call avail.Call, signer avail.Signer, opts avail.SignOptions) (types.H256, error)
	SignAndWatch(ctx context.Context, call avail.Call, signer avail.Signer, opts avail.SignOptions) (*avail.ExtrinsicWatch, error)
}

var _ Chain = (*avail.Conn)(nil)

// Request describes a transfer of Amount whole AVL from the account of
// Secret to Receiver.
type Request struct {
	Secret   string   `validate:"required" name:"secret"`
	Receiver string   `validate:"required" name:"receiver"`
	Amount   *big.Int `validate:"required" name:"amount"`
}

// Submission is a transfer the node accepted into its pool.
type Submission struct {
	ID       uuid.UUID
	Hash     types.H256
	Sender   string
	Receiver string
	Nonce    uint64

	// Amount in base units.
	Amount *big.Int
}

// Watch is a submitted transfer together with its status stream. The
// stream ends after a terminal status; Close stops it earlier.
type Watch struct {
	Submission

	status *avail.ExtrinsicWatch
}

// Updates streams the pool status of the transfer.
func (w *Watch) Updates() <-chan avail.ExtrinsicStatus {
	return w.status.Items()
}

// Err yields the error that ended the stream, if any.
func (w *Watch) Err() <-chan error {
	return w.status.Err()
}

func (w *Watch) Close(ctx context.Context) error {
	return w.status.Close(ctx)
}

type Service interface {
	// Transfer signs and submits the transfer and returns once the node
	// acknowledged it.
	Transfer(ctx context.Context, chain Chain, req Request) (Submission, error)

	// TransferAndWatch submits the transfer and streams its status until
	// it is finalized, dropped or invalid.
	TransferAndWatch(ctx context.Context, chain Chain, req Request) (*Watch, error)
}

type service struct {
	locker    NonceLocker
	tracer    trace.Tracer
	submitted metric.Int64Counter
	failed    metric.Int64Counter
}

var _ Service = (*service)(nil)

// prepared is a validated request ready to be signed.
type prepared struct {
	identity *Identity
	receiver string
	dest     avail.AccountID
	amount   *big.Int
}

func (s *service) prepare(chain Chain, req Request) (prepared, error) {
	if err := validator.Validate(req); err != nil {
		return prepared{}, err
	}

	dest, err := ss58.DecodeAccountID(req.Receiver, chain.SS58Format())
	if err != nil {
		return prepared{}, fmt.Errorf("%w: %w", ErrInvalidReceiver, err)
	}

	identity, err := NewIdentity(req.Secret, chain.SS58Format())
	if err != nil {
		return prepared{}, err
	}

	amount, err := ToBaseUnits(req.Amount)
	if err != nil {
		return prepared{}, err
	}

	return prepared{
		identity: identity,
		receiver: req.Receiver,
		dest:     avail.AccountID(dest),
		amount:   amount,
	}, nil
}

// submit runs the locked part of a transfer. send signs and submits the
// call with the queried nonce.
func (s *service) submit(ctx context.Context, chain Chain, req Request, send func(context.Context, avail.Call, *Identity, avail.SignOptions) error) (sub Submission, err error) {
	ctx, span := s.tracer.Start(ctx, "transfer.submit")
	defer span.End()

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
		}
	}()

	p, err := s.prepare(chain, req)
	if err != nil {
		return Submission{}, err
	}

	sub = Submission{
		ID:       uuid.New(),
		Sender:   p.identity.Address(),
		Receiver: p.receiver,
		Amount:   p.amount,
	}

	ctx = logger.Derive(ctx, "transfer.id", sub.ID.String(), "sender", sub.Sender, "receiver", sub.Receiver)
	span.SetAttributes(
		attribute.String("transfer.id", sub.ID.String()),
		attribute.String("transfer.sender", sub.Sender),
		attribute.String("transfer.receiver", sub.Receiver),
	)

	unlock, err := s.locker.Lock(ctx, sub.Sender)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrLock, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "transfer: could not release nonce lock", "error", err)
		}
	}()

	nonce, err := chain.AccountNextIndex(ctx, sub.Sender)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrNonceQuery, err)
	}
	sub.Nonce = nonce
	span.SetAttributes(attribute.Int64("transfer.nonce", int64(nonce)))

	call, err := chain.TransferCall(p.dest, p.amount)
	if err != nil {
		return Submission{}, fmt.Errorf("build transfer call: %w", err)
	}

	logger.Info(ctx, "transfer: submitting", "amount.base_units", p.amount.String(), "nonce", nonce)

	if err := send(ctx, call, p.identity, avail.SignOptions{AppID: 0, Nonce: nonce}); err != nil {
		logger.Warn(ctx, "transfer: submission rejected", "nonce", nonce, "error", err)
		return Submission{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	s.submitted.Add(ctx, 1)
	return sub, nil
}

func (s *service) Transfer(ctx context.Context, chain Chain, req Request) (Submission, error) {
	var hash types.H256
	sub, err := s.submit(ctx, chain, req, func(ctx context.Context, call avail.Call, id *Identity, opts avail.SignOptions) error {
		var err error
		hash, err = chain.SignAndSubmit(ctx, call, id, opts)
		return err
	})
	if err != nil {
		return Submission{}, err
	}

	sub.Hash = hash
	logger.Info(ctx, "transfer: acknowledged by the node", "transfer.id", sub.ID.String(), "tx.hash", hash.String())
	return sub, nil
}

func (s *service) TransferAndWatch(ctx context.Context, chain Chain, req Request) (*Watch, error) {
	var watch *avail.ExtrinsicWatch
	sub, err := s.submit(ctx, chain, req, func(ctx context.Context, call avail.Call, id *Identity, opts avail.SignOptions) error {
		var err error
		watch, err = chain.SignAndWatch(ctx, call, id, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	sub.Hash = watch.Hash()
	logger.Info(ctx, "transfer: watching", "transfer.id", sub.ID.String(), "tx.hash", sub.Hash.String())
	return &Watch{Submission: sub, status: watch}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, validator.ErrValidationFailed):
		return "invalid_request"
	case errors.Is(err, ErrInvalidSecret):
		return "invalid_secret"
	case errors.Is(err, ErrInvalidReceiver):
		return "invalid_receiver"
	case errors.Is(err, ErrAmountOutOfRange):
		return "amount_out_of_range"
	case errors.Is(err, ErrLock):
		return "lock"
	case errors.Is(err, ErrNonceQuery):
		return "nonce_query"
	case errors.Is(err, ErrSubmission):
		return "submission"
	default:
		return "other"
	}
}

type config struct {
	locker        NonceLocker
	meterProvider metric.MeterProvider
}

// Option customizes the service built by New.
type Option func(*config)

// New creates a transfer service. Without options transfers are serialized
// per account within this process and metrics go to the global provider.
func New(opts ...Option) *service {
	cfg := config{
		locker:        NewMemoryLocker(),
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := cfg.meterProvider.Meter(instrumentationName)

	submitted, err := meter.Int64Counter("availkit.transfers.submitted",
		metric.WithDescription("Transfers acknowledged by the node"),
	)
	if err != nil {
		submitted = noop.Int64Counter{}
	}

	failed, err := meter.Int64Counter("availkit.transfers.failed",
		metric.WithDescription("Transfers that failed before or at submission"),
	)
	if err != nil {
		failed = noop.Int64Counter{}
	}

	return &service{
		locker:    cfg.locker,
		tracer:    otel.Tracer(instrumentationName),
		submitted: submitted,
		failed:    failed,
	}
}

// WithNonceLocker replaces the in-process lock, e.g. with the Redis lock
// when several processes sign for the same account.
func WithNonceLocker(l NonceLocker) Option {
	return func(c *config) {
		c.locker = l
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

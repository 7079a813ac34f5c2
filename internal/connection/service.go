// Package connection turns a network selector into a live avail.Conn: it
// resolves the endpoint, picks the transport by URI scheme and runs the
// handshake.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/availkit/internal/pkg/transport/wsrpc"
)

var (
	// ErrConnection wraps every failure to produce a connection.
	ErrConnection = errors.New("connection failed")

	// ErrEndpointNotConfigured is returned for a known network whose
	// endpoint is empty, e.g. testnet under the env profile without
	// AVAIL_TESTNET_WS.
	ErrEndpointNotConfigured = errors.New("endpoint not configured")

	// ErrUnsupportedScheme is returned for endpoints that are neither
	// ws(s):// nor http(s)://.
	ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")
)

// IsTransient reports whether a Connect error may succeed when retried.
// Configuration and schema errors never do.
func IsTransient(err error) bool {
	if !errors.Is(err, ErrConnection) {
		return false
	}

	return !errors.Is(err, ErrEndpointNotConfigured) &&
		!errors.Is(err, ErrUnsupportedScheme) &&
		!errors.Is(err, avail.ErrSchemaMismatch) &&
		!errors.Is(err, context.Canceled)
}

type Service interface {
	// Connect returns a ready connection to the network named by selector.
	// The caller owns it and must call Disconnect. Failures are not retried.
	Connect(ctx context.Context, selector string) (*avail.Conn, error)
}

type service struct {
	networks       Networks
	dialTimeout    time.Duration
	requestTimeout time.Duration
	rateLimit      float64
	rateBurst      int
	header         http.Header
	readLimit      int64
	availOptions   []avail.Option
}

var _ Service = (*service)(nil)

func (s *service) Connect(ctx context.Context, selector string) (*avail.Conn, error) {
	endpoint, err := s.networks.Resolve(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	ctx = logger.Derive(ctx, "network", selector, "endpoint", endpoint)

	if s.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.dialTimeout)
		defer cancel()
	}

	transport, err := s.dial(ctx, endpoint)
	if err != nil {
		logger.Warn(ctx, "connection: dial failed", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, endpoint, err)
	}

	conn, err := avail.Open(ctx, transport, s.availOptions...)
	if err != nil {
		logger.Warn(ctx, "connection: handshake failed", "error", err)
		return nil, fmt.Errorf("%w: %s: handshake: %w", ErrConnection, endpoint, err)
	}

	return conn, nil
}

func (s *service) dial(ctx context.Context, endpoint string) (avail.Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "ws", "wss":
		opts := []wsrpc.Option{
			wsrpc.WithHandshakeTimeout(s.dialTimeout),
			wsrpc.WithRateLimit(s.rateLimit, s.rateBurst),
			wsrpc.WithHeader(s.header),
		}
		if s.readLimit > 0 {
			opts = append(opts, wsrpc.WithReadLimit(s.readLimit))
		}
		return wsrpc.Dial(ctx, endpoint, opts...)
	case "http", "https":
		return jsonrpc.NewClient(endpoint,
			jsonrpc.WithTimeout(s.requestTimeout),
			jsonrpc.WithRateLimit(s.rateLimit, s.rateBurst),
			jsonrpc.WithHeader(s.header),
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

type config struct {
	dialTimeout    time.Duration
	requestTimeout time.Duration
	rateLimit      float64
	rateBurst      int
	header         http.Header
	readLimit      int64
	availOptions   []avail.Option
}

// Option customizes the service built by New.
type Option func(*config)

// New creates a connection factory over an explicit endpoint mapping.
func New(networks Networks, opts ...Option) *service {
	cfg := config{
		dialTimeout:    10 * time.Second,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		networks:       networks,
		dialTimeout:    cfg.dialTimeout,
		requestTimeout: cfg.requestTimeout,
		rateLimit:      cfg.rateLimit,
		rateBurst:      cfg.rateBurst,
		header:         cfg.header,
		readLimit:      cfg.readLimit,
		availOptions:   cfg.availOptions,
	}
}

// WithDialTimeout bounds dialing plus the handshake.
//
// Default: 10 seconds.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = d
	}
}

// WithRequestTimeout bounds a single HTTP request. WebSocket requests are
// bounded by the caller's context.
//
// Default: 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		c.requestTimeout = d
	}
}

// WithRateLimit throttles requests on each connection to rps per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rateLimit = rps
		c.rateBurst = burst
	}
}

// WithHeader adds HTTP headers to the WebSocket handshake and to every HTTP
// request, e.g. an API key for a hosted endpoint.
func WithHeader(header http.Header) Option {
	return func(c *config) {
		c.header = header.Clone()
	}
}

// WithReadLimit caps the size of a message received over WebSocket.
func WithReadLimit(n int64) Option {
	return func(c *config) {
		c.readLimit = n
	}
}

// WithMetadata supplies runtime metadata instead of fetching it from the
// node on every connection.
func WithMetadata(m avail.Metadata) Option {
	return func(c *config) {
		c.availOptions = append(c.availOptions, avail.WithMetadata(m))
	}
}

// WithSS58Format sets the address format of the connections.
func WithSS58Format(format uint16) Option {
	return func(c *config) {
		c.availOptions = append(c.availOptions, avail.WithSS58Format(format))
	}
}

// Package jsonrpc provides a JSON-RPC 2.0 client over HTTP and the wire types
// shared with the WebSocket transport. Substrate nodes serve the same RPC
// surface over HTTP, minus subscriptions.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Client defines the interface for a JSON-RPC client.
type Client interface {
	// Fetch sends a JSON-RPC request with the given method name and parameters.
	// It returns the raw JSON result or an error if the request or response fails.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// Close releases idle connections.
	Close() error
}

type client struct {
	providerEndpoint string
	httpClient       *retryablehttp.Client
	limiter          *rate.Limiter
	header           http.Header
}

var _ Client = (*client)(nil)

// Fetch posts one request. The `id` field is a random UUID.
func (c *client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(NewRequest(uuid.NewString(), method, params...))
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.providerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var data Response
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, err
	}

	if err := data.Err(); err != nil {
		return nil, err
	}
	return data.Result, nil
}

func (c *client) Close() error {
	c.httpClient.HTTPClient.CloseIdleConnections()
	return nil
}

type config struct {
	timeout      time.Duration
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	retryMax     int
	rateLimit    rate.Limit
	rateBurst    int
	header       http.Header
}

// Option customizes the client built by NewClient.
type Option func(*config)

// NewClient creates a client posting to providerEndpoint.
//
// Transport-level retries are disabled by default because a retried
// author_submitExtrinsic may reach the pool twice; enable them with
// WithRetryMax for read-only use.
func NewClient(providerEndpoint string, opts ...Option) *client {
	cfg := config{
		timeout:      5 * time.Second,
		retryWaitMin: 1 * time.Second,
		retryWaitMax: 5 * time.Second,
		retryMax:     0,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.HTTPClient.Timeout = cfg.timeout
	httpClient.RetryWaitMin = cfg.retryWaitMin
	httpClient.RetryWaitMax = cfg.retryWaitMax
	httpClient.RetryMax = cfg.retryMax

	var limiter *rate.Limiter
	if cfg.rateLimit > 0 {
		limiter = rate.NewLimiter(cfg.rateLimit, max(cfg.rateBurst, 1))
	}

	return &client{
		providerEndpoint: providerEndpoint,
		httpClient:       httpClient,
		limiter:          limiter,
		header:           cfg.header.Clone(),
	}
}

// WithTimeout sets the maximum duration of a single HTTP request.
//
// Default: 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryWaitMin sets the minimum wait between retry attempts.
//
// Default: 1 second.
func WithRetryWaitMin(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMin = d
	}
}

// WithRetryWaitMax sets the maximum wait between retry attempts.
//
// Default: 5 seconds.
func WithRetryWaitMax(d time.Duration) Option {
	return func(c *config) {
		c.retryWaitMax = d
	}
}

// WithRetryMax sets the number of transport-level retries.
//
// Default: 0.
func WithRetryMax(n int) Option {
	return func(c *config) {
		c.retryMax = n
	}
}

// WithRateLimit throttles outgoing requests to rps per second with the given
// burst. A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rateLimit = rate.Limit(rps)
		c.rateBurst = burst
	}
}

// WithHeader adds HTTP headers to every request, e.g. an API key for a
// hosted endpoint.
func WithHeader(header http.Header) Option {
	return func(c *config) {
		c.header = header
	}
}

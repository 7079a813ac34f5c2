// Package wsrpc implements a JSON-RPC 2.0 client over a single WebSocket
// connection. Requests are multiplexed by UUID ids and server push
// notifications are routed to subscriptions, which is how Substrate nodes
// deliver new heads and extrinsic status updates.
package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/transport/jsonrpc"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	// ErrClosed is returned by every operation once the connection is gone,
	// either closed locally or dropped by the remote side.
	ErrClosed = errors.New("websocket connection closed")

	// ErrSubscriptionOverflow terminates a subscription whose consumer fell
	// behind by more than the configured buffer.
	ErrSubscriptionOverflow = errors.New("subscription buffer overflow")
)

// Client is a multiplexed JSON-RPC connection.
type Client interface {
	// Fetch sends a request and waits for its response.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// Subscribe calls a subscribe method and routes the notifications that
	// carry the returned subscription id to the Subscription.
	// unsubscribeMethod is called by Subscription.Unsubscribe.
	Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (*Subscription, error)

	// Close terminates the connection and every subscription.
	Close() error

	// Done is closed when the connection terminates.
	Done() <-chan struct{}
}

type pendingCall struct {
	ch  chan jsonrpc.Response
	sub *Subscription
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter

	subscriptionBuffer int

	mu       sync.Mutex
	pending  map[string]*pendingCall
	subs     map[string]*Subscription
	closed   bool
	closeErr error

	done      chan struct{}
	closeOnce sync.Once
}

var _ Client = (*client)(nil)

type config struct {
	handshakeTimeout   time.Duration
	readLimit          int64
	subscriptionBuffer int
	rateLimit          rate.Limit
	rateBurst          int
	header             http.Header
}

// Option customizes Dial.
type Option func(*config)

// Dial opens a WebSocket connection to endpoint and starts its read loop.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*client, error) {
	cfg := config{
		handshakeTimeout:   10 * time.Second,
		readLimit:          64 << 20,
		subscriptionBuffer: 128,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.handshakeTimeout,
	}

	conn, res, err := dialer.DialContext(ctx, endpoint, cfg.header)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	conn.SetReadLimit(cfg.readLimit)

	var limiter *rate.Limiter
	if cfg.rateLimit > 0 {
		limiter = rate.NewLimiter(cfg.rateLimit, max(cfg.rateBurst, 1))
	}

	c := &client{
		conn:               conn,
		limiter:            limiter,
		subscriptionBuffer: cfg.subscriptionBuffer,
		pending:            make(map[string]*pendingCall),
		subs:               make(map[string]*Subscription),
		done:               make(chan struct{}),
	}

	go c.readLoop()
	return c, nil
}

func (c *client) Done() <-chan struct{} {
	return c.done
}

func (c *client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	msg, err := c.call(ctx, method, nil, params...)
	if err != nil {
		return nil, err
	}

	if err := msg.Err(); err != nil {
		return nil, err
	}
	return msg.Result, nil
}

func (c *client) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...any) (*Subscription, error) {
	sub := newSubscription(c, unsubscribeMethod, c.subscriptionBuffer)

	msg, err := c.call(ctx, method, sub, params...)
	if err != nil {
		return nil, err
	}

	if err := msg.Err(); err != nil {
		return nil, err
	}

	if sub.ID() == "" {
		return nil, fmt.Errorf("%s: invalid subscription id %s", method, msg.Result)
	}
	return sub, nil
}

func (c *client) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	c.terminate(ErrClosed)
	return nil
}

func (c *client) call(ctx context.Context, method string, sub *Subscription, params ...any) (jsonrpc.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return jsonrpc.Response{}, err
		}
	}

	id := uuid.NewString()
	pc := &pendingCall{ch: make(chan jsonrpc.Response, 1), sub: sub}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return jsonrpc.Response{}, err
	}
	c.pending[id] = pc
	c.mu.Unlock()

	if err := c.write(ctx, jsonrpc.NewRequest(id, method, params...)); err != nil {
		c.forget(id)
		return jsonrpc.Response{}, err
	}

	select {
	case msg := <-pc.ch:
		return msg, nil
	case <-c.done:
		return jsonrpc.Response{}, c.err()
	case <-ctx.Done():
		if c.forget(id) {
			return jsonrpc.Response{}, ctx.Err()
		}

		// Either the response raced the cancellation and was already
		// dispatched, or terminate dropped every pending call.
		select {
		case msg := <-pc.ch:
			if sub != nil && msg.Err() == nil {
				go func() {
					unsubscribeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = sub.Unsubscribe(unsubscribeCtx)
				}()
			}
		case <-c.done:
		}
		return jsonrpc.Response{}, ctx.Err()
	}
}

// forget drops a pending call. It reports false when the response was
// already dispatched.
func (c *client) forget(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

func (c *client) write(ctx context.Context, req jsonrpc.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.terminate(err)
		return c.err()
	}

	if err := c.conn.WriteJSON(req); err != nil {
		c.terminate(err)
		return c.err()
	}
	return nil
}

func (c *client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.terminate(err)
			return
		}

		var msg jsonrpc.Response
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug(context.Background(), "wsrpc: discarding malformed message", "error", err)
			continue
		}

		c.dispatch(msg)
	}
}

func (c *client) dispatch(msg jsonrpc.Response) {
	if msg.Method != "" {
		c.notify(msg)
		return
	}

	id := msg.IDString()

	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)

		// Registering here, before the next message is read, guarantees that
		// no notification for the new subscription is missed.
		if pc.sub != nil && msg.Err() == nil {
			if subID, err := jsonrpc.ParseSubscriptionID(msg.Result); err == nil {
				pc.sub.id = subID
				c.subs[subID] = pc.sub
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		logger.Debug(context.Background(), "wsrpc: response for unknown request", "rpc.id", id)
		return
	}

	pc.ch <- msg
}

func (c *client) notify(msg jsonrpc.Response) {
	var n jsonrpc.Notification
	if err := json.Unmarshal(msg.Params, &n); err != nil {
		logger.Debug(context.Background(), "wsrpc: discarding malformed notification", "rpc.method", msg.Method, "error", err)
		return
	}

	subID := n.SubscriptionID()

	c.mu.Lock()
	sub, ok := c.subs[subID]
	c.mu.Unlock()

	if !ok {
		logger.Debug(context.Background(), "wsrpc: notification for unknown subscription", "rpc.method", msg.Method, "rpc.subscription", subID)
		return
	}

	if !sub.deliver(n.Result) {
		c.removeSubscription(subID)
		sub.finish(ErrSubscriptionOverflow)
	}
}

func (c *client) removeSubscription(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

func (c *client) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *client) terminate(cause error) {
	c.closeOnce.Do(func() {
		err := ErrClosed
		if !errors.Is(cause, ErrClosed) {
			err = fmt.Errorf("%w: %w", ErrClosed, cause)
			logger.Warn(context.Background(), "wsrpc: connection lost", "error", cause)
		}

		c.mu.Lock()
		c.closed = true
		c.closeErr = err
		subs := c.subs
		c.subs = make(map[string]*Subscription)
		c.pending = make(map[string]*pendingCall)
		c.mu.Unlock()

		_ = c.conn.Close()
		close(c.done)

		for _, sub := range subs {
			sub.finish(err)
		}
	})
}

// WithHandshakeTimeout bounds the WebSocket opening handshake.
//
// Default: 10 seconds.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.handshakeTimeout = d
	}
}

// WithReadLimit sets the maximum size of an incoming message. Runtime
// metadata alone is several hundred kilobytes.
//
// Default: 64 MiB.
func WithReadLimit(n int64) Option {
	return func(c *config) {
		c.readLimit = n
	}
}

// WithSubscriptionBuffer sets how many undelivered notifications a
// subscription may hold before it is terminated with ErrSubscriptionOverflow.
//
// Default: 128.
func WithSubscriptionBuffer(n int) Option {
	return func(c *config) {
		c.subscriptionBuffer = n
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

// WithHeader adds HTTP headers to the opening handshake, e.g. an API key for
// a hosted endpoint.
func WithHeader(header http.Header) Option {
	return func(c *config) {
		c.header = header
	}
}

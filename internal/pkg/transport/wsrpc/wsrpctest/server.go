// Package wsrpctest provides an in-process JSON-RPC node reachable over
// WebSocket and HTTP, for tests of code that talks to a Substrate endpoint.
package wsrpctest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gabapcia/availkit/internal/pkg/transport/jsonrpc"

	"github.com/gorilla/websocket"
)

// Handler answers a call. Returning a *jsonrpc.Error sends it verbatim; any
// other error is sent with code -32000.
type Handler func(params []json.RawMessage) (any, error)

// SubscriptionHandler runs in its own goroutine after the subscription id
// has been sent to the client.
type SubscriptionHandler func(sink *Sink, params []json.RawMessage)

type subscription struct {
	notificationMethod string
	handler            SubscriptionHandler
}

// Server is a scripted node. Unknown methods are answered with -32601.
type Server struct {
	srv *httptest.Server

	mu            sync.Mutex
	handlers      map[string]Handler
	subscriptions map[string]subscription
	calls         map[string][][]json.RawMessage
	peers         []*peer
	headers       []http.Header
	nextSub       int
}

// NewServer starts a server that is closed with the test.
func NewServer(t testing.TB) *Server {
	s := &Server{
		handlers:      make(map[string]Handler),
		subscriptions: make(map[string]subscription),
		calls:         make(map[string][][]json.RawMessage),
	}

	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// WebSocketURL is the ws:// address of the server.
func (s *Server) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// HTTPURL is the http:// address of the server.
func (s *Server) HTTPURL() string {
	return s.srv.URL
}

func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// DropConnections closes every open WebSocket, simulating a node going away.
func (s *Server) DropConnections() {
	s.mu.Lock()
	peers := s.peers
	s.peers = nil
	s.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close()
	}
}

func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleResult answers method with a fixed result.
func (s *Server) HandleResult(method string, result any) {
	s.Handle(method, func([]json.RawMessage) (any, error) {
		return result, nil
	})
}

// HandleError answers method with a fixed JSON-RPC error.
func (s *Server) HandleError(method string, code int, message string) {
	s.Handle(method, func([]json.RawMessage) (any, error) {
		return nil, &jsonrpc.Error{Code: code, Message: message}
	})
}

// HandleSubscription answers method with a fresh subscription id and then
// runs h, which pushes notifications named notificationMethod.
func (s *Server) HandleSubscription(method, notificationMethod string, h SubscriptionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[method] = subscription{notificationMethod: notificationMethod, handler: h}
}

// Calls returns the params of every call received for method, in order.
func (s *Server) Calls(method string) [][]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]json.RawMessage, len(s.calls[method]))
	copy(out, s.calls[method])
	return out
}

// CallCount returns how many times method was called.
func (s *Server) CallCount(method string) int {
	return len(s.Calls(method))
}

// Headers returns the HTTP headers of every WebSocket handshake and HTTP
// request received, in order.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]http.Header, len(s.headers))
	copy(out, s.headers)
	return out
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type response struct {
	JsonRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.answer(req))
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := &peer{conn: conn}

	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		s.mu.Lock()
		sub, isSubscription := s.subscriptions[req.Method]
		s.mu.Unlock()

		if !isSubscription {
			_ = p.write(s.answer(req))
			continue
		}

		s.mu.Lock()
		s.calls[req.Method] = append(s.calls[req.Method], req.Params)
		s.nextSub++
		id := fmt.Sprintf("sub-%d", s.nextSub)
		s.mu.Unlock()

		if err := p.write(response{JsonRPC: "2.0", ID: req.ID, Result: id}); err != nil {
			return
		}

		sink := &Sink{peer: p, method: sub.notificationMethod, id: id}
		go sub.handler(sink, req.Params)
	}
}

func (s *Server) answer(req request) response {
	s.mu.Lock()
	s.calls[req.Method] = append(s.calls[req.Method], req.Params)
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	res := response{JsonRPC: "2.0", ID: req.ID}
	if !ok {
		res.Error = &jsonrpc.Error{Code: -32601, Message: "Method not found"}
		return res
	}

	result, err := h(req.Params)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &jsonrpc.Error{Code: -32000, Message: err.Error()}
		}
		res.Error = rpcErr
		return res
	}

	if result == nil {
		result = json.RawMessage("null")
	}
	res.Result = result
	return res
}

type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

// Sink pushes notifications for one subscription.
type Sink struct {
	peer   *peer
	method string
	id     string
}

// ID is the subscription id handed to the client.
func (s *Sink) ID() string {
	return s.id
}

// Notify sends one notification carrying result.
func (s *Sink) Notify(result any) error {
	return s.peer.write(map[string]any{
		"jsonrpc": "2.0",
		"method":  s.method,
		"params": map[string]any{
			"subscription": s.id,
			"result":       result,
		},
	})
}

// NotifyRaw sends a notification for an arbitrary subscription id.
func (s *Sink) NotifyRaw(subscriptionID string, result any) error {
	return s.peer.write(map[string]any{
		"jsonrpc": "2.0",
		"method":  s.method,
		"params": map[string]any{
			"subscription": subscriptionID,
			"result":       result,
		},
	})
}

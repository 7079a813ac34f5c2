package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProviderReturnedError indicates that the remote JSON-RPC server returned an error response.
var ErrProviderReturnedError = errors.New("provider error")

// Request is a JSON-RPC 2.0 call.
type Request struct {
	JsonRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// NewRequest builds a request with a normalized, never-null params list.
func NewRequest(id, method string, params ...any) Request {
	if params == nil {
		params = []any{}
	}

	return Request{
		JsonRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Error is the error object of a JSON-RPC response. Substrate nodes put the
// transaction pool verdict in Data, e.g. code 1010 with "Transaction is
// outdated" for a stale nonce.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s: [%d] - %s: %s", ErrProviderReturnedError, e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("%s: [%d] - %s", ErrProviderReturnedError, e.Code, e.Message)
}

// Is makes every *Error match ErrProviderReturnedError.
func (e *Error) Is(target error) bool {
	return target == ErrProviderReturnedError
}

// Response is a JSON-RPC 2.0 response or, when Method is set, a server push
// notification (subscriptions).
type Response struct {
	JsonRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Err returns the response error, if any.
func (r Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// IDString returns the response id as a string, accepting both string and
// numeric ids.
func (r Response) IDString() string {
	return rawID(r.ID)
}

// Notification is the params object of a subscription push message.
type Notification struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// SubscriptionID returns the subscription id as a string.
func (n Notification) SubscriptionID() string {
	return rawID(n.Subscription)
}

// ParseSubscriptionID decodes the result of a subscribe call.
func ParseSubscriptionID(result json.RawMessage) (string, error) {
	id := rawID(result)
	if id == "" {
		return "", fmt.Errorf("invalid subscription id: %s", result)
	}
	return id, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

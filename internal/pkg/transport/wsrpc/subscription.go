package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Subscription receives the notifications of one server-side subscription.
//
// Notifications is closed when the subscription ends. If it ended because of
// a failure (connection loss, buffer overflow) the cause is sent on Err
// first; an explicit Unsubscribe closes Err without a value.
type Subscription struct {
	client            *client
	id                string
	unsubscribeMethod string

	mu            sync.Mutex
	finished      bool
	notifications chan json.RawMessage
	errCh         chan error
}

func newSubscription(c *client, unsubscribeMethod string, buffer int) *Subscription {
	return &Subscription{
		client:            c,
		unsubscribeMethod: unsubscribeMethod,
		notifications:     make(chan json.RawMessage, max(buffer, 1)),
		errCh:             make(chan error, 1),
	}
}

// ID is the server-assigned subscription id.
func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Notifications() <-chan json.RawMessage {
	return s.notifications
}

func (s *Subscription) Err() <-chan error {
	return s.errCh
}

// Unsubscribe stops routing notifications and asks the server to drop the
// subscription. It is safe to call more than once and after the connection
// is gone, in which case only the local state is released.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.client.removeSubscription(s.id)
	if !s.finish(nil) {
		return nil
	}

	if s.unsubscribeMethod == "" {
		return nil
	}

	_, err := s.client.Fetch(ctx, s.unsubscribeMethod, s.id)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// deliver hands a notification to the consumer without blocking the read
// loop. It reports false when the buffer is full.
func (s *Subscription) deliver(result json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return true
	}

	select {
	case s.notifications <- result:
		return true
	default:
		return false
	}
}

// finish ends the subscription once. It reports whether this call ended it.
func (s *Subscription) finish(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	s.finished = true

	if err != nil {
		s.errCh <- err
	}
	close(s.errCh)
	close(s.notifications)
	return true
}

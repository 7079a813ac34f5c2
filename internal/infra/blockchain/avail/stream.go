package avail

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/transport/wsrpc"
	"github.com/gabapcia/availkit/internal/pkg/x/chflow"
)

const unsubscribeTimeout = 5 * time.Second

// Stream decodes the notifications of a subscription into values of T.
//
// Items is closed when the stream ends: after a value for which the stop
// condition holds, on Close, or when the subscription fails. In the last case
// the cause is sent on Err before Items is closed.
type Stream[T any] struct {
	sub  *wsrpc.Subscription
	stop func(T) bool

	items chan T
	errCh chan error

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newStream[T any](sub *wsrpc.Subscription, stop func(T) bool) *Stream[T] {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Stream[T]{
		sub:    sub,
		stop:   stop,
		items:  make(chan T),
		errCh:  make(chan error, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.run(ctx)
	return s
}

func (s *Stream[T]) Items() <-chan T {
	return s.items
}

func (s *Stream[T]) Err() <-chan error {
	return s.errCh
}

// Close stops the stream and unsubscribes from the node.
func (s *Stream[T]) Close(ctx context.Context) error {
	s.cancel()
	<-s.done
	return s.sub.Unsubscribe(ctx)
}

func (s *Stream[T]) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.items)
	defer close(s.errCh)

	for {
		raw, ok := chflow.Receive(ctx, s.sub.Notifications())
		if !ok {
			if ctx.Err() != nil {
				return
			}

			if err, ok := <-s.sub.Err(); ok && err != nil {
				s.errCh <- err
			}
			return
		}

		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			s.errCh <- fmt.Errorf("%w: %w", ErrDecode, err)
			s.release()
			return
		}

		if !chflow.Send(ctx, s.items, item) {
			return
		}

		if s.stop != nil && s.stop(item) {
			s.release()
			return
		}
	}
}

func (s *Stream[T]) release() {
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()

	if err := s.sub.Unsubscribe(ctx); err != nil {
		logger.Debug(ctx, "avail: unsubscribe failed", "rpc.subscription", s.sub.ID(), "error", err)
	}
}

// HeadSubscription streams new block headers.
type HeadSubscription = Stream[DaHeader]

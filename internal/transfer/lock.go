package transfer

import (
	"context"
	"sync"
)

// UnlockFunc releases a lock taken by NonceLocker.Lock. It is safe to call
// more than once.
type UnlockFunc func(ctx context.Context) error

// NonceLocker serializes transfers signed by the same account so that two
// of them never read the same next nonce.
type NonceLocker interface {
	// Lock blocks until the account's lock is held or ctx is done.
	Lock(ctx context.Context, address string) (UnlockFunc, error)
}

// memoryLocker is a keyed mutex for transfers within one process. A slot
// lives only while some caller holds or waits for it.
type memoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	held chan struct{}
	refs int
}

var _ NonceLocker = (*memoryLocker)(nil)

// NewMemoryLocker returns the in-process NonceLocker used by default.
func NewMemoryLocker() *memoryLocker {
	return &memoryLocker{slots: make(map[string]*slot)}
}

func (l *memoryLocker) acquire(address string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[address]
	if !ok {
		s = &slot{held: make(chan struct{}, 1)}
		l.slots[address] = s
	}
	s.refs++
	return s
}

func (l *memoryLocker) release(address string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, address)
	}
}

func (l *memoryLocker) Lock(ctx context.Context, address string) (UnlockFunc, error) {
	s := l.acquire(address)

	select {
	case s.held <- struct{}{}:
	case <-ctx.Done():
		l.release(address, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.held
			l.release(address, s)
		})
		return nil
	}, nil
}

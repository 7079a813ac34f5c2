package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	t.Run("serializes one address", func(t *testing.T) {
		l := NewMemoryLocker()
		ctx := context.Background()

		unlock, err := l.Lock(ctx, aliceAddress)
		require.NoError(t, err)

		acquired := make(chan UnlockFunc)
		go func() {
			second, err := l.Lock(ctx, aliceAddress)
			if err == nil {
				acquired <- second
			}
		}()

		select {
		case <-acquired:
			t.Fatal("second lock acquired while the first is held")
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, unlock(ctx))

		select {
		case second := <-acquired:
			require.NoError(t, second(ctx))
		case <-time.After(time.Second):
			t.Fatal("second lock not acquired after unlock")
		}
	})

	t.Run("addresses are independent", func(t *testing.T) {
		l := NewMemoryLocker()
		ctx := context.Background()

		unlockAlice, err := l.Lock(ctx, aliceAddress)
		require.NoError(t, err)
		defer unlockAlice(ctx)

		unlockBob, err := l.Lock(ctx, bobAddress)
		require.NoError(t, err)
		require.NoError(t, unlockBob(ctx))
	})

	t.Run("context ends the wait", func(t *testing.T) {
		l := NewMemoryLocker()

		unlock, err := l.Lock(context.Background(), aliceAddress)
		require.NoError(t, err)
		defer unlock(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = l.Lock(ctx, aliceAddress)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unlock twice", func(t *testing.T) {
		l := NewMemoryLocker()
		ctx := context.Background()

		unlock, err := l.Lock(ctx, aliceAddress)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
		require.NoError(t, unlock(ctx))

		again, err := l.Lock(ctx, aliceAddress)
		require.NoError(t, err)
		require.NoError(t, again(ctx))
	})

	t.Run("released slots are dropped", func(t *testing.T) {
		l := NewMemoryLocker()
		ctx := context.Background()

		unlock, err := l.Lock(ctx, aliceAddress)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = l.Lock(waitCtx, aliceAddress)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, l.size())

		require.NoError(t, unlock(ctx))
		assert.Zero(t, l.size())

		for _, address := range []string{aliceAddress, bobAddress} {
			unlock, err := l.Lock(ctx, address)
			require.NoError(t, err)
			require.NoError(t, unlock(ctx))
		}
		assert.Zero(t, l.size())
	})
}

func (l *memoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

// newTestClient connects to an in-process Redis.
func newTestClient(t *testing.T, opts ...Option) (*client, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)

	c, err := NewClient(context.Background(), srv.Addr(), "", "", 0, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestNonceLockKey(t *testing.T) {
	assert.Equal(t, "availkit:nonce-lock:"+aliceAddress, nonceLockKey(aliceAddress))
}

func TestClient_Lock(t *testing.T) {
	t.Run("holds the key with a ttl", func(t *testing.T) {
		// Arrange
		c, srv := newTestClient(t, WithLockTTL(time.Minute))
		ctx := context.Background()

		// Act
		unlock, err := c.Lock(ctx, aliceAddress)
		require.NoError(t, err)

		// Assert
		key := nonceLockKey(aliceAddress)
		assert.True(t, srv.Exists(key))
		assert.Equal(t, time.Minute, srv.TTL(key))

		require.NoError(t, unlock(ctx))
		assert.False(t, srv.Exists(key))
	})

	t.Run("second holder waits for release", func(t *testing.T) {
		c, _ := newTestClient(t, WithPollInterval(10*time.Millisecond))
		ctx := context.Background()

		unlock, err := c.Lock(ctx, aliceAddress)
		require.NoError(t, err)

		acquired := make(chan error, 1)
		go func() {
			second, err := c.Lock(ctx, aliceAddress)
			if err == nil {
				err = second(ctx)
			}
			acquired <- err
		}()

		select {
		case <-acquired:
			t.Fatal("second lock acquired while the first is held")
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, unlock(ctx))

		select {
		case err := <-acquired:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("second lock not acquired after release")
		}
	})

	t.Run("context ends the wait", func(t *testing.T) {
		c, _ := newTestClient(t, WithPollInterval(5*time.Millisecond))
		ctx := context.Background()

		unlock, err := c.Lock(ctx, aliceAddress)
		require.NoError(t, err)
		defer unlock(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()

		_, err = c.Lock(waitCtx, aliceAddress)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("addresses are independent", func(t *testing.T) {
		c, _ := newTestClient(t)
		ctx := context.Background()

		unlockAlice, err := c.Lock(ctx, aliceAddress)
		require.NoError(t, err)
		defer unlockAlice(ctx)

		unlockBob, err := c.Lock(ctx, "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty")
		require.NoError(t, err)
		require.NoError(t, unlockBob(ctx))
	})

	t.Run("expired lock reports lost and keeps the new holder", func(t *testing.T) {
		c, srv := newTestClient(t, WithLockTTL(time.Second), WithPollInterval(5*time.Millisecond))
		ctx := context.Background()

		unlock, err := c.Lock(ctx, aliceAddress)
		require.NoError(t, err)

		srv.FastForward(2 * time.Second)

		// Another process takes over after expiry.
		other, err := c.Lock(ctx, aliceAddress)
		require.NoError(t, err)

		assert.ErrorIs(t, unlock(ctx), ErrLockLost)
		assert.True(t, srv.Exists(nonceLockKey(aliceAddress)))

		require.NoError(t, other(ctx))
		assert.False(t, srv.Exists(nonceLockKey(aliceAddress)))
	})

	t.Run("unlock twice reports the first result", func(t *testing.T) {
		c, _ := newTestClient(t)
		ctx := context.Background()

		unlock, err := c.Lock(ctx, aliceAddress)
		require.NoError(t, err)

		require.NoError(t, unlock(ctx))
		require.NoError(t, unlock(ctx))
	})

	t.Run("server gone", func(t *testing.T) {
		c, srv := newTestClient(t)
		srv.Close()

		_, err := c.Lock(context.Background(), aliceAddress)
		assert.Error(t, err)
	})
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, "127.0.0.1:1", "", "", 0)
	assert.Error(t, err)
}

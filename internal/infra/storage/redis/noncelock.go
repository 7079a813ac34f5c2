package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/transfer"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// nonceLockKeyPrefix namespaces the per-account transfer locks.
const nonceLockKeyPrefix = "availkit:nonce-lock"

// ErrLockLost is returned by an unlock whose lock expired and may have been
// taken by another process in the meantime.
var ErrLockLost = errors.New("nonce lock expired before release")

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func nonceLockKey(address string) string {
	return fmt.Sprintf("%s:%s", nonceLockKeyPrefix, address)
}

// Lock takes the cross-process lock of an account. The lock expires after
// the configured TTL so a crashed holder cannot block the account forever.
func (c *client) Lock(ctx context.Context, address string) (transfer.UnlockFunc, error) {
	key := nonceLockKey(address)
	token := uuid.NewString()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.conn.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			return nil, err
		}

		if ok {
			break
		}

		logger.Debug(ctx, "redis: nonce lock busy, waiting", "lock.key", key)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var (
		once      sync.Once
		unlockErr error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			deleted, err := releaseScript.Run(ctx, c.conn, []string{key}, token).Int64()
			switch {
			case err != nil:
				unlockErr = err
			case deleted == 0:
				unlockErr = fmt.Errorf("%w: %s", ErrLockLost, key)
			}
		})
		return unlockErr
	}, nil
}

var _ transfer.NonceLocker = (*client)(nil)

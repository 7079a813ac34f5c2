// Package redis holds the Redis backed implementations of the module's
// coordination interfaces.
package redis

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type client struct {
	conn         *redis.Client
	lockTTL      time.Duration
	pollInterval time.Duration
}

func (c *client) Close() error {
	return c.conn.Close()
}

type config struct {
	lockTTL      time.Duration
	pollInterval time.Duration
}

// Option customizes the client built by NewClient.
type Option func(*config)

// WithLockTTL bounds how long a nonce lock survives a crashed holder.
//
// Default: 30 seconds.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.lockTTL = ttl
	}
}

// WithPollInterval sets how often a waiting Lock retries.
//
// Default: 50 milliseconds.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		c.pollInterval = d
	}
}

// NewClient connects to Redis and checks the connection with a PING.
func NewClient(ctx context.Context, addr, username, password string, db int, opts ...Option) (*client, error) {
	cfg := config{
		lockTTL:      30 * time.Second,
		pollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &client{
		conn:         conn,
		lockTTL:      cfg.lockTTL,
		pollInterval: cfg.pollInterval,
	}, nil
}

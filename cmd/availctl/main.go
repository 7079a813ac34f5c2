package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gabapcia/availkit/internal/config"
	"github.com/gabapcia/availkit/internal/connection"
	"github.com/gabapcia/availkit/internal/handlers/cli"
	redisstorage "github.com/gabapcia/availkit/internal/infra/storage/redis"
	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/resilience/retry"
	"github.com/gabapcia/availkit/internal/pkg/telemetry"
	"github.com/gabapcia/availkit/internal/transfer"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "availctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(ctx, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()

	networks, err := cfg.Networks()
	if err != nil {
		return err
	}

	connections := connection.New(networks,
		connection.WithDialTimeout(cfg.DialTimeout),
		connection.WithRequestTimeout(cfg.RequestTimeout),
		connection.WithRateLimit(cfg.RPCRateLimit, cfg.RPCRateBurst),
		connection.WithSS58Format(cfg.SS58Format),
		connection.WithHeader(cfg.RPCHeader()),
		connection.WithReadLimit(cfg.RPCReadLimit),
	)

	var transferOpts []transfer.Option
	if cfg.Redis.Enabled() {
		locker, err := redisstorage.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB,
			redisstorage.WithLockTTL(cfg.LockTTL),
		)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer locker.Close()

		transferOpts = append(transferOpts, transfer.WithNonceLocker(locker))
	}

	connectRetry := retry.New(
		retry.WithAttempts(cfg.ConnectAttempts),
		retry.WithRetryIf(connection.IsTransient),
		retry.WithOnRetry(func(attempt uint, err error) {
			logger.Warn(ctx, "availctl: connection failed, retrying", "attempt", attempt+1, "error", err)
		}),
	)

	return cli.Run(ctx, connections, transfer.New(transferOpts...),
		cli.WithDefaultNetwork(cfg.Network),
		cli.WithRequestTimeout(cfg.RequestTimeout),
		cli.WithConnectRetry(connectRetry),
	)
}

package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/gabapcia/availkit/internal/connection"
	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/resilience/retry"
	"github.com/gabapcia/availkit/internal/transfer"

	"github.com/urfave/cli/v3"
)

type config struct {
	out            io.Writer
	defaultNetwork string
	requestTimeout time.Duration
	connectRetry   retry.Retry
}

// Option customizes the application built by Run.
type Option func(*config)

// WithOutput sets where command results are printed.
//
// Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.out = w
	}
}

// WithDefaultNetwork sets the network used when --network is not given.
//
// Default: testnet.
func WithDefaultNetwork(network string) Option {
	return func(c *config) {
		c.defaultNetwork = network
	}
}

// WithRequestTimeout bounds every one-shot command, connection included.
// Streaming commands (heads, transfer --watch) only bound the connection.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		c.requestTimeout = d
	}
}

// WithConnectRetry retries failed connections. Only transient failures
// should be retried, see connection.IsTransient.
func WithConnectRetry(r retry.Retry) Option {
	return func(c *config) {
		c.connectRetry = r
	}
}

// app carries the dependencies shared by every command.
type app struct {
	cfg         config
	connections connection.Service
	transfers   transfer.Service
}

// Run builds the availctl application and executes it with os.Args.
func Run(ctx context.Context, connections connection.Service, transfers transfer.Service, opts ...Option) error {
	return newApp(connections, transfers, opts...).Run(ctx, os.Args)
}

func newApp(connections connection.Service, transfers transfer.Service, opts ...Option) *cli.Command {
	cfg := config{
		out:            os.Stdout,
		defaultNetwork: connection.DefaultNetwork,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &app{
		cfg:         cfg,
		connections: connections,
		transfers:   transfers,
	}

	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "availctl",
		Description:           "Command-line client for Avail nodes: chain queries, Kate proofs and AVL transfers.",
		Usage:                 "availctl [--network name|uri] [command] [flags]",
		Writer:                cfg.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "network",
				Usage: "Network name (testnet, devnet, local or one from the networks file) or a ws(s)/http(s) endpoint",
				Value: cfg.defaultNetwork,
			},
		},
		Commands: []*cli.Command{
			a.chainCommand(),
			a.headCommand(),
			a.headsCommand(),
			a.blockCommand(),
			a.nonceCommand(),
			a.blockLengthCommand(),
			a.queryProofCommand(),
			a.dataProofCommand(),
			a.transferCommand(),
		},
	}
}

// withTimeout applies the request timeout to one-shot commands.
func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.requestTimeout)
}

// connect opens a connection to the selected network, retrying when
// configured to.
func (a *app) connect(ctx context.Context, c *cli.Command) (*avail.Conn, error) {
	network := c.String("network")

	if a.cfg.connectRetry == nil {
		return a.connections.Connect(ctx, network)
	}

	var conn *avail.Conn
	err := a.cfg.connectRetry.Execute(ctx, func() error {
		var err error
		conn, err = a.connections.Connect(ctx, network)
		return err
	})
	return conn, err
}

// withConn runs f on a fresh connection and disconnects afterwards.
func (a *app) withConn(ctx context.Context, c *cli.Command, f func(*avail.Conn) error) error {
	conn, err := a.connect(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			logger.Debug(ctx, "cli: disconnect failed", "error", err)
		}
	}()

	return f(conn)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.cfg.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

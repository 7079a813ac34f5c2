package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/types"

	"github.com/urfave/cli/v3"
)

type chainInfo struct {
	Chain              string     `json:"chain"`
	NodeName           string     `json:"nodeName"`
	NodeVersion        string     `json:"nodeVersion"`
	GenesisHash        types.H256 `json:"genesisHash"`
	SpecVersion        uint32     `json:"specVersion"`
	TransactionVersion uint32     `json:"transactionVersion"`
}

// headerSummary is how headers are printed.
type headerSummary struct {
	Number     uint64     `json:"number"`
	Hash       types.H256 `json:"hash"`
	ParentHash types.H256 `json:"parentHash"`
	DataRoot   types.H256 `json:"dataRoot"`
}

func summarize(h avail.DaHeader) (headerSummary, error) {
	hash, err := h.Hash()
	if err != nil {
		return headerSummary{}, err
	}

	s := headerSummary{
		Number:     uint64(h.Number),
		Hash:       hash,
		ParentHash: h.ParentHash,
	}
	if kc, ok := h.Extension.Commitment(); ok {
		s.DataRoot = kc.DataRoot
	}
	return s, nil
}

// chainCommand prints the identity of the connected chain and node.
//
//	availctl --network testnet chain
func (a *app) chainCommand() *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "Show the chain name, node version and runtime version",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := a.withTimeout(ctx)
			defer cancel()

			return a.withConn(ctx, c, func(conn *avail.Conn) error {
				chain, err := conn.Chain(ctx)
				if err != nil {
					return err
				}

				name, err := conn.Name(ctx)
				if err != nil {
					return err
				}

				version, err := conn.Version(ctx)
				if err != nil {
					return err
				}

				rv := conn.RuntimeVersion()
				return a.print(chainInfo{
					Chain:              chain,
					NodeName:           name,
					NodeVersion:        version,
					GenesisHash:        conn.GenesisHash(),
					SpecVersion:        rv.SpecVersion,
					TransactionVersion: rv.TransactionVersion,
				})
			})
		},
	}
}

// headCommand prints the latest header, or the finalized one with
// --finalized.
func (a *app) headCommand() *cli.Command {
	return &cli.Command{
		Name:  "head",
		Usage: "Show the latest block header",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "finalized",
				Usage: "Show the latest finalized header instead of the best one",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := a.withTimeout(ctx)
			defer cancel()

			return a.withConn(ctx, c, func(conn *avail.Conn) error {
				var (
					header avail.DaHeader
					err    error
				)

				if c.Bool("finalized") {
					var hash types.H256
					if hash, err = conn.FinalizedHead(ctx); err != nil {
						return err
					}
					header, err = conn.Header(ctx, hash)
				} else {
					header, err = conn.LatestHeader(ctx)
				}
				if err != nil {
					return err
				}

				summary, err := summarize(header)
				if err != nil {
					return err
				}
				return a.print(summary)
			})
		},
	}
}

// headsCommand follows new heads until interrupted or --count headers
// were printed.
func (a *app) headsCommand() *cli.Command {
	return &cli.Command{
		Name:  "heads",
		Usage: "Follow new block headers (WebSocket endpoints only)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "Stop after this many headers; 0 follows until interrupted",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			count := c.Int("count")
			if count < 0 {
				return errors.New("--count must not be negative")
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			connectCtx, cancel := a.withTimeout(ctx)
			defer cancel()

			conn, err := a.connect(connectCtx, c)
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			sub, err := conn.SubscribeNewHeads(connectCtx)
			if err != nil {
				return err
			}
			defer sub.Close(context.WithoutCancel(ctx))

			for printed := 0; count == 0 || printed < count; printed++ {
				select {
				case <-ctx.Done():
					return nil
				case err, ok := <-sub.Err():
					if ok && err != nil {
						return err
					}
					return nil
				case header, ok := <-sub.Items():
					if !ok {
						return nil
					}

					summary, err := summarize(header)
					if err != nil {
						return err
					}
					if err := a.print(summary); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

type blockOutput struct {
	headerSummary
	ExtrinsicCount int           `json:"extrinsicCount"`
	Extrinsics     []types.Bytes `json:"extrinsics"`
}

// blockCommand prints the best block, or the one named by --at, with its
// encoded extrinsics.
func (a *app) blockCommand() *cli.Command {
	return &cli.Command{
		Name:  "block",
		Usage: "Show a block and its extrinsics",
		Flags: []cli.Flag{atFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			at, err := parseAt(c)
			if err != nil {
				return err
			}

			ctx, cancel := a.withTimeout(ctx)
			defer cancel()

			return a.withConn(ctx, c, func(conn *avail.Conn) error {
				block, err := conn.Block(ctx, at)
				if err != nil {
					return err
				}

				summary, err := summarize(block.Block.Header)
				if err != nil {
					return err
				}

				extrinsics := block.Block.Extrinsics
				if extrinsics == nil {
					extrinsics = []types.Bytes{}
				}
				return a.print(blockOutput{
					headerSummary:  summary,
					ExtrinsicCount: len(extrinsics),
					Extrinsics:     extrinsics,
				})
			})
		},
	}
}

// nonceCommand prints the next nonce of an account.
func (a *app) nonceCommand() *cli.Command {
	return &cli.Command{
		Name:  "nonce",
		Usage: "Show the next nonce of an account, pending transactions included",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "SS58 address of the account",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := a.withTimeout(ctx)
			defer cancel()

			return a.withConn(ctx, c, func(conn *avail.Conn) error {
				nonce, err := conn.AccountNextIndex(ctx, c.String("address"))
				if err != nil {
					return err
				}
				return a.print(map[string]any{"address": c.String("address"), "nonce": nonce})
			})
		},
	}
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/logger"
	"github.com/gabapcia/availkit/internal/pkg/types"
	"github.com/gabapcia/availkit/internal/pkg/x/chflow"
	"github.com/gabapcia/availkit/internal/transfer"

	"github.com/urfave/cli/v3"
)

type submissionOutput struct {
	ID              string     `json:"id"`
	Hash            types.H256 `json:"hash"`
	Sender          string     `json:"sender"`
	Receiver        string     `json:"receiver"`
	Nonce           uint64     `json:"nonce"`
	AmountBaseUnits string     `json:"amountBaseUnits"`
}

func outputOf(sub transfer.Submission) submissionOutput {
	return submissionOutput{
		ID:              sub.ID.String(),
		Hash:            sub.Hash,
		Sender:          sub.Sender,
		Receiver:        sub.Receiver,
		Nonce:           sub.Nonce,
		AmountBaseUnits: sub.Amount.String(),
	}
}

// transferCommand sends whole AVL from the account of --secret.
//
//	AVAIL_SECRET='//Alice' availctl --network local transfer --to 5FHneW46... --amount 1 --watch
func (a *app) transferCommand() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer AVL to an account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "secret",
				Usage:    "Mnemonic, hex seed or dev URI (//Alice) of the sender",
				Sources:  cli.EnvVars("AVAIL_SECRET"),
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "SS58 address of the receiver",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Whole AVL to send",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Follow the transaction until it is finalized, dropped or invalid",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			amount, err := transfer.ParseAmount(c.String("amount"))
			if err != nil {
				return err
			}

			req := transfer.Request{
				Secret:   c.String("secret"),
				Receiver: c.String("to"),
				Amount:   amount,
			}

			if !c.Bool("watch") {
				ctx, cancel := a.withTimeout(ctx)
				defer cancel()

				return a.withConn(ctx, c, func(conn *avail.Conn) error {
					sub, err := a.transfers.Transfer(ctx, conn, req)
					if err != nil {
						return err
					}
					return a.print(outputOf(sub))
				})
			}

			return a.transferAndWatch(ctx, c, req)
		},
	}
}

func (a *app) transferAndWatch(ctx context.Context, c *cli.Command, req transfer.Request) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	submitCtx, cancel := a.withTimeout(ctx)
	defer cancel()

	conn, err := a.connect(submitCtx, c)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	w, err := a.transfers.TransferAndWatch(submitCtx, conn, req)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Debug(ctx, "cli: closing transfer watch failed", "error", err)
		}
	}()

	if err := a.print(outputOf(w.Submission)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case status, ok := <-w.Updates():
			if !ok {
				return chflow.FirstError(w.Err())
			}
			if err := a.print(status); err != nil {
				return err
			}
		}
	}
}

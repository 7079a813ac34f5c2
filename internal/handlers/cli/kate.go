package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/types"

	"github.com/urfave/cli/v3"
)

var ErrInvalidFlag = errors.New("invalid flag value")

func atFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "at",
		Usage: "Block hash to query; defaults to the best block",
	}
}

// parseAt returns the --at block hash, nil when unset.
func parseAt(c *cli.Command) (*types.H256, error) {
	raw := c.String("at")
	if raw == "" {
		return nil, nil
	}

	hash, err := types.H256FromHex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: --at: %w", ErrInvalidFlag, err)
	}
	return &hash, nil
}

// parseCell parses "row:col".
func parseCell(s string) (avail.Cell, error) {
	rawRow, rawCol, ok := strings.Cut(s, ":")
	if !ok {
		return avail.Cell{}, fmt.Errorf("%w: cell %q, expected row:col", ErrInvalidFlag, s)
	}

	row, err := strconv.ParseUint(strings.TrimSpace(rawRow), 10, 32)
	if err != nil {
		return avail.Cell{}, fmt.Errorf("%w: cell %q: %w", ErrInvalidFlag, s, err)
	}

	col, err := strconv.ParseUint(strings.TrimSpace(rawCol), 10, 32)
	if err != nil {
		return avail.Cell{}, fmt.Errorf("%w: cell %q: %w", ErrInvalidFlag, s, err)
	}

	return avail.Cell{Row: uint32(row), Col: uint32(col)}, nil
}

func (a *app) blockLengthCommand() *cli.Command {
	return &cli.Command{
		Name:  "block-length",
		Usage: "Show the block length limits and the data matrix dimensions (kate_blockLength)",
		Flags: []cli.Flag{atFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			at, err := parseAt(c)
			if err != nil {
				return err
			}

			ctx, cancel := a.withTimeout(ctx)
			defer cancel()

			return a.withConn(ctx, c, func(conn *avail.Conn) error {
				length, err := conn.BlockLength(ctx, at)
				if err != nil {
					return err
				}
				return a.print(length)
			})
		},
	}
}

func (a *app) queryProofCommand() *cli.Command {
	return &cli.Command{
		Name:  "query-proof",
		Usage: "Fetch the Kate proof of data matrix cells (kate_queryProof)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "cell",
				Usage:    "Cell as row:col; repeat for several cells",
				Required: true,
			},
			atFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			at, err := parseAt(c)
			if err != nil {
				return err
			}

			var cells []avail.Cell
			for _, raw := range c.StringSlice("cell") {
				cell, err := parseCell(raw)
				if err != nil {
					return err
				}
				cells = append(cells, cell)
			}

			ctx, cancel := a.withTimeout(ctx)
			defer cancel()

			return a.withConn(ctx, c, func(conn *avail.Conn) error {
				proof, err := conn.QueryProof(ctx, cells, at)
				if err != nil {
					return err
				}
				return a.print(map[string]any{"cells": cells, "proof": proof})
			})
		},
	}
}

func (a *app) dataProofCommand() *cli.Command {
	return &cli.Command{
		Name:  "data-proof",
		Usage: "Fetch the Merkle proof of a data submission (kate_queryDataProof)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "index",
				Usage:    "Index of the data submission within the block",
				Required: true,
			},
			atFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			index := c.Int("index")
			if index < 0 || uint64(index) > uint64(^uint32(0)) {
				return fmt.Errorf("%w: --index %d out of range", ErrInvalidFlag, index)
			}

			at, err := parseAt(c)
			if err != nil {
				return err
			}

			ctx, cancel := a.withTimeout(ctx)
			defer cancel()

			return a.withConn(ctx, c, func(conn *avail.Conn) error {
				proof, err := conn.QueryDataProof(ctx, uint32(index), at)
				if err != nil {
					return err
				}
				return a.print(proof)
			})
		},
	}
}

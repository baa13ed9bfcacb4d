package cli

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/pkg/validator"

	"github.com/urfave/cli/v3"
)

func chainFlag() *cli.Uint64Flag {
	return &cli.Uint64Flag{
		Name:     "chain",
		Usage:    "Chain id of the network to connect to (e.g., 1 for Ethereum)",
		Required: true,
	}
}

func addressFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "address",
		Usage:    usage,
		Required: true,
	}
}

func parseAddress(raw string) (common.Address, error) {
	if err := validator.ValidateVar(raw, "required,checksum_addr"); err != nil {
		return common.Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return common.HexToAddress(raw), nil
}

// startCommand runs the watcher as a daemon.
//
//	txwatch start --chain 1 --address 0xABC123...
//
// The process runs until it receives SIGINT or SIGTERM.
func startCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "start",
		Description: "Watches an account, following the chain head and backfilling timestamps.",
		Usage:       "Runs the watcher until Ctrl+C or a termination signal.",
		Flags: []cli.Flag{
			chainFlag(),
			addressFlag("Account address to watch"),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := parseAddress(c.String("address"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.Run(ctx, c.Uint64("chain"), address)
		},
	}
}

// syncCommand runs one fetch cycle and prints what is stored afterwards.
//
//	txwatch sync --chain 1 --address 0xABC123... [--force-chain]
func syncCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "sync",
		Description: "Runs a single fetch cycle for an account and prints a summary.",
		Usage:       "Fetches new transactions once. --force-chain skips the explorer.",
		Flags: []cli.Flag{
			chainFlag(),
			addressFlag("Account address to sync"),
			&cli.BoolFlag{
				Name:  "force-chain",
				Usage: "Scan node logs instead of querying the block explorer",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := parseAddress(c.String("address"))
			if err != nil {
				return err
			}

			sets, err := app.Sync(ctx, c.Uint64("chain"), address, c.Bool("force-chain"))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, txType := range slices.Sorted(maps.Keys(sets)) {
				set := sets[txType]
				fmt.Fprintf(w, "%-8s transactions=%d last_block=%d\n", txType, len(set.Transactions), set.LastBlockQueried)
			}
			return nil
		},
	}
}

// forgetCommand removes every stored transaction of an address.
//
//	txwatch forget --address 0xABC123...
func forgetCommand(app App) *cli.Command {
	return &cli.Command{
		Name:        "forget",
		Description: "Removes every stored transaction of an account on every chain.",
		Usage:       "Deletes the stored history of an address.",
		Flags: []cli.Flag{
			addressFlag("Account address to forget"),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := parseAddress(c.String("address"))
			if err != nil {
				return err
			}
			return app.Forget(ctx, address)
		},
	}
}

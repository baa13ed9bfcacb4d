package cli

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/txwatcher"

	"github.com/urfave/cli/v3"
)

// App is what the commands drive.
type App interface {
	// Run watches address on chainID until ctx is done.
	Run(ctx context.Context, chainID uint64, address common.Address) error

	// Sync runs a single fetch cycle and returns the account's sets on chainID.
	Sync(ctx context.Context, chainID uint64, address common.Address, forceChain bool) (map[txwatcher.TransactionType]txwatcher.TransactionSet, error)

	// Forget removes every stored transaction of address.
	Forget(ctx context.Context, address common.Address) error
}

// Command returns the txwatch command tree.
func Command(app App) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "txwatch",
		Description:           "Discovers and reconciles the transaction history of a wallet account.",
		Usage:                 "txwatch [command] [flags]",
		Commands: []*cli.Command{
			startCommand(app),
			syncCommand(app),
			forgetCommand(app),
		},
	}
}

// Run parses os.Args and executes the matching command.
func Run(ctx context.Context, app App) error {
	return Command(app).Run(ctx, os.Args)
}

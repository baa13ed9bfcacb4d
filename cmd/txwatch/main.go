// Command txwatch discovers and reconciles the transaction history of a
// wallet account.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gabapcia/txwatch/internal/config"
	"github.com/gabapcia/txwatch/internal/handlers/cli"
	"github.com/gabapcia/txwatch/internal/network"
	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		return 1
	}
	defer logger.Sync()

	shutdown := telemetry.ShutdownFunc(telemetry.Nop)
	if cfg.TelemetryEnabled {
		if shutdown, err = telemetry.Init(ctx, cfg.ServiceName,
			telemetry.WithServiceVersion(version),
			telemetry.WithMetricInterval(cfg.TelemetryInterval),
		); err != nil {
			logger.Error(ctx, "failed to initialize telemetry", "error", err)
			return 1
		}
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error(ctx, "failed to shut down telemetry", "error", err)
		}
	}()

	networks, err := network.Load(cfg.NetworksFile)
	if err != nil {
		logger.Error(ctx, "failed to load networks", "networks.file", cfg.NetworksFile, "error", err)
		return 1
	}

	if err := cli.Run(ctx, newApp(cfg, networks)); err != nil {
		logger.Error(ctx, "command failed", "error", err)
		return 1
	}
	return 0
}

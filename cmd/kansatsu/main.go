// Command kansatsu inspects agent telemetry recorded by the kansatsu
// library: validating golden datasets, replaying the span log into
// aggregate metrics, and serving the data over MCP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kansatsu-ai/kansatsu/internal/config"
	"github.com/kansatsu-ai/kansatsu/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kansatsu: load config: %v\n", err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd(cfg, logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func newRootCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "kansatsu",
		Short:         "Agent telemetry and eval tooling",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newValidateCmd(cfg, logger),
		newTraceCmd(cfg, logger),
		newMetricsCmd(cfg, logger),
		newRecentCmd(cfg, logger),
		newMCPCmd(cfg, logger),
	)

	return root
}

// initTelemetry starts the OTEL pipeline for long-running commands and
// returns a shutdown func. A no-op pipeline is used when no endpoint is
// configured.
func initTelemetry(ctx context.Context, cfg config.Config) (telemetry.Shutdown, error) {
	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return shutdown, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kansatsu-ai/kansatsu/internal/config"
	"github.com/kansatsu-ai/kansatsu/internal/golden"
	"github.com/kansatsu-ai/kansatsu/internal/mcp"
	"github.com/kansatsu-ai/kansatsu/internal/model"
	"github.com/kansatsu-ai/kansatsu/internal/report"
	"github.com/kansatsu-ai/kansatsu/internal/spanlog"
	"github.com/kansatsu-ai/kansatsu/internal/store"
)

func newValidateCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate golden dataset files in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.GoldenDir
			if len(args) == 1 {
				dir = args[0]
			}
			return validateDir(cmd, logger, dir)
		},
	}
}

func validateDir(cmd *cobra.Command, logger *slog.Logger, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dataset dir: %w", err)
	}

	var checked, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}

		path := filepath.Join(dir, entry.Name())
		checked++
		ds, err := golden.Load(path)
		if err != nil {
			failed++
			cmd.Printf("INVALID  %s\n  %v\n", path, err)
			continue
		}
		total := len(ds.Structured) + len(ds.ToolCalls) + len(ds.Decisions) + len(ds.Memory)
		cmd.Printf("OK       %s (%d cases)\n", path, total)
	}

	if checked == 0 {
		return fmt.Errorf("no dataset files found in %s", dir)
	}
	logger.Info("validation complete", "checked", checked, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d dataset files invalid", failed, checked)
	}
	return nil
}

func newTraceCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <trace_id>",
		Short: "Print all spans recorded under a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSpanData(cmd.Context(), cfg, logger, func(ctx context.Context, reader spanReader) error {
				spans, err := reader.SpansByTrace(ctx, args[0])
				if err != nil {
					return err
				}
				return printSpans(cmd, spans)
			})
		},
	}
}

func newRecentCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recently recorded spans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = cfg.RecentSpans
			}
			return withSpanData(cmd.Context(), cfg, logger, func(ctx context.Context, reader spanReader) error {
				spans, err := reader.Recent(ctx, limit)
				if err != nil {
					return err
				}
				return printSpans(cmd, spans)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum spans to print")
	return cmd
}

func newMetricsCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Replay the span log and print aggregate metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSpanData(cmd.Context(), cfg, logger, func(ctx context.Context, reader spanReader) error {
				metrics, err := reader.ReplayMetrics(ctx)
				if err != nil {
					return err
				}
				cmd.Print(report.FormatMetrics(metrics))
				return nil
			})
		},
	}
}

func newMCPCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve recorded telemetry over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			shutdown, err := initTelemetry(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.Background()) }()

			log, err := spanlog.New(logger, cfg.SpanLogPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			var st *store.Store
			if cfg.StorePath != "" {
				st, err = store.Open(ctx, logger, cfg.StorePath)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
			}

			logger.Info("mcp server starting", "span_log", cfg.SpanLogPath, "store", cfg.StorePath)
			return mcp.New(log, st, logger).ServeStdio()
		},
	}
}

// spanReader abstracts the span log and the SQLite index behind the read
// operations the CLI needs.
type spanReader interface {
	SpansByTrace(ctx context.Context, traceID string) ([]model.Span, error)
	Recent(ctx context.Context, n int) ([]model.Span, error)
	ReplayMetrics(ctx context.Context) (model.Metrics, error)
}

// logReader adapts spanlog.Log to spanReader.
type logReader struct {
	log *spanlog.Log
}

func (r logReader) SpansByTrace(_ context.Context, traceID string) ([]model.Span, error) {
	return r.log.ByTrace(traceID)
}

func (r logReader) Recent(_ context.Context, n int) ([]model.Span, error) {
	return r.log.Recent(n)
}

func (r logReader) ReplayMetrics(_ context.Context) (model.Metrics, error) {
	spans, err := r.log.All()
	if err != nil {
		return model.Metrics{}, err
	}
	return model.Accumulate(spans), nil
}

// withSpanData opens the configured span source, runs fn against it, and
// closes it. The SQLite index is preferred when configured.
func withSpanData(ctx context.Context, cfg config.Config, logger *slog.Logger, fn func(context.Context, spanReader) error) error {
	if cfg.StorePath != "" {
		st, err := store.Open(ctx, logger, cfg.StorePath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		return fn(ctx, st)
	}

	log, err := spanlog.New(logger, cfg.SpanLogPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()
	return fn(ctx, logReader{log: log})
}

func printSpans(cmd *cobra.Command, spans []model.Span) error {
	if len(spans) == 0 {
		cmd.Println("no spans found")
		return nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(spans)
}

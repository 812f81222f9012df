// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	// Telemetry sink settings.
	SpanLogPath string // Append-only JSONL span log.
	StorePath   string // SQLite span index; empty disables it.

	// Eval settings.
	GoldenDir       string // Directory of golden dataset files.
	EvalParallelism int    // Concurrent cases per suite; 1 = sequential.

	// OTEL settings (self-observability of the observer).
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel    string
	RecentSpans int // Default span count for recent-span queries.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		SpanLogPath:     envStr("KANSATSU_SPAN_LOG", "agent_telemetry.jsonl"),
		StorePath:       envStr("KANSATSU_STORE", ""),
		GoldenDir:       envStr("KANSATSU_GOLDEN_DIR", "evals/golden"),
		EvalParallelism: envInt("KANSATSU_EVAL_PARALLELISM", 1),
		OTELEndpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:     envStr("OTEL_SERVICE_NAME", "kansatsu"),
		LogLevel:        envStr("KANSATSU_LOG_LEVEL", "info"),
		RecentSpans:     envInt("KANSATSU_RECENT_SPANS", 10),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.SpanLogPath == "" {
		return fmt.Errorf("config: KANSATSU_SPAN_LOG is required")
	}
	if c.EvalParallelism < 1 {
		return fmt.Errorf("config: KANSATSU_EVAL_PARALLELISM must be at least 1")
	}
	if c.RecentSpans <= 0 {
		return fmt.Errorf("config: KANSATSU_RECENT_SPANS must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

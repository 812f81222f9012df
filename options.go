package kansatsu

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all configuration after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger      *slog.Logger
	version     string
	spanLogPath string
	storePath   string
	agent       Agent
	parallelism int
	gauges      bool
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithSpanLogPath overrides the span log path from config (KANSATSU_SPAN_LOG env var).
func WithSpanLogPath(path string) Option {
	return func(o *resolvedOptions) { o.spanLogPath = path }
}

// WithStorePath overrides the SQLite index path from config (KANSATSU_STORE
// env var). An empty path leaves the index disabled.
func WithStorePath(path string) Option {
	return func(o *resolvedOptions) { o.storePath = path }
}

// WithAgent sets the adapter the eval runner drives. Required before
// calling RunEvals; telemetry recording works without it.
func WithAgent(agent Agent) Option {
	return func(o *resolvedOptions) { o.agent = agent }
}

// WithEvalParallelism allows up to n golden cases in flight at once.
// Result order stays deterministic. Memory-cycle cases always run
// sequentially because their store and query steps share agent state.
func WithEvalParallelism(n int) Option {
	return func(o *resolvedOptions) { o.parallelism = n }
}

// WithMeterGauges registers OpenTelemetry observable gauges for the
// recorder's counters on the global meter provider.
func WithMeterGauges() Option {
	return func(o *resolvedOptions) { o.gauges = true }
}

// Package kansatsu is the public API for embedding agent telemetry and
// eval-suite tooling in a Go agent.
//
// Consumers construct an App, record spans while the agent runs, and
// replay golden datasets against an adapter:
//
//	app, err := kansatsu.New(
//	    kansatsu.WithLogger(logger),
//	    kansatsu.WithAgent(myAdapter),
//	)
//	if err != nil { ... }
//	defer app.Close()
//
//	app.StartTrace()
//	app.LogLLMCall(len(prompt), len(resp), elapsed)
//	fmt.Print(app.Summary())
//
// The import graph enforces a strict no-cycle rule: kansatsu (root)
// imports internal/*, but internal/* never imports kansatsu (root).
// Public types (Metrics, SuiteResult, etc.) are standalone structs with
// no internal imports; conversion helpers live here because this is the
// only file that sees both sides of the boundary.
package kansatsu

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/kansatsu-ai/kansatsu/internal/config"
	"github.com/kansatsu-ai/kansatsu/internal/eval"
	"github.com/kansatsu-ai/kansatsu/internal/golden"
	"github.com/kansatsu-ai/kansatsu/internal/mcp"
	"github.com/kansatsu-ai/kansatsu/internal/model"
	"github.com/kansatsu-ai/kansatsu/internal/recorder"
	"github.com/kansatsu-ai/kansatsu/internal/report"
	"github.com/kansatsu-ai/kansatsu/internal/spanlog"
	"github.com/kansatsu-ai/kansatsu/internal/store"
	"github.com/kansatsu-ai/kansatsu/internal/telemetry"
)

// App owns the telemetry pipeline and eval runner lifecycle. Construct
// with New(), release with Close(). App has no public fields — use New()
// options to configure it.
type App struct {
	cfg          config.Config
	log          *spanlog.Log
	store        *store.Store // nil when no index path is configured
	rec          *recorder.Recorder
	runner       *eval.Runner // nil when no agent is configured
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the telemetry pipeline. It opens the span log, the
// optional SQLite index, and the OTEL exporters, and returns a
// ready-to-record App. It does not start any goroutines.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.spanLogPath != "" {
		cfg.SpanLogPath = o.spanLogPath
	}
	if o.storePath != "" {
		cfg.StorePath = o.storePath
	}
	if o.parallelism > 1 {
		cfg.EvalParallelism = o.parallelism
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kansatsu starting", "version", version, "span_log", cfg.SpanLogPath)

	// Initialize OpenTelemetry. A no-op pipeline is installed when no
	// endpoint is configured, so recording never depends on a collector.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	log, err := spanlog.New(logger, cfg.SpanLogPath)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	sinks := []recorder.Sink{log}
	var st *store.Store
	if cfg.StorePath != "" {
		st, err = store.Open(context.Background(), logger, cfg.StorePath)
		if err != nil {
			_ = log.Close()
			_ = otelShutdown(context.Background())
			return nil, err
		}
		sinks = append(sinks, st)
	}

	rec := recorder.New(logger, sinks...)
	if o.gauges {
		rec.RegisterMetrics()
	}

	var runner *eval.Runner
	if o.agent != nil {
		runner = eval.New(agentAdapter{agent: o.agent}, logger,
			eval.WithParallelism(cfg.EvalParallelism))
	}

	return &App{
		cfg:          cfg,
		log:          log,
		store:        st,
		rec:          rec,
		runner:       runner,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Close flushes and releases the span log, the SQLite index, and the
// OTEL exporters.
func (a *App) Close() error {
	var firstErr error
	if err := a.log.Close(); err != nil {
		firstErr = err
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.otelShutdown(context.Background()); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ---------- recording ----------

// CallOption modifies how a call span is recorded.
type CallOption func(*callOpts)

type callOpts struct {
	attempt int
	errText string
}

// WithAttempt marks the span as the nth attempt. Attempts past the first
// count as retries.
func WithAttempt(n int) CallOption {
	return func(o *callOpts) { o.attempt = n }
}

// WithCallError marks the span as failed.
func WithCallError(err error) CallOption {
	return func(o *callOpts) {
		if err != nil {
			o.errText = err.Error()
		}
	}
}

func convertOpts(opts []CallOption) []recorder.CallOption {
	var o callOpts
	for _, fn := range opts {
		fn(&o)
	}
	var out []recorder.CallOption
	if o.attempt > 0 {
		out = append(out, recorder.WithAttempt(o.attempt))
	}
	if o.errText != "" {
		out = append(out, recorder.WithFailure(o.errText))
	}
	return out
}

// StartTrace begins a new trace and returns its id. Spans recorded before
// the first StartTrace carry the "no-trace" marker.
func (a *App) StartTrace() string {
	return a.rec.StartTrace()
}

// CurrentTrace returns the active trace id.
func (a *App) CurrentTrace() string {
	return a.rec.CurrentTrace()
}

// LogLLMCall records a model invocation span.
func (a *App) LogLLMCall(promptLen, responseLen int, duration time.Duration, opts ...CallOption) {
	a.rec.LogLLMCall(promptLen, responseLen, duration, convertOpts(opts)...)
}

// LogToolCall records a tool selection span.
func (a *App) LogToolCall(tool string, args map[string]any, duration time.Duration, opts ...CallOption) {
	a.rec.LogToolCall(tool, args, duration, convertOpts(opts)...)
}

// LogToolExecution records a tool execution span. It does not count
// toward tool-call metrics.
func (a *App) LogToolExecution(tool, result string, duration time.Duration, opts ...CallOption) {
	a.rec.LogToolExecution(tool, result, duration, convertOpts(opts)...)
}

// LogMemoryOp records a memory operation span.
func (a *App) LogMemoryOp(operation, data string) {
	a.rec.LogMemoryOp(operation, data)
}

// LogDecision records a decision span.
func (a *App) LogDecision(choices []string, selected string, duration time.Duration) {
	a.rec.LogDecision(choices, selected, duration)
}

// Metrics returns a consistent snapshot of the recorded counters with
// derived values filled in.
func (a *App) Metrics() Metrics {
	return toPublicMetrics(a.rec.Metrics())
}

// Summary renders the telemetry summary banner.
func (a *App) Summary() string {
	return a.rec.Summary()
}

// Errors exposes non-fatal sink failures. The channel is buffered and
// never blocks recording; drain it to observe degraded persistence.
func (a *App) Errors() <-chan error {
	return a.rec.Errors()
}

// ---------- evals ----------

// RunEvals loads a golden dataset file and replays every suite it
// contains against the configured agent, in stable suite order.
func (a *App) RunEvals(ctx context.Context, datasetPath string) ([]SuiteResult, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("kansatsu: no agent configured, use WithAgent")
	}

	ds, err := golden.Load(datasetPath)
	if err != nil {
		return nil, err
	}

	suites := a.runner.RunAll(ctx, ds)
	out := make([]SuiteResult, len(suites))
	for i, s := range suites {
		out[i] = toPublicSuite(s)
	}
	return out, nil
}

// FormatReport renders the eval report banner for suite results.
func (a *App) FormatReport(suites []SuiteResult) string {
	internal := make([]model.EvalSuiteResult, len(suites))
	for i, s := range suites {
		internal[i] = toInternalSuite(s)
	}
	return report.FormatOverall(internal)
}

// ---------- mcp ----------

// ServeMCP serves recorded telemetry over MCP on stdio until the client
// disconnects.
func (a *App) ServeMCP() error {
	return mcp.New(a.log, a.store, a.logger).ServeStdio()
}

// ---------- boundary conversion ----------

// agentAdapter bridges the public Agent interface to the eval runner.
type agentAdapter struct {
	agent Agent
}

func (ad agentAdapter) GenerateStructured(ctx context.Context, input, schema string) (eval.StructuredResult, error) {
	res, err := ad.agent.GenerateStructured(ctx, input, schema)
	return eval.StructuredResult{Fields: res.Fields, ParseFailed: res.ParseFailed}, err
}

func (ad agentAdapter) RequestTool(ctx context.Context, input string) (eval.ToolCall, error) {
	call, err := ad.agent.RequestTool(ctx, input)
	return eval.ToolCall{Tool: call.Tool, Arguments: call.Arguments}, err
}

func (ad agentAdapter) Decide(ctx context.Context, input string, choices []string) (string, error) {
	return ad.agent.Decide(ctx, input, choices)
}

func (ad agentAdapter) Store(ctx context.Context, input string) (string, error) {
	return ad.agent.Store(ctx, input)
}

func (ad agentAdapter) Query(ctx context.Context, input string) (string, error) {
	return ad.agent.Query(ctx, input)
}

func toPublicMetrics(m model.Metrics) Metrics {
	return Metrics{
		LLMCalls:        m.LLMCalls,
		LLMFailures:     m.LLMFailures,
		LLMRetries:      m.LLMRetries,
		ToolCalls:       m.ToolCalls,
		ToolFailures:    m.ToolFailures,
		MemoryOps:       m.MemoryOps,
		TotalLatencyMs:  m.TotalLatencyMs,
		AvgLatencyMs:    m.AvgLatencyMs(),
		LLMSuccessRate:  m.LLMSuccessRate(),
		ToolSuccessRate: m.ToolSuccessRate(),
	}
}

func toPublicSuite(s model.EvalSuiteResult) SuiteResult {
	out := SuiteResult{
		Name:    s.Name,
		Passed:  s.Passed,
		Failed:  s.Failed,
		Results: make([]EvalResult, len(s.Results)),
	}
	for i, r := range s.Results {
		out.Results[i] = EvalResult(r)
	}
	return out
}

func toInternalSuite(s SuiteResult) model.EvalSuiteResult {
	out := model.EvalSuiteResult{
		Name:    s.Name,
		Passed:  s.Passed,
		Failed:  s.Failed,
		Results: make([]model.EvalResult, len(s.Results)),
	}
	for i, r := range s.Results {
		out.Results[i] = model.EvalResult(r)
	}
	return out
}

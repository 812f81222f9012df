// Package recorder implements the telemetry recorder: it stamps spans with
// the current trace id, persists them to the append-only span log, and
// maintains the in-process metrics aggregate.
//
// All mutation (counter increments and sink appends) happens under one
// mutex, so concurrent callers never corrupt counts or interleave records.
// A sink write failure degrades telemetry to metrics-only: the metrics
// update still happens, the failure is surfaced on Errors(), and the
// caller's primary operation is never interrupted.
package recorder

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kansatsu-ai/kansatsu/internal/model"
	"github.com/kansatsu-ai/kansatsu/internal/report"
	"github.com/kansatsu-ai/kansatsu/internal/telemetry"
)

// errChanCapacity bounds the non-fatal sink error channel. When the host
// does not drain it, further errors are dropped with a log warning rather
// than blocking the instrumented agent.
const errChanCapacity = 16

// Sink receives every recorded span. *spanlog.Log and *store.Store satisfy
// it. The recorder does not own a span after the append returns.
type Sink interface {
	Append(span model.Span) error
}

// Recorder creates traces and spans, persists them, and aggregates metrics.
// One instance per instrumented agent process; safe for concurrent use.
type Recorder struct {
	logger *slog.Logger
	sinks  []Sink

	mu           sync.Mutex
	traceID      string
	metrics      model.Metrics
	sinkFailures int64

	errs chan error
}

// New creates a recorder writing to the given sinks. A recorder with no
// sinks aggregates metrics only.
func New(logger *slog.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		logger: logger,
		sinks:  sinks,
		errs:   make(chan error, errChanCapacity),
	}
}

// StartTrace generates a fresh trace id and makes it current for
// subsequent log calls. Returns the new id.
func (r *Recorder) StartTrace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traceID = model.NewShortID()
	return r.traceID
}

// CurrentTrace returns the active trace id, or model.NoTrace if no trace
// has been started.
func (r *Recorder) CurrentTrace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.traceID == "" {
		return model.NoTrace
	}
	return r.traceID
}

// CallOption modifies how a call span is recorded.
type CallOption func(*callOpts)

type callOpts struct {
	attempt int
	errText string
}

// WithAttempt marks the retry attempt number (1 = first try). Attempts
// beyond the first increment the retry counter.
func WithAttempt(n int) CallOption {
	return func(o *callOpts) { o.attempt = n }
}

// WithFailure marks the call as failed with the given error text.
func WithFailure(errText string) CallOption {
	return func(o *callOpts) { o.errText = errText }
}

// LogLLMCall records one language-model invocation.
func (r *Recorder) LogLLMCall(promptLen, responseLen int, duration time.Duration, opts ...CallOption) {
	o := applyOpts(opts)
	durMs := roundMs(duration)
	data := model.LLMCallData{
		PromptLength:   promptLen,
		ResponseLength: responseLen,
		Attempt:        o.attempt,
		Success:        o.errText == "",
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.append(r.span(model.EventLLMCall, durMs, data.Attributes(), o.errText))

	r.metrics.LLMCalls++
	r.metrics.TotalLatencyMs += durMs
	if o.errText != "" {
		r.metrics.LLMFailures++
	}
	if o.attempt > 1 {
		r.metrics.LLMRetries++
	}
}

// LogToolCall records the agent selecting a tool with arguments.
func (r *Recorder) LogToolCall(tool string, args map[string]any, duration time.Duration, opts ...CallOption) {
	o := applyOpts(opts)
	data := model.ToolCallData{Tool: tool, Arguments: args}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.append(r.span(model.EventToolCall, roundMs(duration), data.Attributes(), o.errText))

	r.metrics.ToolCalls++
	if o.errText != "" {
		r.metrics.ToolFailures++
	}
}

// LogToolExecution records the outcome of executing a selected tool.
// Execution spans carry the (truncated) result but do not count as a
// second tool call in the metrics.
func (r *Recorder) LogToolExecution(tool, result string, duration time.Duration, opts ...CallOption) {
	o := applyOpts(opts)
	data := model.ToolExecutionData{Tool: tool, Result: result}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.append(r.span(model.EventToolExecution, roundMs(duration), data.Attributes(), o.errText))
}

// LogMemoryOp records a memory operation (add, get, clear).
func (r *Recorder) LogMemoryOp(operation, data string) {
	payload := model.MemoryOpData{Operation: operation, Data: data}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.append(r.span(model.EventMemoryOp, 0, payload.Attributes(), ""))
	r.metrics.MemoryOps++
}

// LogDecision records a routing decision between choices.
func (r *Recorder) LogDecision(choices []string, selected string, duration time.Duration) {
	data := model.DecisionData{Choices: choices, Selected: selected}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.append(r.span(model.EventDecision, roundMs(duration), data.Attributes(), ""))
}

// Metrics returns a consistent snapshot of the running aggregate.
func (r *Recorder) Metrics() model.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// Summary renders the current metrics snapshot as a human-readable banner.
func (r *Recorder) Summary() string {
	return report.FormatMetrics(r.Metrics())
}

// SinkFailures returns the number of span appends that failed.
func (r *Recorder) SinkFailures() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinkFailures
}

// Errors exposes non-fatal sink failures to the host. The channel is
// buffered; when full, further errors are dropped (and logged) so logging
// never blocks the instrumented agent.
func (r *Recorder) Errors() <-chan error {
	return r.errs
}

// span builds a new span stamped with the current trace id. Caller holds r.mu.
func (r *Recorder) span(et model.EventType, durMs float64, data map[string]any, errText string) model.Span {
	traceID := r.traceID
	if traceID == "" {
		traceID = model.NoTrace
	}
	return model.Span{
		SpanID:     model.NewShortID(),
		TraceID:    traceID,
		EventType:  et,
		Timestamp:  time.Now().UTC(),
		DurationMs: durMs,
		Data:       data,
		Error:      errText,
	}
}

// append writes the span to every sink. Caller holds r.mu, which is what
// keeps appends linearizable with the metric updates that follow.
func (r *Recorder) append(span model.Span) {
	for _, sink := range r.sinks {
		err := sink.Append(span)
		if err == nil {
			continue
		}
		r.sinkFailures++
		select {
		case r.errs <- err:
		default:
			r.logger.Warn("recorder: error channel full, dropping sink failure", "error", err)
		}
	}
}

// RegisterMetrics registers observable OTEL gauges mirroring the aggregate.
// Call after the global meter provider has been initialized.
func (r *Recorder) RegisterMetrics() {
	meter := telemetry.Meter("kansatsu/recorder")

	gauge := func(name, desc string, read func(model.Metrics) int64) {
		_, _ = meter.Int64ObservableGauge(name,
			metric.WithDescription(desc),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(read(r.Metrics()))
				return nil
			}),
		)
	}

	gauge("kansatsu.recorder.llm_calls", "Total recorded LLM calls",
		func(m model.Metrics) int64 { return m.LLMCalls })
	gauge("kansatsu.recorder.llm_failures", "Total failed LLM calls",
		func(m model.Metrics) int64 { return m.LLMFailures })
	gauge("kansatsu.recorder.tool_calls", "Total recorded tool calls",
		func(m model.Metrics) int64 { return m.ToolCalls })
	gauge("kansatsu.recorder.tool_failures", "Total failed tool calls",
		func(m model.Metrics) int64 { return m.ToolFailures })
	gauge("kansatsu.recorder.memory_operations", "Total recorded memory operations",
		func(m model.Metrics) int64 { return m.MemoryOps })

	_, _ = meter.Int64ObservableGauge("kansatsu.recorder.sink_failures",
		metric.WithDescription("Span appends that failed; non-zero means telemetry degraded to metrics-only"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.SinkFailures())
			return nil
		}),
	)
}

func applyOpts(opts []CallOption) callOpts {
	o := callOpts{attempt: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func roundMs(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000*100) / 100
}

// Package eval executes golden datasets against an agent adapter and
// produces pass/fail suite results.
//
// Eval runs are regression tests: they are deterministic for a given agent
// behavior, independent of live telemetry state, and one bad case never
// aborts its siblings. Semantic mismatches and adapter errors are both
// recovered into failed results; nothing here is fatal except the caller
// failing to load a dataset in the first place.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kansatsu-ai/kansatsu/internal/golden"
	"github.com/kansatsu-ai/kansatsu/internal/model"
)

// Suite names, in the stable order RunAll reports them.
const (
	SuiteStructuredOutput = "Structured Output"
	SuiteToolCalls        = "Tool Calls"
	SuiteDecisions        = "Decisions"
	SuiteMemoryCycle      = "Memory Cycle"
)

// StructuredResult is the outcome of the agent's structured-generation
// capability. ParseFailed distinguishes "the model's JSON did not parse"
// from a legitimately empty field mapping.
type StructuredResult struct {
	Fields      map[string]any
	ParseFailed bool
}

// ToolCall is the agent's selected tool with its argument mapping.
type ToolCall struct {
	Tool      string
	Arguments map[string]any
}

// Agent is the adapter boundary to the system under test. Implementations
// wrap a live agent; the runner never interprets how responses are
// produced, only their structure.
type Agent interface {
	GenerateStructured(ctx context.Context, input, schema string) (StructuredResult, error)
	RequestTool(ctx context.Context, input string) (ToolCall, error)
	Decide(ctx context.Context, input string, choices []string) (string, error)
	Store(ctx context.Context, input string) (string, error)
	Query(ctx context.Context, input string) (string, error)
}

// Runner drives golden cases through an agent adapter.
type Runner struct {
	agent       Agent
	logger      *slog.Logger
	parallelism int
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallelism enables concurrent case execution with at most n cases
// in flight. Results keep dataset order regardless. The memory suite always
// runs sequentially: its store → query cycles share agent memory state.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 1 {
			r.parallelism = n
		}
	}
}

// New creates a runner for the given agent adapter.
func New(agent Agent, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{agent: agent, logger: logger, parallelism: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunStructuredOutput checks that structured generation parses and carries
// every required field.
func (r *Runner) RunStructuredOutput(ctx context.Context, cases []golden.StructuredCase) model.EvalSuiteResult {
	return r.finish(runCases(ctx, SuiteStructuredOutput, cases, r.parallelism, r.structuredCase))
}

// RunToolCalls checks tool selection and partial argument matching.
func (r *Runner) RunToolCalls(ctx context.Context, cases []golden.ToolCallCase) model.EvalSuiteResult {
	return r.finish(runCases(ctx, SuiteToolCalls, cases, r.parallelism, r.toolCallCase))
}

// RunDecisions checks routing decisions against the expected choice.
func (r *Runner) RunDecisions(ctx context.Context, cases []golden.DecisionCase) model.EvalSuiteResult {
	return r.finish(runCases(ctx, SuiteDecisions, cases, r.parallelism, r.decisionCase))
}

// RunMemory checks store → query cycles. Always sequential.
func (r *Runner) RunMemory(ctx context.Context, cases []golden.MemoryCase) model.EvalSuiteResult {
	return r.finish(runCases(ctx, SuiteMemoryCycle, cases, 1, r.memoryCase))
}

func (r *Runner) finish(suite model.EvalSuiteResult) model.EvalSuiteResult {
	r.logger.Info("eval: suite complete",
		"suite", suite.Name,
		"passed", suite.Passed,
		"failed", suite.Failed,
	)
	return suite
}

// RunAll runs every non-empty suite in the dataset, in stable order.
func (r *Runner) RunAll(ctx context.Context, ds golden.Dataset) []model.EvalSuiteResult {
	var suites []model.EvalSuiteResult
	if len(ds.Structured) > 0 {
		suites = append(suites, r.RunStructuredOutput(ctx, ds.Structured))
	}
	if len(ds.ToolCalls) > 0 {
		suites = append(suites, r.RunToolCalls(ctx, ds.ToolCalls))
	}
	if len(ds.Decisions) > 0 {
		suites = append(suites, r.RunDecisions(ctx, ds.Decisions))
	}
	if len(ds.Memory) > 0 {
		suites = append(suites, r.RunMemory(ctx, ds.Memory))
	}
	return suites
}

// runCases evaluates cases, optionally concurrently, and assembles the
// suite result in dataset order.
func runCases[T any](ctx context.Context, name string, cases []T, parallelism int, one func(context.Context, T) model.EvalResult) model.EvalSuiteResult {
	results := make([]model.EvalResult, len(cases))

	if parallelism > 1 {
		var g errgroup.Group
		g.SetLimit(parallelism)
		for i, c := range cases {
			g.Go(func() error {
				results[i] = one(ctx, c)
				return nil
			})
		}
		_ = g.Wait() // case funcs never return errors; failures become results
	} else {
		for i, c := range cases {
			results[i] = one(ctx, c)
		}
	}

	suite := model.EvalSuiteResult{Name: name}
	for _, res := range results {
		suite.AddResult(res)
	}
	return suite
}

func (r *Runner) structuredCase(ctx context.Context, c golden.StructuredCase) model.EvalResult {
	res, err := r.agent.GenerateStructured(ctx, c.Input, c.Schema)
	if err != nil {
		return model.EvalResult{Input: c.Input, Error: err.Error()}
	}
	if res.ParseFailed {
		return model.EvalResult{
			Input:    c.Input,
			Expected: "valid JSON",
			Error:    "Failed to parse JSON",
		}
	}

	var missing []string
	for _, f := range c.MustHaveFields {
		if _, ok := res.Fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return model.EvalResult{
			Input:    c.Input,
			Expected: fmt.Sprintf("fields %v", c.MustHaveFields),
			Actual:   fmt.Sprintf("missing %v", missing),
			Error:    fmt.Sprintf("missing required fields: %v", missing),
		}
	}

	return model.EvalResult{Passed: true, Input: c.Input, Actual: compactJSON(res.Fields)}
}

func (r *Runner) toolCallCase(ctx context.Context, c golden.ToolCallCase) model.EvalResult {
	tc, err := r.agent.RequestTool(ctx, c.Input)
	if err != nil {
		return model.EvalResult{Input: c.Input, Expected: c.ExpectedTool, Error: err.Error()}
	}

	if tc.Tool != c.ExpectedTool {
		return model.EvalResult{
			Input:    c.Input,
			Expected: c.ExpectedTool,
			Actual:   tc.Tool,
			Error:    fmt.Sprintf("wrong tool: expected %q, got %q", c.ExpectedTool, tc.Tool),
		}
	}

	// Partial match over listed keys only; extra actual arguments are fine.
	// Values compare by string normalization, so a numeric vs string type
	// mismatch fails rather than coercing silently. Keys are checked in
	// sorted order so the reported divergence is deterministic.
	for _, key := range sortedKeys(c.ExpectedArgs) {
		want := c.ExpectedArgs[key]
		got, ok := tc.Arguments[key]
		if !ok {
			return model.EvalResult{
				Input:    c.Input,
				Expected: compactJSON(c.ExpectedArgs),
				Actual:   compactJSON(tc.Arguments),
				Error:    fmt.Sprintf("missing argument %q", key),
			}
		}
		if normalize(got) != normalize(want) {
			return model.EvalResult{
				Input:    c.Input,
				Expected: compactJSON(c.ExpectedArgs),
				Actual:   compactJSON(tc.Arguments),
				Error:    fmt.Sprintf("wrong argument %q: expected %v, got %v", key, want, got),
			}
		}
	}

	return model.EvalResult{
		Passed:   true,
		Input:    c.Input,
		Expected: c.ExpectedTool,
		Actual:   fmt.Sprintf("%s %s", tc.Tool, compactJSON(tc.Arguments)),
	}
}

func (r *Runner) decisionCase(ctx context.Context, c golden.DecisionCase) model.EvalResult {
	got, err := r.agent.Decide(ctx, c.Input, c.Choices)
	if err != nil {
		return model.EvalResult{Input: c.Input, Expected: c.Expected, Error: err.Error()}
	}
	if got != c.Expected {
		return model.EvalResult{
			Input:    c.Input,
			Expected: c.Expected,
			Actual:   got,
			Error:    "wrong decision",
		}
	}
	return model.EvalResult{Passed: true, Input: c.Input, Expected: c.Expected, Actual: got}
}

func (r *Runner) memoryCase(ctx context.Context, c golden.MemoryCase) model.EvalResult {
	input := c.StoreInput + " -> " + c.QueryInput

	if _, err := r.agent.Store(ctx, c.StoreInput); err != nil {
		return model.EvalResult{Input: c.StoreInput, Error: err.Error()}
	}

	resp, err := r.agent.Query(ctx, c.QueryInput)
	if err != nil {
		return model.EvalResult{Input: c.QueryInput, Error: err.Error()}
	}

	// Case-sensitive substring check.
	if !strings.Contains(resp, c.ExpectedInResponse) {
		return model.EvalResult{
			Input:    input,
			Expected: c.ExpectedInResponse,
			Actual:   resp,
			Error:    "expected content not in response",
		}
	}

	return model.EvalResult{Passed: true, Input: input, Expected: c.ExpectedInResponse, Actual: resp}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// normalize renders a value for comparison. Documented equality rule: both
// sides are compared as their %v string form.
func normalize(v any) string {
	return fmt.Sprintf("%v", v)
}

// compactJSON renders a mapping deterministically (JSON sorts object keys).
func compactJSON(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(b)
}

package kansatsu

// Public types for embedding consumers. These are standalone structs with
// no internal imports; conversion helpers live in kansatsu.go because that
// is the only file that sees both sides of the boundary.

// Metrics is a point-in-time snapshot of recorded telemetry with its
// derived values precomputed.
type Metrics struct {
	LLMCalls       int64   `json:"llm_calls"`
	LLMFailures    int64   `json:"llm_failures"`
	LLMRetries     int64   `json:"llm_retries"`
	ToolCalls      int64   `json:"tool_calls"`
	ToolFailures   int64   `json:"tool_failures"`
	MemoryOps      int64   `json:"memory_operations"`
	TotalLatencyMs float64 `json:"total_latency_ms"`

	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	LLMSuccessRate  float64 `json:"llm_success_rate"`
	ToolSuccessRate float64 `json:"tool_success_rate"`
}

// EvalResult is the outcome of one golden case.
type EvalResult struct {
	Passed   bool   `json:"passed"`
	Input    string `json:"input"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SuiteResult aggregates one eval suite run.
// Invariant: Passed + Failed == len(Results).
type SuiteResult struct {
	Name    string       `json:"name"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []EvalResult `json:"results"`
}

// StructuredResult is an agent's structured generation outcome.
// ParseFailed distinguishes unparseable output from an empty mapping.
type StructuredResult struct {
	Fields      map[string]any
	ParseFailed bool
}

// ToolCall is an agent's selected tool with its argument mapping.
type ToolCall struct {
	Tool      string
	Arguments map[string]any
}

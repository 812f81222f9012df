package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShortID(t *testing.T) {
	a := NewShortID()
	b := NewShortID()

	assert.Len(t, a, 8)
	assert.Len(t, b, 8)
	assert.NotEqual(t, a, b)
}

func TestMetricsDerived(t *testing.T) {
	tests := []struct {
		name        string
		metrics     Metrics
		avgLatency  float64
		successRate float64
	}{
		{
			name:        "zero metrics",
			metrics:     Metrics{},
			avgLatency:  0,
			successRate: 0,
		},
		{
			name:        "all successful",
			metrics:     Metrics{LLMCalls: 3, TotalLatencyMs: 600},
			avgLatency:  200,
			successRate: 1.0,
		},
		{
			name:        "one failure in four",
			metrics:     Metrics{LLMCalls: 4, LLMFailures: 1, TotalLatencyMs: 600},
			avgLatency:  150,
			successRate: 0.75,
		},
		{
			name:        "failures exceed calls clamps at zero",
			metrics:     Metrics{LLMCalls: 2, LLMFailures: 5},
			avgLatency:  0,
			successRate: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.avgLatency, tt.metrics.AvgLatencyMs(), 1e-9)
			assert.InDelta(t, tt.successRate, tt.metrics.LLMSuccessRate(), 1e-9)
		})
	}
}

func TestMetricsToolSuccessRate(t *testing.T) {
	m := Metrics{ToolCalls: 4, ToolFailures: 1}
	assert.InDelta(t, 0.75, m.ToolSuccessRate(), 1e-9)

	assert.Zero(t, Metrics{}.ToolSuccessRate())
}

func TestEvalSuiteResultCounts(t *testing.T) {
	var s EvalSuiteResult
	s.Name = "Structured Output"

	assert.Zero(t, s.PassRate())

	s.AddResult(EvalResult{Passed: true, Input: "a"})
	s.AddResult(EvalResult{Passed: false, Input: "b", Error: "missing field"})
	s.AddResult(EvalResult{Passed: true, Input: "c"})

	require.Len(t, s.Results, 3)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, s.Passed+s.Failed, len(s.Results))
	assert.InDelta(t, 2.0/3.0, s.PassRate(), 1e-9)
}

func TestPayloadTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)

	exec := ToolExecutionData{Tool: "search", Result: long}.Attributes()
	assert.Len(t, exec["result"], 200)

	mem := MemoryOpData{Operation: "add", Data: long}.Attributes()
	assert.Len(t, mem["data"], 100)

	short := MemoryOpData{Operation: "get", Data: "hi"}.Attributes()
	assert.Equal(t, "hi", short["data"])
}

func TestLLMCallDataAttributes(t *testing.T) {
	attrs := LLMCallData{PromptLength: 10, ResponseLength: 20, Attempt: 2, Success: false}.Attributes()

	assert.Equal(t, 10, attrs["prompt_length"])
	assert.Equal(t, 20, attrs["response_length"])
	assert.Equal(t, 2, attrs["attempt"])
	assert.Equal(t, false, attrs["success"])
}

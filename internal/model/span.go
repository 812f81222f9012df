package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of an observed agent operation.
type EventType string

const (
	EventLLMCall       EventType = "llm_call"
	EventToolCall      EventType = "tool_call"
	EventToolExecution EventType = "tool_execution"
	EventMemoryOp      EventType = "memory"
	EventDecision      EventType = "decision"
)

// NoTrace is the trace id stamped on spans recorded before StartTrace was
// called. It marks degraded context, never an error.
const NoTrace = "no-trace"

// shortIDLen is the length of span and trace identifiers.
const shortIDLen = 8

// NewShortID returns a short unique identifier for spans and traces.
func NewShortID() string {
	return uuid.NewString()[:shortIDLen]
}

// Span is one observed operation in a trace. Immutable after creation;
// persisted to the append-only span log the moment the operation completes.
type Span struct {
	SpanID     string         `json:"span_id"`
	TraceID    string         `json:"trace_id"`
	EventType  EventType      `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMs float64        `json:"duration_ms,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Payload limits. Tool results and memory data are truncated before logging
// so a single span line stays bounded.
const (
	maxToolResultLen = 200
	maxMemoryDataLen = 100
)

// LLMCallData is the structured payload for llm_call spans.
// Producers pass the closed type; it becomes an open mapping only at the
// log-write boundary via Attributes.
type LLMCallData struct {
	PromptLength   int
	ResponseLength int
	Attempt        int
	Success        bool
}

// Attributes converts the payload to the open mapping persisted on the span.
func (d LLMCallData) Attributes() map[string]any {
	return map[string]any{
		"prompt_length":   d.PromptLength,
		"response_length": d.ResponseLength,
		"attempt":         d.Attempt,
		"success":         d.Success,
	}
}

// ToolCallData is the structured payload for tool_call spans.
type ToolCallData struct {
	Tool      string
	Arguments map[string]any
}

// Attributes converts the payload to the open mapping persisted on the span.
func (d ToolCallData) Attributes() map[string]any {
	return map[string]any{
		"tool":      d.Tool,
		"arguments": d.Arguments,
	}
}

// ToolExecutionData is the structured payload for tool_execution spans.
type ToolExecutionData struct {
	Tool   string
	Result string
}

// Attributes converts the payload to the open mapping persisted on the span.
// The result is truncated to keep log lines bounded.
func (d ToolExecutionData) Attributes() map[string]any {
	return map[string]any{
		"tool":   d.Tool,
		"result": truncate(d.Result, maxToolResultLen),
	}
}

// MemoryOpData is the structured payload for memory spans.
type MemoryOpData struct {
	Operation string
	Data      string
}

// Attributes converts the payload to the open mapping persisted on the span.
func (d MemoryOpData) Attributes() map[string]any {
	return map[string]any{
		"operation": d.Operation,
		"data":      truncate(d.Data, maxMemoryDataLen),
	}
}

// DecisionData is the structured payload for decision spans.
type DecisionData struct {
	Choices  []string
	Selected string
}

// Attributes converts the payload to the open mapping persisted on the span.
func (d DecisionData) Attributes() map[string]any {
	return map[string]any{
		"choices":  strings.Join(d.Choices, ","),
		"selected": d.Selected,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

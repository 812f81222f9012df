package model

// Metrics is a process-lifetime aggregate of recorded agent activity.
// The recorder owns the live aggregate; this struct is the snapshot it
// hands out. Derived values are methods, never stored fields.
type Metrics struct {
	LLMCalls       int64   `json:"llm_calls"`
	LLMFailures    int64   `json:"llm_failures"`
	LLMRetries     int64   `json:"llm_retries"`
	ToolCalls      int64   `json:"tool_calls"`
	ToolFailures   int64   `json:"tool_failures"`
	MemoryOps      int64   `json:"memory_operations"`
	TotalLatencyMs float64 `json:"total_latency_ms"`
}

// AvgLatencyMs is the mean llm-call latency, 0 when no calls were recorded.
func (m Metrics) AvgLatencyMs() float64 {
	if m.LLMCalls == 0 {
		return 0
	}
	return m.TotalLatencyMs / float64(m.LLMCalls)
}

// LLMSuccessRate is 1 - failures/calls, 0 when no calls were recorded.
// Clamped at 0 if failures exceed calls, which signals a caller bug.
func (m Metrics) LLMSuccessRate() float64 {
	return successRate(m.LLMFailures, m.LLMCalls)
}

// ToolSuccessRate is 1 - failures/calls, 0 when no calls were recorded.
func (m Metrics) ToolSuccessRate() float64 {
	return successRate(m.ToolFailures, m.ToolCalls)
}

// Accumulate rebuilds a metrics aggregate from persisted spans, applying
// the same counting rules the live recorder applies at log time.
func Accumulate(spans []Span) Metrics {
	var m Metrics
	for _, s := range spans {
		switch s.EventType {
		case EventLLMCall:
			m.LLMCalls++
			m.TotalLatencyMs += s.DurationMs
			if s.Error != "" {
				m.LLMFailures++
			}
			if attempt, ok := s.Data["attempt"]; ok && asInt(attempt) > 1 {
				m.LLMRetries++
			}
		case EventToolCall:
			m.ToolCalls++
			if s.Error != "" {
				m.ToolFailures++
			}
		case EventMemoryOp:
			m.MemoryOps++
		}
	}
	return m
}

// asInt handles the numeric types a span payload can carry: native ints
// from the recorder, float64 from a JSON round-trip.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func successRate(failures, calls int64) float64 {
	if calls == 0 {
		return 0
	}
	rate := 1 - float64(failures)/float64(calls)
	if rate < 0 {
		return 0
	}
	return rate
}

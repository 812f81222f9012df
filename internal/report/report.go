// Package report renders eval suite results and metrics summaries as
// plain text for console and log output.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/kansatsu-ai/kansatsu/internal/model"
)

// inputPreviewLen bounds the echoed case input in failure blocks.
const inputPreviewLen = 50

const (
	reportRule  = "=================================================="
	reportSep   = "--------------------------------------------------"
	summaryRule = "========================================"
)

// FormatSuite renders one suite: a status line plus an indented block for
// every failed case.
func FormatSuite(s model.EvalSuiteResult) string {
	var b strings.Builder
	writeSuite(&b, s)
	return b.String()
}

// FormatOverall renders all suites plus a trailing overall pass/fail line.
func FormatOverall(suites []model.EvalSuiteResult) string {
	var b strings.Builder
	b.WriteString(reportRule + "\n")
	b.WriteString("EVAL REPORT\n")
	b.WriteString(reportRule + "\n")

	var passed, failed int
	for _, s := range suites {
		b.WriteString("\n")
		writeSuite(&b, s)
		passed += s.Passed
		failed += s.Failed
	}

	b.WriteString("\n" + reportSep + "\n")
	overall := "ALL PASSED"
	if failed > 0 {
		overall = fmt.Sprintf("%d FAILED", failed)
	}
	fmt.Fprintf(&b, "Overall: %s (%d/%d)\n", overall, passed, passed+failed)
	b.WriteString(reportRule + "\n")
	return b.String()
}

// FormatMetrics renders the telemetry summary banner. Success rates are
// percentages to two decimals; average latency is rounded to the nearest
// millisecond.
func FormatMetrics(m model.Metrics) string {
	var b strings.Builder
	b.WriteString(summaryRule + "\n")
	b.WriteString("TELEMETRY SUMMARY\n")
	b.WriteString(summaryRule + "\n")
	fmt.Fprintf(&b, "LLM Calls:      %d\n", m.LLMCalls)
	fmt.Fprintf(&b, "  Success Rate: %.2f%%\n", m.LLMSuccessRate()*100)
	fmt.Fprintf(&b, "  Avg Latency:  %.0fms\n", math.Round(m.AvgLatencyMs()))
	fmt.Fprintf(&b, "  Retries:      %d\n", m.LLMRetries)
	fmt.Fprintf(&b, "Tool Calls:     %d\n", m.ToolCalls)
	fmt.Fprintf(&b, "  Success Rate: %.2f%%\n", m.ToolSuccessRate()*100)
	fmt.Fprintf(&b, "Memory Ops:     %d\n", m.MemoryOps)
	b.WriteString(summaryRule + "\n")
	return b.String()
}

func writeSuite(b *strings.Builder, s model.EvalSuiteResult) {
	status := "PASSED"
	if s.Failed > 0 {
		status = "FAILED"
	}
	fmt.Fprintf(b, "%s: %s (%d/%d)\n", s.Name, status, s.Passed, s.Total())

	for _, r := range s.Results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(b, "  Input: %s\n", preview(r.Input))
		if r.Expected != "" {
			fmt.Fprintf(b, "    Expected: %s\n", r.Expected)
		}
		if r.Actual != "" {
			fmt.Fprintf(b, "    Actual: %s\n", r.Actual)
		}
		if r.Error != "" {
			fmt.Fprintf(b, "    Error: %s\n", r.Error)
		}
	}
}

// preview truncates input to the bounded preview length, marking the cut
// with an ellipsis only when something was actually dropped.
func preview(s string) string {
	if len(s) <= inputPreviewLen {
		return s
	}
	return s[:inputPreviewLen] + "..."
}

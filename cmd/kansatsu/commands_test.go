package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kansatsu-ai/kansatsu/internal/config"
	"github.com/kansatsu-ai/kansatsu/internal/model"
	"github.com/kansatsu-ai/kansatsu/internal/spanlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// execute runs the root command with the given args and returns stdout.
func execute(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd(cfg, testLogger())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seedLog writes spans to a fresh log file and returns its path.
func seedLog(t *testing.T, spans []model.Span) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spans.jsonl")
	log, err := spanlog.New(testLogger(), path)
	require.NoError(t, err)
	for _, span := range spans {
		require.NoError(t, log.Append(span))
	}
	require.NoError(t, log.Close())
	return path
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	dataset := `version: "1"
tool_calls:
  - input: "what is 2+2"
    expected_tool: calculator
    expected_args:
      expression: "2+2"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(dataset), 0o600))

	out, err := execute(t, config.Config{}, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "good.yaml")
	assert.Contains(t, out, "(1 cases)")
}

func TestValidateCommand_InvalidDataset(t *testing.T) {
	dir := t.TempDir()
	dataset := `version: "1"
tool_calls:
  - input: "what is 2+2"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(dataset), 0o600))

	out, err := execute(t, config.Config{}, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "INVALID")
	assert.Contains(t, err.Error(), "1 of 1 dataset files invalid")
}

func TestValidateCommand_EmptyDir(t *testing.T) {
	_, err := execute(t, config.Config{}, "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset files found")
}

func TestTraceCommand(t *testing.T) {
	now := time.Now().UTC()
	path := seedLog(t, []model.Span{
		{SpanID: "a1", TraceID: "t1", EventType: model.EventLLMCall, Timestamp: now, DurationMs: 50},
		{SpanID: "a2", TraceID: "t2", EventType: model.EventToolCall, Timestamp: now},
	})

	out, err := execute(t, config.Config{SpanLogPath: path}, "trace", "t1")
	require.NoError(t, err)

	var spans []model.Span
	require.NoError(t, json.Unmarshal([]byte(out), &spans))
	require.Len(t, spans, 1)
	assert.Equal(t, "a1", spans[0].SpanID)
}

func TestTraceCommand_NoMatches(t *testing.T) {
	path := seedLog(t, nil)

	out, err := execute(t, config.Config{SpanLogPath: path}, "trace", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "no spans found")
}

func TestRecentCommand(t *testing.T) {
	now := time.Now().UTC()
	path := seedLog(t, []model.Span{
		{SpanID: "a1", TraceID: "t1", EventType: model.EventLLMCall, Timestamp: now},
		{SpanID: "a2", TraceID: "t1", EventType: model.EventLLMCall, Timestamp: now},
		{SpanID: "a3", TraceID: "t1", EventType: model.EventLLMCall, Timestamp: now},
	})

	out, err := execute(t, config.Config{SpanLogPath: path, RecentSpans: 10}, "recent", "--limit", "2")
	require.NoError(t, err)

	var spans []model.Span
	require.NoError(t, json.Unmarshal([]byte(out), &spans))
	require.Len(t, spans, 2)
	assert.Equal(t, "a2", spans[0].SpanID)
	assert.Equal(t, "a3", spans[1].SpanID)
}

func TestMetricsCommand(t *testing.T) {
	now := time.Now().UTC()
	path := seedLog(t, []model.Span{
		{SpanID: "a1", TraceID: "t1", EventType: model.EventLLMCall, Timestamp: now, DurationMs: 100},
		{SpanID: "a2", TraceID: "t1", EventType: model.EventLLMCall, Timestamp: now, DurationMs: 300, Error: "timeout"},
		{SpanID: "a3", TraceID: "t1", EventType: model.EventToolCall, Timestamp: now},
	})

	out, err := execute(t, config.Config{SpanLogPath: path}, "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "TELEMETRY SUMMARY")
	assert.Contains(t, out, "LLM Calls:      2")
	assert.Contains(t, out, "50.00%")
}

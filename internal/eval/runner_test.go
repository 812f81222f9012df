package eval

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kansatsu-ai/kansatsu/internal/golden"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeAgent is a scripted adapter: behavior per input string.
type fakeAgent struct {
	structured map[string]StructuredResult
	tools      map[string]ToolCall
	decisions  map[string]string
	memory     map[string]string // store_input -> remembered fact
	queries    map[string]string // query_input -> response
	failWith   error             // when set, every call errors
}

func (f *fakeAgent) GenerateStructured(_ context.Context, input, _ string) (StructuredResult, error) {
	if f.failWith != nil {
		return StructuredResult{}, f.failWith
	}
	return f.structured[input], nil
}

func (f *fakeAgent) RequestTool(_ context.Context, input string) (ToolCall, error) {
	if f.failWith != nil {
		return ToolCall{}, f.failWith
	}
	return f.tools[input], nil
}

func (f *fakeAgent) Decide(_ context.Context, input string, _ []string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	return f.decisions[input], nil
}

func (f *fakeAgent) Store(_ context.Context, input string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	if f.memory == nil {
		f.memory = map[string]string{}
	}
	f.memory[input] = input
	return "Noted.", nil
}

func (f *fakeAgent) Query(_ context.Context, input string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	return f.queries[input], nil
}

func TestStructuredOutputSuite(t *testing.T) {
	agent := &fakeAgent{
		structured: map[string]StructuredResult{
			"explain ML": {Fields: map[string]any{"topic": "ML", "difficulty": "intermediate"}},
		},
	}
	r := New(agent, testLogger())

	t.Run("required fields present", func(t *testing.T) {
		suite := r.RunStructuredOutput(t.Context(), []golden.StructuredCase{
			{Input: "explain ML", Schema: "{}", MustHaveFields: []string{"topic", "difficulty"}},
		})
		assert.Equal(t, 1, suite.Passed)
		assert.Equal(t, 0, suite.Failed)
		assert.Contains(t, suite.Results[0].Actual, `"topic":"ML"`)
	})

	t.Run("missing field named in error", func(t *testing.T) {
		suite := r.RunStructuredOutput(t.Context(), []golden.StructuredCase{
			{Input: "explain ML", Schema: "{}", MustHaveFields: []string{"topic", "explanation"}},
		})
		require.Equal(t, 1, suite.Failed)
		res := suite.Results[0]
		assert.Contains(t, res.Error, "explanation")
		assert.NotContains(t, res.Error, "topic,")
	})

	t.Run("parse failure is not inspected for fields", func(t *testing.T) {
		agent := &fakeAgent{
			structured: map[string]StructuredResult{"bad": {ParseFailed: true}},
		}
		suite := New(agent, testLogger()).RunStructuredOutput(t.Context(), []golden.StructuredCase{
			{Input: "bad", Schema: "{}", MustHaveFields: []string{"topic"}},
		})
		require.Equal(t, 1, suite.Failed)
		assert.Equal(t, "Failed to parse JSON", suite.Results[0].Error)
	})

	t.Run("empty parsed mapping is not a parse failure", func(t *testing.T) {
		agent := &fakeAgent{
			structured: map[string]StructuredResult{"empty": {Fields: map[string]any{}}},
		}
		suite := New(agent, testLogger()).RunStructuredOutput(t.Context(), []golden.StructuredCase{
			{Input: "empty", Schema: "{}"},
		})
		assert.Equal(t, 1, suite.Passed)
	})
}

func TestToolCallSuite(t *testing.T) {
	agent := &fakeAgent{
		tools: map[string]ToolCall{
			"What is 42 * 7?": {
				Tool:      "calculator",
				Arguments: map[string]any{"operation": "multiply", "a": 42, "b": 7},
			},
			"search it": {Tool: "search", Arguments: map[string]any{"query": "it"}},
		},
	}
	r := New(agent, testLogger())

	t.Run("extra arguments tolerated", func(t *testing.T) {
		suite := r.RunToolCalls(t.Context(), []golden.ToolCallCase{
			{Input: "What is 42 * 7?", ExpectedTool: "calculator", ExpectedArgs: map[string]any{"operation": "multiply"}},
		})
		assert.Equal(t, 1, suite.Passed)
	})

	t.Run("wrong tool names both tools", func(t *testing.T) {
		suite := r.RunToolCalls(t.Context(), []golden.ToolCallCase{
			{Input: "search it", ExpectedTool: "calculator"},
		})
		require.Equal(t, 1, suite.Failed)
		assert.Contains(t, suite.Results[0].Error, "calculator")
		assert.Contains(t, suite.Results[0].Error, "search")
	})

	t.Run("wrong argument value names the key", func(t *testing.T) {
		suite := r.RunToolCalls(t.Context(), []golden.ToolCallCase{
			{Input: "What is 42 * 7?", ExpectedTool: "calculator", ExpectedArgs: map[string]any{"operation": "add"}},
		})
		require.Equal(t, 1, suite.Failed)
		assert.Contains(t, suite.Results[0].Error, `wrong argument "operation"`)
	})

	t.Run("missing argument key fails", func(t *testing.T) {
		suite := r.RunToolCalls(t.Context(), []golden.ToolCallCase{
			{Input: "search it", ExpectedTool: "search", ExpectedArgs: map[string]any{"limit": 5}},
		})
		require.Equal(t, 1, suite.Failed)
		assert.Contains(t, suite.Results[0].Error, `missing argument "limit"`)
	})

	t.Run("numeric value compared by normalized string", func(t *testing.T) {
		suite := r.RunToolCalls(t.Context(), []golden.ToolCallCase{
			// Dataset loaders may hand back float64(42); the agent returned int 42.
			{Input: "What is 42 * 7?", ExpectedTool: "calculator", ExpectedArgs: map[string]any{"a": float64(42)}},
		})
		assert.Equal(t, 1, suite.Passed)
	})
}

func TestDecisionSuite(t *testing.T) {
	agent := &fakeAgent{
		decisions: map[string]string{
			"Summarize this": "summarize_text",
			"What is 5 + 5?": "answer_question",
		},
	}
	r := New(agent, testLogger())

	suite := r.RunDecisions(t.Context(), []golden.DecisionCase{
		{Input: "Summarize this", Choices: []string{"answer_question", "summarize_text"}, Expected: "summarize_text"},
		{Input: "What is 5 + 5?", Choices: []string{"answer_question", "calculate"}, Expected: "calculate"},
	})

	assert.Equal(t, 1, suite.Passed)
	require.Equal(t, 1, suite.Failed)
	assert.Equal(t, "calculate", suite.Results[1].Expected)
	assert.Equal(t, "answer_question", suite.Results[1].Actual)
}

func TestMemorySuite(t *testing.T) {
	agent := &fakeAgent{
		queries: map[string]string{
			"What's my name?": "Your name is Alice.",
			"Where do I live": "I don't know.",
		},
	}
	r := New(agent, testLogger())

	suite := r.RunMemory(t.Context(), []golden.MemoryCase{
		{StoreInput: "My name is Alice", QueryInput: "What's my name?", ExpectedInResponse: "Alice"},
		{StoreInput: "I live in New York", QueryInput: "Where do I live", ExpectedInResponse: "New York"},
	})

	assert.Equal(t, 1, suite.Passed)
	require.Equal(t, 1, suite.Failed)
	failed := suite.Results[1]
	assert.Equal(t, "New York", failed.Expected)
	assert.Equal(t, "I don't know.", failed.Actual)
	assert.Equal(t, "expected content not in response", failed.Error)
}

func TestMemorySubstringIsCaseSensitive(t *testing.T) {
	agent := &fakeAgent{
		queries: map[string]string{"q": "your name is alice."},
	}
	suite := New(agent, testLogger()).RunMemory(t.Context(), []golden.MemoryCase{
		{StoreInput: "My name is Alice", QueryInput: "q", ExpectedInResponse: "Alice"},
	})
	assert.Equal(t, 1, suite.Failed)
}

func TestAdapterErrorDoesNotAbortSuite(t *testing.T) {
	agent := &fakeAgent{failWith: errors.New("model backend unavailable")}
	r := New(agent, testLogger())

	suite := r.RunToolCalls(t.Context(), []golden.ToolCallCase{
		{Input: "a", ExpectedTool: "calculator"},
		{Input: "b", ExpectedTool: "calculator"},
		{Input: "c", ExpectedTool: "calculator"},
	})

	assert.Equal(t, 3, suite.Failed)
	assert.Equal(t, 3, suite.Total())
	for _, res := range suite.Results {
		assert.Contains(t, res.Error, "model backend unavailable")
	}
}

func TestSuiteInvariant(t *testing.T) {
	agent := &fakeAgent{
		tools: map[string]ToolCall{"a": {Tool: "calculator"}},
	}
	suite := New(agent, testLogger()).RunToolCalls(t.Context(), []golden.ToolCallCase{
		{Input: "a", ExpectedTool: "calculator"},
		{Input: "b", ExpectedTool: "calculator"},
	})

	assert.Equal(t, suite.Passed+suite.Failed, len(suite.Results))
	assert.InDelta(t, 0.5, suite.PassRate(), 1e-9)
}

func TestRunAllStableOrderAndDeterminism(t *testing.T) {
	ds := golden.Dataset{
		Version: "v1",
		Structured: []golden.StructuredCase{
			{Input: "explain ML", Schema: "{}", MustHaveFields: []string{"topic"}},
		},
		ToolCalls: []golden.ToolCallCase{
			{Input: "What is 42 * 7?", ExpectedTool: "calculator"},
		},
		Memory: []golden.MemoryCase{
			{StoreInput: "My name is Alice", QueryInput: "What's my name?", ExpectedInResponse: "Alice"},
		},
	}
	agent := &fakeAgent{
		structured: map[string]StructuredResult{"explain ML": {Fields: map[string]any{"topic": "ML"}}},
		tools:      map[string]ToolCall{"What is 42 * 7?": {Tool: "calculator"}},
		queries:    map[string]string{"What's my name?": "Your name is Alice."},
	}
	r := New(agent, testLogger())

	first := r.RunAll(t.Context(), ds)
	require.Len(t, first, 3) // decisions suite empty, skipped
	assert.Equal(t, SuiteStructuredOutput, first[0].Name)
	assert.Equal(t, SuiteToolCalls, first[1].Name)
	assert.Equal(t, SuiteMemoryCycle, first[2].Name)

	// Determinism: identical agent behavior yields identical results.
	second := r.RunAll(t.Context(), ds)
	assert.Equal(t, first, second)
}

func TestParallelRunKeepsOrder(t *testing.T) {
	agent := &fakeAgent{
		decisions: map[string]string{
			"a": "x", "b": "y", "c": "x", "d": "y",
		},
	}
	cases := []golden.DecisionCase{
		{Input: "a", Choices: []string{"x", "y"}, Expected: "x"},
		{Input: "b", Choices: []string{"x", "y"}, Expected: "x"}, // fails
		{Input: "c", Choices: []string{"x", "y"}, Expected: "x"},
		{Input: "d", Choices: []string{"x", "y"}, Expected: "y"},
	}

	sequential := New(agent, testLogger()).RunDecisions(t.Context(), cases)
	parallel := New(agent, testLogger(), WithParallelism(4)).RunDecisions(t.Context(), cases)

	assert.Equal(t, sequential, parallel)
	assert.False(t, parallel.Results[1].Passed)
	assert.Equal(t, parallel.Passed+parallel.Failed, len(parallel.Results))
}

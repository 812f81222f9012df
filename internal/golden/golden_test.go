package golden

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	ds, err := Load(filepath.Join("testdata", "golden_v1.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "v1", ds.Version)
	require.Len(t, ds.Structured, 2)
	require.Len(t, ds.ToolCalls, 3)
	require.Len(t, ds.Decisions, 2)
	require.Len(t, ds.Memory, 2)

	assert.Equal(t, "Explain quantum computing in one sentence", ds.Structured[0].Input)
	assert.Equal(t, []string{"topic", "difficulty"}, ds.Structured[0].MustHaveFields)
	assert.Equal(t, "calculator", ds.ToolCalls[0].ExpectedTool)
	assert.Equal(t, "multiply", ds.ToolCalls[0].ExpectedArgs["operation"])
	assert.Equal(t, "Alice", ds.Memory[0].ExpectedInResponse)
	assert.False(t, ds.Empty())
}

func TestLoadJSON(t *testing.T) {
	ds, err := Load(filepath.Join("testdata", "golden_v1.json"))
	require.NoError(t, err)

	require.Len(t, ds.Structured, 1)
	require.Len(t, ds.ToolCalls, 1)
	assert.Equal(t, "subtract", ds.ToolCalls[0].ExpectedArgs["operation"])
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing_tool.yaml"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "missing expected_tool")
}

func TestLoadRejectsUnknownField(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "unknown_field.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "golden_v1.toml"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported extension")
}

func TestValidateReportsAllViolations(t *testing.T) {
	ds := Dataset{
		Structured: []StructuredCase{{Input: "", Schema: ""}},
		Decisions:  []DecisionCase{{Input: "route this", Choices: []string{"a", "b"}, Expected: "c"}},
		Memory:     []MemoryCase{{StoreInput: "x", QueryInput: "", ExpectedInResponse: ""}},
	}

	err := ds.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "structured case 0: missing input")
	assert.ErrorContains(t, err, "structured case 0: missing schema")
	assert.ErrorContains(t, err, `expected "c" not among choices`)
	assert.ErrorContains(t, err, "memory case 0: missing query_input")
	assert.ErrorContains(t, err, "memory case 0: missing expected_in_response")
}

func TestValidateEmptyDatasetIsStructurallyValid(t *testing.T) {
	ds := Dataset{Version: "v1"}
	assert.NoError(t, ds.Validate())
	assert.True(t, ds.Empty())
}

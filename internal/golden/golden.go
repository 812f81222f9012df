// Package golden loads versioned golden datasets: known-good test cases
// treated as ground truth for agent regression testing. A dataset that
// fails validation is rejected before any case runs: a corrupt contract
// must not silently produce false passes.
package golden

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// StructuredCase asserts that structured generation yields well-formed
// output carrying the required fields.
type StructuredCase struct {
	Input          string   `json:"input" yaml:"input"`
	Schema         string   `json:"schema" yaml:"schema"`
	MustHaveFields []string `json:"must_have_fields" yaml:"must_have_fields"`
}

// ToolCallCase asserts that the agent selects the expected tool.
// ExpectedArgs is a partial match: only listed keys are checked, extra
// actual arguments are permitted.
type ToolCallCase struct {
	Input        string         `json:"input" yaml:"input"`
	ExpectedTool string         `json:"expected_tool" yaml:"expected_tool"`
	ExpectedArgs map[string]any `json:"expected_args,omitempty" yaml:"expected_args,omitempty"`
}

// DecisionCase asserts that the agent routes the input to the expected
// choice.
type DecisionCase struct {
	Input    string   `json:"input" yaml:"input"`
	Choices  []string `json:"choices" yaml:"choices"`
	Expected string   `json:"expected" yaml:"expected"`
}

// MemoryCase asserts a store → query cycle: after storing StoreInput, the
// response to QueryInput must contain ExpectedInResponse.
type MemoryCase struct {
	StoreInput         string `json:"store_input" yaml:"store_input"`
	QueryInput         string `json:"query_input" yaml:"query_input"`
	ExpectedInResponse string `json:"expected_in_response" yaml:"expected_in_response"`
}

// Dataset is one versioned collection of cases across capabilities.
// Cases are immutable after load; identity is position within the slice.
type Dataset struct {
	Version    string           `json:"version" yaml:"version"`
	Structured []StructuredCase `json:"structured_output,omitempty" yaml:"structured_output,omitempty"`
	ToolCalls  []ToolCallCase   `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	Decisions  []DecisionCase   `json:"decisions,omitempty" yaml:"decisions,omitempty"`
	Memory     []MemoryCase     `json:"memory,omitempty" yaml:"memory,omitempty"`
}

// Load reads and validates a dataset file. The format is chosen by
// extension: .json, or .yaml/.yml. Unknown fields are rejected so a typo'd
// key fails loudly instead of silently skipping an assertion.
func Load(path string) (Dataset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return Dataset{}, fmt.Errorf("golden: %s: unsupported extension %q (want .json, .yaml, or .yml)", path, ext)
	}

	raw, err := os.ReadFile(path) //nolint:gosec // dataset paths are operator-supplied
	if err != nil {
		return Dataset{}, fmt.Errorf("golden: read %s: %w", path, err)
	}

	var ds Dataset
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ds); err != nil {
			return Dataset{}, fmt.Errorf("golden: parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&ds); err != nil {
			return Dataset{}, fmt.Errorf("golden: parse %s: %w", path, err)
		}
	}

	if err := ds.Validate(); err != nil {
		return Dataset{}, fmt.Errorf("golden: %s: %w", path, err)
	}
	return ds, nil
}

// Validate checks every case for structurally required fields. All
// violations are reported, not just the first.
func (d Dataset) Validate() error {
	var errs []error

	for i, c := range d.Structured {
		if c.Input == "" {
			errs = append(errs, fmt.Errorf("structured case %d: missing input", i))
		}
		if c.Schema == "" {
			errs = append(errs, fmt.Errorf("structured case %d: missing schema", i))
		}
	}

	for i, c := range d.ToolCalls {
		if c.Input == "" {
			errs = append(errs, fmt.Errorf("tool call case %d: missing input", i))
		}
		if c.ExpectedTool == "" {
			errs = append(errs, fmt.Errorf("tool call case %d: missing expected_tool", i))
		}
	}

	for i, c := range d.Decisions {
		if c.Input == "" {
			errs = append(errs, fmt.Errorf("decision case %d: missing input", i))
		}
		if len(c.Choices) < 2 {
			errs = append(errs, fmt.Errorf("decision case %d: needs at least two choices", i))
		}
		if c.Expected == "" {
			errs = append(errs, fmt.Errorf("decision case %d: missing expected", i))
		} else if len(c.Choices) >= 2 && !slices.Contains(c.Choices, c.Expected) {
			errs = append(errs, fmt.Errorf("decision case %d: expected %q not among choices", i, c.Expected))
		}
	}

	for i, c := range d.Memory {
		if c.StoreInput == "" {
			errs = append(errs, fmt.Errorf("memory case %d: missing store_input", i))
		}
		if c.QueryInput == "" {
			errs = append(errs, fmt.Errorf("memory case %d: missing query_input", i))
		}
		if c.ExpectedInResponse == "" {
			errs = append(errs, fmt.Errorf("memory case %d: missing expected_in_response", i))
		}
	}

	return errors.Join(errs...)
}

// Empty reports whether the dataset carries no cases at all.
func (d Dataset) Empty() bool {
	return len(d.Structured)+len(d.ToolCalls)+len(d.Decisions)+len(d.Memory) == 0
}

package model

// EvalResult is the outcome of one golden case. Created once per case,
// immutable after creation, owned by its parent EvalSuiteResult.
type EvalResult struct {
	Passed   bool   `json:"passed"`
	Input    string `json:"input"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
}

// EvalSuiteResult aggregates the results of one suite run.
// Invariant: Passed + Failed == len(Results). Mutated only by AddResult
// during a run; immutable once the run completes.
type EvalSuiteResult struct {
	Name    string       `json:"name"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []EvalResult `json:"results"`
}

// AddResult appends a result and updates the counts.
func (s *EvalSuiteResult) AddResult(r EvalResult) {
	s.Results = append(s.Results, r)
	if r.Passed {
		s.Passed++
	} else {
		s.Failed++
	}
}

// Total is the number of cases run.
func (s *EvalSuiteResult) Total() int {
	return s.Passed + s.Failed
}

// PassRate is passed / total, 0 when no cases ran.
func (s *EvalSuiteResult) PassRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total())
}

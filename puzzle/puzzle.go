// Package puzzle holds the ARC-style grid types the built-in chain steps
// operate on, along with loaders and parsers for the JSON payloads that
// cross the model boundary.
package puzzle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// Grid is a rectangular field of color values.
type Grid [][]int

// Equal reports whether two grids have identical dimensions and cells.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if len(g[i]) != len(other[i]) {
			return false
		}
		for j := range g[i] {
			if g[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Example pairs an input grid with its expected output.
type Example struct {
	Input  Grid `json:"input"`
	Output Grid `json:"output,omitempty"`
}

// ProblemSet is one puzzle: training pairs to learn from and test
// inputs to solve.
type ProblemSet struct {
	Train []Example `json:"train"`
	Test  []Example `json:"test"`
}

// RuleSet is the model's current theory of the transformation.
type RuleSet struct {
	Rules       []string `json:"rules"`
	Explanation string   `json:"explanation"`
}

// Attempt is one solved test input.
type Attempt struct {
	TestInput   Grid   `json:"test_input"`
	OutputGrid  Grid   `json:"output_grid"`
	Explanation string `json:"explanation"`
}

// Evaluation scores a single attempt against the known answer.
type Evaluation struct {
	TestIndex   int    `json:"test_index"`
	Match       bool   `json:"match"`
	TestInput   Grid   `json:"test_input"`
	Generated   Grid   `json:"generated_output"`
	Correct     Grid   `json:"correct_output"`
	Explanation string `json:"explanation"`
}

// Report aggregates the evaluations for a problem set.
type Report struct {
	Results []Evaluation `json:"results"`
	Correct int          `json:"correct"`
	Total   int          `json:"total"`
}

func (r *Report) Score() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

// LoadProblemSet reads a problem set from a JSON file.
func LoadProblemSet(fsys afero.Fs, path string) (*ProblemSet, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading problem set %q: %w", path, err)
	}
	var ps ProblemSet
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("parsing problem set %q: %w", path, err)
	}
	return &ps, nil
}

// ProblemSetFrom coerces a context value into a ProblemSet. Values
// arriving from YAML or JSON documents are generic maps; a round-trip
// through JSON normalizes them.
func ProblemSetFrom(value interface{}) (*ProblemSet, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.New("problem set is missing")
	case *ProblemSet:
		return v, nil
	case ProblemSet:
		return &v, nil
	}
	var ps ProblemSet
	if err := coerce(value, &ps); err != nil {
		return nil, fmt.Errorf("problem set: %w", err)
	}
	return &ps, nil
}

// RuleSetFrom coerces a context value into a RuleSet.
func RuleSetFrom(value interface{}) (*RuleSet, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.New("rule set is missing")
	case *RuleSet:
		return v, nil
	case RuleSet:
		return &v, nil
	}
	var rs RuleSet
	if err := coerce(value, &rs); err != nil {
		return nil, fmt.Errorf("rule set: %w", err)
	}
	return &rs, nil
}

// AttemptsFrom coerces a context value into a list of attempts.
func AttemptsFrom(value interface{}) ([]Attempt, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.New("attempts are missing")
	case []Attempt:
		return v, nil
	}
	var attempts []Attempt
	if err := coerce(value, &attempts); err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	return attempts, nil
}

func coerce(value, target interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("value is not coercible: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("value has unexpected shape: %w", err)
	}
	return nil
}

// ParseRuleSet decodes a model response describing transformation rules.
// A response wrapped in a markdown code fence is unwrapped first.
func ParseRuleSet(text string) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal([]byte(stripFence(text)), &rs); err != nil {
		return nil, fmt.Errorf("parsing rule set: %w", err)
	}
	return &rs, nil
}

// ParseAttempt decodes a model response proposing an output grid. The
// caller fills in TestInput.
func ParseAttempt(text string) (*Attempt, error) {
	var attempt Attempt
	if err := json.Unmarshal([]byte(stripFence(text)), &attempt); err != nil {
		return nil, fmt.Errorf("parsing attempt: %w", err)
	}
	return &attempt, nil
}

// stripFence drops a surrounding markdown code fence, with or without a
// language tag. Models add these despite instructions not to.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

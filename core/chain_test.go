package core

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleChainYAML = `
name: arc_puzzle
description: Derive rules from the training pairs, then solve the tests.
author: unused
initial_context:
  attempt_budget: 3
steps:
  - name: derive
    function: generate_rules
    prompt_templates:
      - generate_rules.yaml
    params:
      style: terse
  - name: solve
    function: solve_puzzle_with_rules
    prompt_templates:
      - solve.yaml
    output_key: attempts
`

func TestLoadChain(t *testing.T) {
	def, err := LoadChain(strings.NewReader(sampleChainYAML))
	require.NoError(t, err)

	assert.Equal(t, "arc_puzzle", def.Name)
	assert.Equal(t, "Derive rules from the training pairs, then solve the tests.", def.Description)
	assert.Equal(t, 3, def.InitialContext["attempt_budget"])
	require.Len(t, def.Steps, 2)

	derive := def.Steps[0]
	assert.Equal(t, "derive", derive.Name)
	assert.Equal(t, StepGenerateRules, derive.Function)
	assert.Equal(t, []string{"generate_rules.yaml"}, derive.PromptTemplates)
	assert.Equal(t, "terse", derive.Params["style"])
	assert.Empty(t, derive.OutputKey)

	solve := def.Steps[1]
	assert.Equal(t, "attempts", solve.OutputKey)
}

func TestLoadChainIgnoresUnknownTopLevelKeys(t *testing.T) {
	def, err := LoadChain(strings.NewReader(`
name: tolerant
future_field: whatever
steps:
  - name: only
    function: process_with_llm
`))
	require.NoError(t, err)
	assert.Equal(t, "tolerant", def.Name)
}

func TestLoadChainRejectsUnknownStepKeys(t *testing.T) {
	_, err := LoadChain(strings.NewReader(`
name: strict
steps:
  - name: only
    function: process_with_llm
    outputs: result
    retries: 2
`))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, `step "only" has unknown keys`)
	assert.Contains(t, cfgErr.Reason, "outputs")
	assert.Contains(t, cfgErr.Reason, "retries")
}

func TestLoadChainStructuralErrors(t *testing.T) {
	cases := []struct {
		name   string
		yaml   string
		reason string
	}{
		{
			name:   "missing chain name",
			yaml:   "steps:\n  - name: s\n    function: f\n",
			reason: "chain name is required",
		},
		{
			name:   "no steps",
			yaml:   "name: empty\n",
			reason: "has no steps",
		},
		{
			name:   "step without name",
			yaml:   "name: c\nsteps:\n  - function: f\n",
			reason: "step 0 has no name",
		},
		{
			name:   "step without function",
			yaml:   "name: c\nsteps:\n  - name: s\n",
			reason: `step "s" has no function`,
		},
		{
			name:   "duplicate step names",
			yaml:   "name: c\nsteps:\n  - name: s\n    function: f\n  - name: s\n    function: g\n",
			reason: `duplicate step name "s"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadChain(strings.NewReader(tc.yaml))
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Reason, tc.reason)
		})
	}
}

func TestLoadChainMalformedDocument(t *testing.T) {
	_, err := LoadChain(strings.NewReader("name: [unclosed"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadChainFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "chains/arc_puzzle.yaml", []byte(sampleChainYAML), 0644))

	def, err := LoadChainFile(fsys, "chains/arc_puzzle.yaml")
	require.NoError(t, err)
	assert.Equal(t, "arc_puzzle", def.Name)

	_, err = LoadChainFile(fsys, "chains/absent.yaml")
	require.Error(t, err)
}

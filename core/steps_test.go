package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
	"github.com/promptline/promptline/puzzle"
)

const deriveTemplate = `- role: system
  content: You infer grid transformation rules.
- role: user
  content: |-
{{ indent 4 .problem_set_representation }}
{{- if .existing_rules }}
    Existing rules:
{{ indent 4 .existing_rules }}
{{- end }}`

const solveTemplate = `- role: user
  content: |-
{{ indent 4 .test_input_representation }}

    Rules:
{{ indent 4 .current_rules }}`

const echoTemplate = `- role: user
  content: {{ .greeting }} {{ .name }}`

func trainProblemSet() *puzzle.ProblemSet {
	return &puzzle.ProblemSet{
		Train: []puzzle.Example{
			{Input: puzzle.Grid{{1, 2}}, Output: puzzle.Grid{{2, 1}}},
			{Input: puzzle.Grid{{3, 4}}, Output: puzzle.Grid{{4, 3}}},
		},
		Test: []puzzle.Example{
			{Input: puzzle.Grid{{5, 6}}, Output: puzzle.Grid{{6, 5}}},
		},
	}
}

func newRunState(templates map[string]string, provider *fakeProvider) *RunState {
	return &RunState{
		Context:  NewContext(),
		Composer: testComposer(templates),
		Provider: provider,
		Logger:   logger.NewNullLogger(),
	}
}

func TestProcessWithLLMParamsWin(t *testing.T) {
	provider := &fakeProvider{}
	run := newRunState(map[string]string{"echo.yaml": echoTemplate}, provider)
	run.Context.Set("name", "world")

	spec := StepSpec{
		Name:            "echo",
		Function:        StepProcessWithLLM,
		PromptTemplates: []string{"echo.yaml"},
		Params:          map[string]interface{}{"greeting": "hello", "name": "override"},
	}

	value, err := ProcessWithLLM(context.Background(), run, spec)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)

	require.Equal(t, 1, provider.promptCount())
	require.Len(t, provider.prompts[0], 1)
	assert.Equal(t, "hello override", provider.prompts[0][0].Content)

	// Params shape the render context only; they are never written back.
	assert.Equal(t, "world", run.Context.Value("name"))
	assert.False(t, run.Context.Has("greeting"))
}

func TestProcessWithLLMMissingVariable(t *testing.T) {
	provider := &fakeProvider{}
	run := newRunState(map[string]string{"echo.yaml": echoTemplate}, provider)

	spec := StepSpec{
		Name:            "echo",
		Function:        StepProcessWithLLM,
		PromptTemplates: []string{"echo.yaml"},
		Params:          map[string]interface{}{"greeting": "hello"},
	}

	_, err := ProcessWithLLM(context.Background(), run, spec)
	var renderErr *prompt.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "name", renderErr.Var)
	assert.Equal(t, 0, provider.promptCount())
}

func TestGenerateRules(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"rules": ["swap adjacent cells"], "explanation": "columns exchange"}`,
		"```json\n{\"rules\": [\"swap adjacent cells\", \"mirror columns\"], \"explanation\": \"refined\"}\n```",
	}}
	run := newRunState(map[string]string{"derive.yaml": deriveTemplate}, provider)
	run.Context.Set("problem_set", trainProblemSet())

	spec := StepSpec{
		Name:            "derive",
		Function:        StepGenerateRules,
		PromptTemplates: []string{"derive.yaml"},
	}

	value, err := GenerateRules(context.Background(), run, spec)
	require.NoError(t, err)
	require.Equal(t, 2, provider.promptCount())

	first := provider.prompts[0]
	require.Len(t, first, 2)
	assert.Equal(t, prompt.RoleSystem, first[0].Role)
	assert.Contains(t, first[1].Content, "Input:")
	assert.Contains(t, first[1].Content, "1: 1 2")
	assert.Contains(t, first[1].Content, "1: 2 1")
	assert.NotContains(t, first[1].Content, "Existing rules")

	second := provider.prompts[1]
	require.Len(t, second, 2)
	assert.Contains(t, second[1].Content, "1: 3 4")
	assert.Contains(t, second[1].Content, "Existing rules:")
	assert.Contains(t, second[1].Content, "swap adjacent cells")

	current, ok := run.Context.Get("current_rules")
	require.True(t, ok)
	rs, ok := current.(*puzzle.RuleSet)
	require.True(t, ok)
	assert.Equal(t, []string{"swap adjacent cells", "mirror columns"}, rs.Rules)
	assert.Equal(t, "refined", rs.Explanation)

	// The step's return value is the final rule set.
	assert.Same(t, rs, value)

	afterFirst, ok := run.Context.Value("rules_after_example_1").(*puzzle.RuleSet)
	require.True(t, ok)
	assert.Equal(t, []string{"swap adjacent cells"}, afterFirst.Rules)
	assert.Same(t, rs, run.Context.Value("rules_after_example_2"))
}

func TestGenerateRulesMissingProblemSet(t *testing.T) {
	provider := &fakeProvider{}
	run := newRunState(map[string]string{"derive.yaml": deriveTemplate}, provider)

	_, err := GenerateRules(context.Background(), run, StepSpec{Name: "derive", PromptTemplates: []string{"derive.yaml"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem set")
	assert.Equal(t, 0, provider.promptCount())
}

func TestGenerateRulesBadResponse(t *testing.T) {
	provider := &fakeProvider{responses: []string{"these are not the rules you are looking for"}}
	run := newRunState(map[string]string{"derive.yaml": deriveTemplate}, provider)
	run.Context.Set("problem_set", trainProblemSet())

	_, err := GenerateRules(context.Background(), run, StepSpec{Name: "derive", PromptTemplates: []string{"derive.yaml"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "example 1")
	assert.False(t, run.Context.Has("current_rules"))
}

func TestSolvePuzzleWithRules(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"output_grid": [[6, 5]], "explanation": "swapped"}`}}
	run := newRunState(map[string]string{"solve.yaml": solveTemplate}, provider)
	run.Context.Set("problem_set", trainProblemSet())
	run.Context.Set("current_rules", &puzzle.RuleSet{Rules: []string{"swap adjacent cells"}, Explanation: "columns exchange"})

	spec := StepSpec{
		Name:            "solve",
		Function:        StepSolvePuzzleWithRules,
		PromptTemplates: []string{"solve.yaml"},
	}

	value, err := SolvePuzzleWithRules(context.Background(), run, spec)
	require.NoError(t, err)

	attempts, ok := value.([]puzzle.Attempt)
	require.True(t, ok)
	require.Len(t, attempts, 1)
	assert.Equal(t, puzzle.Grid{{5, 6}}, attempts[0].TestInput)
	assert.Equal(t, puzzle.Grid{{6, 5}}, attempts[0].OutputGrid)
	assert.Equal(t, "swapped", attempts[0].Explanation)

	stored, ok := run.Context.Get("test_results")
	require.True(t, ok)
	assert.Equal(t, attempts, stored)

	require.Equal(t, 1, provider.promptCount())
	content := provider.prompts[0][0].Content
	assert.Contains(t, content, "5 6")
	assert.Contains(t, content, "Rules:")
	assert.Contains(t, content, "swap adjacent cells")
	assert.NotContains(t, content, "Output:")
}

func TestSolvePuzzleBadResponse(t *testing.T) {
	provider := &fakeProvider{responses: []string{"no grid here"}}
	run := newRunState(map[string]string{"solve.yaml": solveTemplate}, provider)
	run.Context.Set("problem_set", trainProblemSet())
	run.Context.Set("current_rules", &puzzle.RuleSet{Rules: []string{"swap"}})

	_, err := SolvePuzzleWithRules(context.Background(), run, StepSpec{Name: "solve", PromptTemplates: []string{"solve.yaml"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test 1")
	assert.False(t, run.Context.Has("test_results"))
}

func TestEvaluateResponseScoresAttempts(t *testing.T) {
	ps := &puzzle.ProblemSet{
		Test: []puzzle.Example{
			{Input: puzzle.Grid{{5, 6}}, Output: puzzle.Grid{{6, 5}}},
			{Input: puzzle.Grid{{7, 8}}, Output: puzzle.Grid{{8, 7}}},
		},
	}
	attempts := []puzzle.Attempt{
		{TestInput: puzzle.Grid{{5, 6}}, OutputGrid: puzzle.Grid{{6, 5}}, Explanation: "right"},
		{TestInput: puzzle.Grid{{7, 8}}, OutputGrid: puzzle.Grid{{0, 0}}, Explanation: "wrong"},
	}

	// No provider: evaluation never calls the model.
	run := &RunState{Context: NewContext(), Logger: logger.NewNullLogger()}
	run.Context.Set("problem_set", ps)
	run.Context.Set("test_results", attempts)

	value, err := EvaluateResponse(context.Background(), run, StepSpec{Name: "judge"})
	require.NoError(t, err)

	report, ok := value.(*puzzle.Report)
	require.True(t, ok)
	assert.Equal(t, 1, report.Correct)
	assert.Equal(t, 2, report.Total)
	assert.InDelta(t, 0.5, report.Score(), 0.001)

	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Results[0].TestIndex)
	assert.True(t, report.Results[0].Match)
	assert.Equal(t, puzzle.Grid{{6, 5}}, report.Results[0].Correct)
	assert.Equal(t, 2, report.Results[1].TestIndex)
	assert.False(t, report.Results[1].Match)
	assert.Equal(t, "wrong", report.Results[1].Explanation)

	assert.Same(t, report, run.Context.Value("evaluation_report"))
	results, ok := run.Context.Value("evaluation_results").([]puzzle.Evaluation)
	require.True(t, ok)
	assert.Len(t, results, 2)
}

func TestEvaluateResponseGenericEquality(t *testing.T) {
	run := &RunState{Context: NewContext(), Logger: logger.NewNullLogger()}
	run.Context.Set("want", "x")
	run.Context.Set("got", "x")

	spec := StepSpec{
		Name:   "judge",
		Params: map[string]interface{}{"expected_key": "want", "actual_key": "got"},
	}

	value, err := EvaluateResponse(context.Background(), run, spec)
	require.NoError(t, err)
	assert.Equal(t, true, value)

	run.Context.Set("got", "y")
	value, err = EvaluateResponse(context.Background(), run, spec)
	require.NoError(t, err)
	assert.Equal(t, false, value)
}

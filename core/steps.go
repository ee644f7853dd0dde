package core

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cast"

	"github.com/promptline/promptline/puzzle"
)

// ProcessWithLLM composes the step's templates against the full context
// and returns the provider's text response. Params override context keys
// for rendering only; they are never written back.
func ProcessWithLLM(ctx context.Context, run *RunState, spec StepSpec) (interface{}, error) {
	vars := run.Context.Snapshot()
	for k, v := range spec.Params {
		vars[k] = v
	}
	messages, err := run.Composer.Compose(spec.PromptTemplates, vars)
	if err != nil {
		return nil, err
	}
	return run.Provider.ProcessPrompt(ctx, messages)
}

// GenerateRules walks the training examples one pair at a time, asking
// the model to refine its transformation rules after each. The rule set
// after example N is kept under rules_after_example_N and the latest one
// under current_rules, which is also the step's return value.
func GenerateRules(ctx context.Context, run *RunState, spec StepSpec) (interface{}, error) {
	ps, err := puzzle.ProblemSetFrom(run.Context.Value(keyParam(spec.Params, "problem_set_key", "problem_set")))
	if err != nil {
		return nil, err
	}

	var current *puzzle.RuleSet
	for i, example := range ps.Train {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := i + 1

		repr, err := puzzle.VisualizePair(example.Input, example.Output, puzzle.RepresentationVerticalNumbered)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", idx, err)
		}

		vars := renderVars(spec.Params)
		vars["problem_set_representation"] = repr
		vars["existing_rules"] = ""
		if current != nil {
			encoded, err := json.MarshalIndent(current, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("example %d: encoding rules: %w", idx, err)
			}
			vars["existing_rules"] = string(encoded)
		}

		messages, err := run.Composer.Compose(spec.PromptTemplates, vars)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", idx, err)
		}
		text, err := run.Provider.ProcessPrompt(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", idx, err)
		}
		rules, err := puzzle.ParseRuleSet(text)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", idx, err)
		}

		current = rules
		run.Context.Set(fmt.Sprintf("rules_after_example_%d", idx), rules)
		run.Context.Set("current_rules", rules)
		run.Logger.WithField("example", idx).WithField("rules", len(rules.Rules)).Debug("rule set refined")
	}
	if current == nil {
		return nil, nil
	}
	return current, nil
}

// SolvePuzzleWithRules applies the current rule set to each test input
// and collects the model's attempts under test_results.
func SolvePuzzleWithRules(ctx context.Context, run *RunState, spec StepSpec) (interface{}, error) {
	ps, err := puzzle.ProblemSetFrom(run.Context.Value(keyParam(spec.Params, "problem_set_key", "problem_set")))
	if err != nil {
		return nil, err
	}
	rules, err := puzzle.RuleSetFrom(run.Context.Value(keyParam(spec.Params, "rules_key", "current_rules")))
	if err != nil {
		return nil, err
	}
	rulesJSON, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding rules: %w", err)
	}

	attempts := make([]puzzle.Attempt, 0, len(ps.Test))
	for i, example := range ps.Test {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := i + 1

		repr, err := puzzle.VisualizePair(example.Input, nil, puzzle.RepresentationVertical)
		if err != nil {
			return nil, fmt.Errorf("test %d: %w", idx, err)
		}

		vars := renderVars(spec.Params)
		vars["test_input_representation"] = repr
		vars["current_rules"] = string(rulesJSON)

		messages, err := run.Composer.Compose(spec.PromptTemplates, vars)
		if err != nil {
			return nil, fmt.Errorf("test %d: %w", idx, err)
		}
		text, err := run.Provider.ProcessPrompt(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("test %d: %w", idx, err)
		}
		attempt, err := puzzle.ParseAttempt(text)
		if err != nil {
			return nil, fmt.Errorf("test %d: %w", idx, err)
		}

		attempt.TestInput = example.Input
		attempts = append(attempts, *attempt)
		run.Logger.WithField("test", idx).Debug("test input solved")
	}

	run.Context.Set("test_results", attempts)
	return attempts, nil
}

// EvaluateResponse compares an expected context value against an actual
// one without calling the provider. A problem set paired with solve
// attempts produces a scored Report and writes evaluation_results and
// evaluation_report; any other pair is compared for deep equality and
// yields a bool.
func EvaluateResponse(ctx context.Context, run *RunState, spec StepSpec) (interface{}, error) {
	expected := run.Context.Value(keyParam(spec.Params, "expected_key", "problem_set"))
	actual := run.Context.Value(keyParam(spec.Params, "actual_key", "test_results"))

	ps, psErr := puzzle.ProblemSetFrom(expected)
	attempts, atErr := puzzle.AttemptsFrom(actual)
	if psErr == nil && atErr == nil && len(ps.Train)+len(ps.Test) > 0 {
		report := evaluateAttempts(ps, attempts)
		run.Context.Set("evaluation_results", report.Results)
		run.Context.Set("evaluation_report", report)
		run.Logger.WithField("correct", report.Correct).WithField("total", report.Total).Info("attempts evaluated")
		return report, nil
	}

	return reflect.DeepEqual(expected, actual), nil
}

func evaluateAttempts(ps *puzzle.ProblemSet, attempts []puzzle.Attempt) *puzzle.Report {
	n := len(attempts)
	if len(ps.Test) < n {
		n = len(ps.Test)
	}
	results := make([]puzzle.Evaluation, 0, n)
	correct := 0
	for i := 0; i < n; i++ {
		attempt := attempts[i]
		want := ps.Test[i].Output
		match := attempt.OutputGrid.Equal(want)
		if match {
			correct++
		}
		results = append(results, puzzle.Evaluation{
			TestIndex:   i + 1,
			Match:       match,
			TestInput:   attempt.TestInput,
			Generated:   attempt.OutputGrid,
			Correct:     want,
			Explanation: attempt.Explanation,
		})
	}
	return &puzzle.Report{Results: results, Correct: correct, Total: n}
}

// keyParam reads a string-valued param, falling back when absent or empty.
func keyParam(params map[string]interface{}, name, fallback string) string {
	if v, ok := params[name]; ok {
		if s := cast.ToString(v); s != "" {
			return s
		}
	}
	return fallback
}

// renderVars seeds a render context from the step's params. The puzzle
// steps overlay their computed variables on top, so params cannot shadow
// those.
func renderVars(params map[string]interface{}) map[string]interface{} {
	vars := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		vars[k] = v
	}
	return vars
}

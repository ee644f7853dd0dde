package core

import (
	"context"
	"sort"
	"sync"

	"github.com/promptline/promptline/llm"
	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
)

// StepFunc is a step implementation. It may read and write the run's
// context freely; the returned value is bound to the step's output_key
// by the engine, or discarded when no output_key is set.
type StepFunc func(ctx context.Context, run *RunState, spec StepSpec) (interface{}, error)

// RunState bundles everything a step function can reach during a run.
type RunState struct {
	Context  *Context
	Composer *prompt.Composer
	Provider llm.Provider
	Logger   logger.Logger
}

// Built-in step function names.
const (
	StepProcessWithLLM       = "process_with_llm"
	StepGenerateRules        = "generate_rules"
	StepSolvePuzzleWithRules = "solve_puzzle_with_rules"
	StepEvaluateResponse     = "evaluate_response"
)

// Registry maps step function names to implementations. Registering a
// name that already exists replaces the previous binding; that is the
// supported way to override a built-in.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]StepFunc
}

// NewRegistry returns a registry preloaded with the built-in steps.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]StepFunc)}
	r.Register(StepProcessWithLLM, ProcessWithLLM)
	r.Register(StepGenerateRules, GenerateRules)
	r.Register(StepSolvePuzzleWithRules, SolvePuzzleWithRules)
	r.Register(StepEvaluateResponse, EvaluateResponse)
	return r
}

func (r *Registry) Register(name string, fn StepFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Resolve(name string) (StepFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, &StepResolutionError{Function: name}
	}
	return fn, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

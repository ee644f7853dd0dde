package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptline/promptline/llm"
	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
)

// Status tracks where an engine is in its run lifecycle.
type Status int

const (
	StatusIdle Status = iota
	StatusLoaded
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoaded:
		return "loaded"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepPublisher receives step lifecycle events during a run.
type StepPublisher interface {
	PublishStep(name string, index int)
	Error(name string, index int, err error)
}

// DefaultStepPublisher discards all events.
type DefaultStepPublisher struct{}

func (p *DefaultStepPublisher) PublishStep(name string, index int) {}

func (p *DefaultStepPublisher) Error(name string, index int, err error) {}

// Engine executes chain definitions step by step. One engine runs one
// chain at a time; concurrent runs need separate engines, which may
// share a registry and composer.
type Engine struct {
	registry  *Registry
	composer  *prompt.Composer
	provider  llm.Provider
	publisher StepPublisher
	logger    logger.Logger

	mu     sync.Mutex
	status Status
}

func NewEngine(registry *Registry, composer *prompt.Composer, provider llm.Provider, publisher StepPublisher, log logger.Logger) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	if publisher == nil {
		publisher = &DefaultStepPublisher{}
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Engine{
		registry:  registry,
		composer:  composer,
		provider:  provider,
		publisher: publisher,
		logger:    log,
		status:    StatusIdle,
	}
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Registry exposes the engine's step registry so callers can register
// custom step functions before running.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Validate checks a definition eagerly, including that every step
// function resolves. Run performs the same resolution lazily, step by
// step.
func (e *Engine) Validate(def *ChainDefinition) error {
	if def == nil {
		return &ConfigError{Reason: "definition is nil"}
	}
	if err := def.Validate(); err != nil {
		return err
	}
	for i, spec := range def.Steps {
		if _, err := e.registry.Resolve(spec.Function); err != nil {
			return &StepError{Step: spec.Name, Index: i, Err: err}
		}
	}
	return nil
}

// Run executes def's steps strictly in declaration order. Each run
// starts from a fresh context seeded with the definition's
// initial_context and then the caller's overrides; the engine carries
// nothing between runs. On failure the partially-written context is
// returned alongside the error for diagnostics.
func (e *Engine) Run(ctx context.Context, def *ChainDefinition, overrides map[string]interface{}) (*Context, error) {
	e.setStatus(StatusIdle)
	if def == nil {
		e.setStatus(StatusFailed)
		return nil, &ConfigError{Reason: "definition is nil"}
	}
	if err := def.Validate(); err != nil {
		e.setStatus(StatusFailed)
		return nil, err
	}
	e.setStatus(StatusLoaded)

	runID := uuid.NewString()
	log := e.logger.WithField("run_id", runID).WithField("chain", def.Name)

	runCtx := NewContext()
	for k, v := range def.InitialContext {
		runCtx.Set(k, v)
	}
	for k, v := range overrides {
		runCtx.Set(k, v)
	}
	run := &RunState{Context: runCtx, Composer: e.composer, Provider: e.provider, Logger: log}

	e.setStatus(StatusRunning)
	log.WithField("steps", len(def.Steps)).Info("chain execution started")

	for i, spec := range def.Steps {
		select {
		case <-ctx.Done():
			return runCtx, e.fail(log, spec.Name, i, ctx.Err())
		default:
		}

		fn, err := e.registry.Resolve(spec.Function)
		if err != nil {
			return runCtx, e.fail(log, spec.Name, i, err)
		}

		start := time.Now()
		value, err := fn(ctx, run, spec)
		if err != nil {
			return runCtx, e.fail(log, spec.Name, i, err)
		}
		// A cancelled step never commits its value.
		if err := ctx.Err(); err != nil {
			return runCtx, e.fail(log, spec.Name, i, err)
		}
		if spec.OutputKey != "" {
			runCtx.Set(spec.OutputKey, value)
		}

		log.WithField("step", spec.Name).WithField("duration", time.Since(start).String()).Info("step completed")
		e.publisher.PublishStep(spec.Name, i)
	}

	e.setStatus(StatusCompleted)
	log.Info("chain execution completed")
	return runCtx, nil
}

func (e *Engine) fail(log logger.Logger, step string, index int, err error) error {
	e.setStatus(StatusFailed)
	wrapped := &StepError{Step: step, Index: index, Err: err}
	log.WithField("step", step).WithField("index", index).Error(wrapped.Error())
	e.publisher.Error(step, index, wrapped)
	return wrapped
}

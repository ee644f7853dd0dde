package cli

import (
	"context"
	"sync"
	"time"

	"github.com/promptline/promptline/core"
	"github.com/promptline/promptline/llm"
	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
)

// ExecutionRequest is one queued chain run. The result channel receives
// exactly one ExecutionResult and is closed by the worker.
type ExecutionRequest struct {
	Definition *core.ChainDefinition
	Overrides  map[string]interface{}
	ResultChan chan ExecutionResult
	CreatedAt  time.Time
}

// ExecutionResult carries a run's final context. On failure Context
// holds whatever the chain produced before the failing step.
type ExecutionResult struct {
	Context *core.Context
	Err     error
}

// Engine fans independent chain runs out to a fixed pool of workers.
// The registry, composer, and provider are shared across workers; each
// request gets its own core.Engine and execution context.
type Engine struct {
	registry     *core.Registry
	composer     *prompt.Composer
	provider     llm.Provider
	publisher    core.StepPublisher
	logger       logger.Logger
	requests     chan ExecutionRequest
	workers      int
	workerWG     sync.WaitGroup
	shutdownChan chan struct{}
}

// NewBatchEngine creates an engine backed by the given number of
// workers. Requests queue on a buffered channel until a worker frees up.
func NewBatchEngine(registry *core.Registry, composer *prompt.Composer, provider llm.Provider, publisher core.StepPublisher, workers int, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		registry:     registry,
		composer:     composer,
		provider:     provider,
		publisher:    publisher,
		logger:       log,
		requests:     make(chan ExecutionRequest, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Shutdown is called.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Debug("Starting batch engine workers")
	for i := 0; i < e.workers; i++ {
		e.workerWG.Add(1)
		go e.worker(ctx)
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.workerWG.Done()
	for {
		select {
		case req := <-e.requests:
			runner := core.NewEngine(e.registry, e.composer, e.provider, e.publisher, e.logger)
			execCtx, err := runner.Run(ctx, req.Definition, req.Overrides)
			req.ResultChan <- ExecutionResult{Context: execCtx, Err: err}
			close(req.ResultChan)
		case <-ctx.Done():
			return
		case <-e.shutdownChan:
			return
		}
	}
}

// AddRequest queues a run and returns the channel its result will
// arrive on.
func (e *Engine) AddRequest(def *core.ChainDefinition, overrides map[string]interface{}) chan ExecutionResult {
	resultChan := make(chan ExecutionResult, 1)
	e.requests <- ExecutionRequest{
		Definition: def,
		Overrides:  overrides,
		ResultChan: resultChan,
		CreatedAt:  time.Now(),
	}
	return resultChan
}

// Shutdown stops the workers and waits up to timeout for them to finish
// their current runs.
func (e *Engine) Shutdown(timeout time.Duration) {
	e.logger.Debug("Shutting down batch engine")
	close(e.shutdownChan)

	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Debug("All workers shut down gracefully")
	case <-time.After(timeout):
		e.logger.Warn("Shutdown timed out, some workers may still be running")
	}
}

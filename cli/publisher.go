package cli

import (
	"fmt"

	"github.com/promptline/promptline/logger"
)

// StepEvent records a completed step as published by the engine.
type StepEvent struct {
	Name  string
	Index int
}

// CliStepPublisher buffers step and error events on channels so the
// command layer can report progress without ever blocking a run.
type CliStepPublisher struct {
	stepChan  chan StepEvent
	errorChan chan error
	logger    logger.Logger
}

func NewCliStepPublisher(log logger.Logger) *CliStepPublisher {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &CliStepPublisher{
		stepChan:  make(chan StepEvent, 100),
		errorChan: make(chan error, 10),
		logger:    log,
	}
}

// PublishStep sends the event to the step channel, dropping it if the
// buffer is full.
func (p *CliStepPublisher) PublishStep(name string, index int) {
	select {
	case p.stepChan <- StepEvent{Name: name, Index: index}:
		p.logger.Debug(fmt.Sprintf("Published step event: %s", name))
	default:
		p.logger.Warn(fmt.Sprintf("Step channel full, dropping event: %s", name))
	}
}

// Error sends the step failure to the error channel, dropping it if the
// buffer is full.
func (p *CliStepPublisher) Error(name string, index int, err error) {
	select {
	case p.errorChan <- err:
		p.logger.Debug(fmt.Sprintf("Published error event for step: %s", name))
	default:
		p.logger.Warn(fmt.Sprintf("Error channel full, dropping event for step: %s", name))
	}
}

// Steps exposes the buffered step events.
func (p *CliStepPublisher) Steps() <-chan StepEvent {
	return p.stepChan
}

// Errors exposes the buffered step failures.
func (p *CliStepPublisher) Errors() <-chan error {
	return p.errorChan
}

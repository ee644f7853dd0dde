package core

import "fmt"

// ConfigError reports a structurally invalid chain definition.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid chain definition: " + e.Reason
}

// StepResolutionError reports a step function name with no registration.
type StepResolutionError struct {
	Function string
}

func (e *StepResolutionError) Error() string {
	return fmt.Sprintf("no step function registered for %q", e.Function)
}

// StepError wraps a failure inside a step with the step's name and its
// position in the chain.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (index %d): %v", e.Step, e.Index, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExecuted is returned by Execute and Add once the engine has run.
	// Call Reset to run the same pipelines again.
	ErrAlreadyExecuted = errors.New("engine already executed")

	// ErrRunning is returned when the engine is used while a run is in progress.
	ErrRunning = errors.New("engine is running")

	// ErrNotDependency is returned when a module reads the output of a
	// pipeline its own pipeline does not declare as a dependency.
	ErrNotDependency = errors.New("pipeline is not a declared dependency")
)

// ModuleFaultError is the root cause of a FAULTED pipeline.
type ModuleFaultError struct {
	Pipeline string
	Module   string
	Index    int
	Err      error
}

func (e *ModuleFaultError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("pipeline %q: module %d (%s): %v", e.Pipeline, e.Index, e.Module, e.Err)
}

func (e *ModuleFaultError) Unwrap() error { return e.Err }

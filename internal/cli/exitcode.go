package cli

import (
	"errors"
	"fmt"

	"contentweaver/internal/dag"
)

const (
	ExitSuccess           = 0
	ExitGraphFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// ExitError carries the semantic exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

func invalidInvocationf(format string, args ...any) error {
	return &ExitError{Code: ExitInvalidInvocation, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps an error returned by a command to its exit code.
// Graph errors are configuration errors; anything unclassified is internal.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr != nil {
		if exitErr.Code != 0 {
			return exitErr.Code
		}
		return ExitInternalError
	}
	var ge *dag.GraphError
	if errors.As(err, &ge) {
		return ExitConfigError
	}
	return ExitInternalError
}

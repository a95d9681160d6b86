package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph        = errors.New("invalid pipeline graph")
	ErrCycleFound          = errors.New("cycle detected")
	ErrUnknownDependency   = errors.New("unknown dependency")
	ErrDuplicatePipeline   = errors.New("duplicate pipeline")
	ErrUndeclaredReference = errors.New("undeclared pipeline reference")
)

// GraphError wraps deterministic graph validation failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

// NewGraphError builds a GraphError of the given kind.
func NewGraphError(kind error, format string, args ...any) error {
	return &GraphError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) error {
	return NewGraphError(ErrInvalidGraph, format, args...)
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return &GraphError{Kind: ErrCycleFound, Msg: msg}
}

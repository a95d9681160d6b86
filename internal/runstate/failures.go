package runstate

import (
	"context"
	"errors"
	"sort"

	"contentweaver/internal/dag"
	"contentweaver/internal/engine"
)

// FailureFromError classifies an error returned by engine.Engine.Execute or
// by the surrounding setup.
func FailureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var ge *dag.GraphError
	if errors.As(err, &ge) && ge != nil {
		return Failure{
			FailureClass: FailureClassGraph,
			ErrorCode:    graphErrorCode(ge.Kind),
			ErrorMessage: ge.Error(),
		}, nil
	}

	var mf *engine.ModuleFaultError
	if errors.As(err, &mf) && mf != nil {
		pipeline, module := mf.Pipeline, mf.Module
		return Failure{
			FailureClass: FailureClassExecution,
			Pipeline:     &pipeline,
			Module:       &module,
			ErrorCode:    "ModuleFault",
			ErrorMessage: mf.Error(),
		}, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code := "Cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			code = "DeadlineExceeded"
		}
		return Failure{
			FailureClass: FailureClassCancelled,
			ErrorCode:    code,
			ErrorMessage: err.Error(),
		}, nil
	}

	return Failure{
		FailureClass: FailureClassSystem,
		ErrorCode:    "UnknownError",
		ErrorMessage: err.Error(),
	}, nil
}

// FailureFromResult picks the root cause of an unsuccessful run: the first
// faulted pipeline by name, else the cancellation. ok is false for a
// successful run.
func FailureFromResult(res *engine.Result) (f Failure, ok bool, err error) {
	if res == nil {
		return Failure{}, false, errors.New("nil result")
	}
	if res.Succeeded() {
		return Failure{}, false, nil
	}

	names := make([]string, 0, len(res.Faults))
	for n := range res.Faults {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		f, err := FailureFromError(res.Faults[n])
		if err != nil {
			return Failure{}, false, err
		}
		if f.Pipeline == nil {
			name := n
			f.Pipeline = &name
			if f.FailureClass == FailureClassSystem {
				f.FailureClass = FailureClassExecution
				f.ErrorCode = "PipelineFault"
			}
		}
		return f, true, nil
	}

	f, err = FailureFromError(res.Err())
	if err != nil {
		return Failure{}, false, err
	}
	return f, true, nil
}

func graphErrorCode(kind error) string {
	switch {
	case errors.Is(kind, dag.ErrCycleFound):
		return "CycleFound"
	case errors.Is(kind, dag.ErrUnknownDependency):
		return "UnknownDependency"
	case errors.Is(kind, dag.ErrDuplicatePipeline):
		return "DuplicatePipeline"
	case errors.Is(kind, dag.ErrUndeclaredReference):
		return "UndeclaredReference"
	default:
		return "InvalidGraph"
	}
}

// StatusFromResult maps a run result to the persisted status.
func StatusFromResult(res *engine.Result) RunStatus {
	switch {
	case res == nil:
		return RunStatusFailed
	case res.Succeeded():
		return RunStatusSucceeded
	case len(res.Faults) == 0 && len(res.Cancelled) > 0:
		return RunStatusCancelled
	default:
		return RunStatusFailed
	}
}

package engine

import (
	"errors"
	"sort"

	"contentweaver/internal/core"
	"contentweaver/internal/dag"
)

// Result is the outcome of one engine run.
type Result struct {
	GraphHash dag.GraphHash

	// States holds the terminal state of every pipeline by registered name.
	States map[string]dag.PipelineState

	// Outputs holds the frozen output of every COMPLETED pipeline.
	Outputs map[string][]*core.Document

	// Faults holds the error of every FAULTED pipeline. Skipped dependents
	// are not repeated here; see SkipCauses.
	Faults map[string]error

	// SkipCauses maps each SKIPPED pipeline to the pipeline that caused it.
	SkipCauses map[string]string

	// Cancelled lists the CANCELLED pipelines, sorted.
	Cancelled []string

	// ExecutionOrder lists pipelines in the order they started.
	ExecutionOrder []string

	ctxErr error
}

// Succeeded reports whether every pipeline completed.
func (r *Result) Succeeded() bool {
	if r == nil {
		return false
	}
	for _, st := range r.States {
		if st != dag.StateCompleted {
			return false
		}
	}
	return true
}

func (r *Result) lookup(name string) (string, bool) {
	if _, ok := r.States[name]; ok {
		return name, true
	}
	key := dag.NormalizeName(name)
	for n := range r.States {
		if dag.NormalizeName(n) == key {
			return n, true
		}
	}
	return "", false
}

// State returns the terminal state of a pipeline, matched case-insensitively.
func (r *Result) State(name string) (dag.PipelineState, bool) {
	n, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	return r.States[n], true
}

// Output returns the output of a completed pipeline, matched case-insensitively.
func (r *Result) Output(name string) ([]*core.Document, bool) {
	n, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	docs, ok := r.Outputs[n]
	if !ok {
		return nil, false
	}
	return core.CloneDocuments(docs), true
}

// Err joins the root-cause faults in pipeline-name order. It returns
// context.Canceled (or the deadline error) for a run that only had
// cancellations, and nil for a successful run.
func (r *Result) Err() error {
	if r == nil || r.Succeeded() {
		return nil
	}
	names := make([]string, 0, len(r.Faults))
	for n := range r.Faults {
		names = append(names, n)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, n := range names {
		errs = append(errs, r.Faults[n])
	}
	if len(errs) == 0 && r.ctxErr != nil {
		return r.ctxErr
	}
	return errors.Join(errs...)
}

package dag

import "sort"

// GraphResult is the summary of a graph execution attempt.
//
// This intentionally includes:
//   - Final per-node states
//   - The observed start order (useful for ordering proofs/tests)
//   - The error of every FAULTED or CANCELLED pipeline
//   - For every SKIPPED pipeline, the faulted or cancelled pipeline that caused it
type GraphResult struct {
	GraphHash GraphHash

	// FinalState is the terminal state of each node by name.
	FinalState ExecutionState

	// ExecutionOrder is the ordered list of pipelines that were started (transitioned to RUNNING).
	ExecutionOrder []string

	// Errors holds the error returned by each FAULTED or CANCELLED pipeline.
	Errors map[string]error

	// SkipCause maps each SKIPPED pipeline to the root pipeline that caused the skip.
	SkipCause map[string]string
}

// Succeeded reports whether every pipeline completed.
func (r *GraphResult) Succeeded() bool {
	if r == nil {
		return false
	}
	for _, st := range r.FinalState {
		if st != StateCompleted {
			return false
		}
	}
	return true
}

// Names returns the names of the pipelines in the given state.
func (r *GraphResult) Names(state PipelineState) []string {
	if r == nil {
		return nil
	}
	var out []string
	for n, st := range r.FinalState {
		if st == state {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

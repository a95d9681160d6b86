package dag

// PipelineState is the runtime execution state of a node.
//
// This is intentionally separated from PipelineGraph, which is immutable.
//
//	PENDING -> RUNNING -> COMPLETED | FAULTED | CANCELLED
//	PENDING -> SKIPPED | CANCELLED
type PipelineState string

const (
	StatePending   PipelineState = "PENDING"
	StateRunning   PipelineState = "RUNNING"
	StateCompleted PipelineState = "COMPLETED"
	StateFaulted   PipelineState = "FAULTED"
	StateSkipped   PipelineState = "SKIPPED"
	StateCancelled PipelineState = "CANCELLED"
)

// ExecutionState maps pipeline name to its current PipelineState.
//
// It is intentionally a plain map so the scheduler can remain a pure function
// without coupling to an executor implementation.
type ExecutionState map[string]PipelineState

// Clone returns an independent copy of the state.
func (s ExecutionState) Clone() ExecutionState {
	cp := make(ExecutionState, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// Package dag defines the dependency graph and scheduler for pipeline execution.
//
// It is intentionally split into:
//   - Immutable graph definition (PipelineGraph): pipeline names + dependency structure + stable GraphHash
//   - Mutable execution state (ExecutionState): runtime statuses owned by the Executor
//
// Names are compared case-insensitively. The graph identity (GraphHash) is
// computed from the canonicalized node and edge structure, making it invariant
// to registration order.
package dag

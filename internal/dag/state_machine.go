package dag

import (
	"container/heap"
	"fmt"
)

// IsTerminal reports whether the state is terminal (finished).
func IsTerminal(s PipelineState) bool {
	switch s {
	case StateCompleted, StateFaulted, StateSkipped, StateCancelled:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the state satisfies dependencies.
func IsSuccessful(s PipelineState) bool {
	return s == StateCompleted
}

// Transition performs an atomic validated transition for a single pipeline.
//
// The caller supplies the expected prior state (from) to make races observable.
// This function mutates the provided state map if and only if the transition is valid.
func Transition(state ExecutionState, name string, from, to PipelineState) error {
	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown pipeline in state: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	state[name] = to
	return nil
}

func isAllowedTransition(from, to PipelineState) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateSkipped || to == StateCancelled
	case StateRunning:
		return to == StateCompleted || to == StateFaulted || to == StateCancelled
	default:
		return false
	}
}

// FailAndPropagate transitions name from RUNNING to FAULTED and transitively
// marks all pending downstream dependents as SKIPPED.
//
// It returns the names of the pipelines it skipped, in traversal order.
func FailAndPropagate(g *PipelineGraph, state ExecutionState, name string) ([]string, error) {
	return terminateAndPropagate(g, state, name, StateFaulted)
}

// CancelAndPropagate transitions name from RUNNING to CANCELLED and
// transitively marks all pending downstream dependents as SKIPPED.
func CancelAndPropagate(g *PipelineGraph, state ExecutionState, name string) ([]string, error) {
	return terminateAndPropagate(g, state, name, StateCancelled)
}

// terminateAndPropagate moves name into a non-successful terminal state and
// skips everything reachable from it.
//
// Determinism:
//   - The set of nodes marked SKIPPED is defined purely by reachability.
//   - Traversal is in deterministic canonical index order.
//
// Safety:
//   - If a downstream node is already RUNNING, this is treated as an invariant
//     violation (it indicates a missing synchronization/locking bug).
func terminateAndPropagate(g *PipelineGraph, state ExecutionState, name string, to PipelineState) ([]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	node, ok := g.Node(name)
	if !ok {
		return nil, fmt.Errorf("unknown pipeline: %q", name)
	}
	name = node.Name

	cur, ok := state[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline in state: %q", name)
	}
	if cur != StateRunning && cur != to {
		return nil, fmt.Errorf("cannot move %q to %s from state %s", name, to, cur)
	}
	if cur == StateRunning {
		state[name] = to
	}

	start := node.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &indexHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	var skipped []string
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		dn := g.nodes[u].Name
		st, ok := state[dn]
		if !ok {
			return skipped, fmt.Errorf("missing state for %q", dn)
		}

		switch st {
		case StatePending:
			state[dn] = StateSkipped
			skipped = append(skipped, dn)
		case StateRunning:
			return skipped, fmt.Errorf("invariant violation: downstream pipeline %q is RUNNING during failure propagation", dn)
		default:
			// Terminal (e.g., already skipped). Leave unchanged.
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	return skipped, nil
}

package dag

import (
	"sort"
)

// GetReadyPipelines returns the deterministically ordered list of pipeline names
// that are eligible to run.
//
// Policy:
//   - A pipeline is ready iff it is PENDING and all its dependencies are COMPLETED.
//   - The returned list is sorted by (topological depth asc, normalized name asc).
//
// This function is pure: it does not mutate graph or state.
func GetReadyPipelines(g *PipelineGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	ready := make([]*Node, 0)
	for _, node := range g.nodes {
		st, ok := state[node.Name]
		if !ok || st != StatePending {
			continue
		}

		depsOK := true
		for _, parentIdx := range g.incoming[node.canonicalIndex] {
			pst, ok := state[g.nodes[parentIdx].Name]
			if !ok || pst != StateCompleted {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, node)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		ad, bd := g.depth[a.canonicalIndex], g.depth[b.canonicalIndex]
		if ad != bd {
			return ad < bd
		}
		return a.Key < b.Key
	})

	names := make([]string, len(ready))
	for i, n := range ready {
		names[i] = n.Name
	}
	return names
}

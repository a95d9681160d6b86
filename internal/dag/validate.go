package dag

import "container/heap"

// indexHeap is a min-heap of canonical node indices.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// kahn runs Kahn's algorithm, always releasing the lowest ready index first.
// It returns the visit order and the in-degrees left over; a node with a
// non-zero leftover in-degree sits on or behind a cycle.
func (g *PipelineGraph) kahn() (order []int, remaining []int) {
	remaining = append([]int(nil), g.indeg...)
	ready := &indexHeap{}
	for i, d := range remaining {
		if d == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)

	order = make([]int, 0, len(remaining))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		order = append(order, u)
		for _, v := range g.outgoing[u] {
			if remaining[v]--; remaining[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	return order, remaining
}

func (g *PipelineGraph) topoOrderIndices() []int {
	order, _ := g.kahn()
	return order
}

// validateAcyclic rejects the graph if Kahn's algorithm cannot order every
// node, reporting one cycle as the witness.
func (g *PipelineGraph) validateAcyclic() error {
	order, remaining := g.kahn()
	if len(order) == len(g.nodes) {
		return nil
	}
	return cycleError(g.cycleWitness(remaining))
}

// cycleWitness returns one cycle, in dependency order and closed on its first
// name, e.g. [A B C A].
//
// Every node left over by kahn has a left-over predecessor, so walking
// predecessors from the lowest left-over index must revisit a node. The walk
// always takes the lowest left-over predecessor, which keeps the witness stable.
func (g *PipelineGraph) cycleWitness(remaining []int) []string {
	start := -1
	for i, d := range remaining {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := make(map[int]int)
	var walk []int
	for u := start; ; {
		if at, seen := pos[u]; seen {
			walk = append(walk[at:], u)
			break
		}
		pos[u] = len(walk)
		walk = append(walk, u)

		next := -1
		for _, p := range g.incoming[u] {
			if remaining[p] > 0 {
				next = p
				break
			}
		}
		if next < 0 {
			return nil
		}
		u = next
	}

	names := make([]string, len(walk))
	for i, idx := range walk {
		names[len(walk)-1-i] = g.nodes[idx].Name
	}
	return names
}

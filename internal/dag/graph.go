package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

type edgeIndex struct {
	from int
	to   int
}

// PipelineGraph is an immutable, validated DAG of pipelines.
//
// It is safe for concurrent read access.
type PipelineGraph struct {
	nodesByKey map[string]*Node
	nodes      []*Node // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	indeg    []int   // by canonical index
	depth    []int   // by canonical index (topological depth)

	hash GraphHash
}

// NormalizeName returns the comparison key for a pipeline name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewPipelineGraph builds and validates a PipelineGraph.
//
// Validation runs immediately and rejects:
//   - empty or duplicate pipeline names (case-insensitive)
//   - dependencies on unknown pipelines
//   - self-dependencies
//   - any cycle (direct or indirect)
//
// A dependency declared twice is kept once.
func NewPipelineGraph(defs []NodeDef) (*PipelineGraph, error) {
	nodesByKey := make(map[string]*Node, len(defs))
	nodes := make([]*Node, 0, len(defs))

	for _, d := range defs {
		key := NormalizeName(d.Name)
		if key == "" {
			return nil, invalidf("pipeline name is required")
		}
		if existing, exists := nodesByKey[key]; exists {
			return nil, NewGraphError(ErrDuplicatePipeline, "%q conflicts with %q", d.Name, existing.Name)
		}
		node := &Node{Name: strings.TrimSpace(d.Name), Key: key}
		nodesByKey[key] = node
		nodes = append(nodes, node)
	}

	// Canonicalize nodes by normalized key.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	// Resolve dependencies into edges, rejecting unknown names and self-loops.
	mapped := make([]edgeIndex, 0)
	seen := make(map[edgeIndex]struct{})
	for _, d := range defs {
		to := nodesByKey[NormalizeName(d.Name)]
		for _, dep := range d.Dependencies {
			from, ok := nodesByKey[NormalizeName(dep)]
			if !ok {
				return nil, NewGraphError(ErrUnknownDependency, "%q depends on %q", d.Name, dep)
			}
			if from == to {
				return nil, cycleError([]string{to.Name, to.Name})
			}
			pair := edgeIndex{from: from.canonicalIndex, to: to.canonicalIndex}
			if _, exists := seen[pair]; exists {
				continue
			}
			seen[pair] = struct{}{}
			mapped = append(mapped, pair)
			to.Dependencies = append(to.Dependencies, from.Name)
		}
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &PipelineGraph{
		nodesByKey: nodesByKey,
		nodes:      nodes,
		edges:      mapped,
		outgoing:   outgoing,
		incoming:   incoming,
		indeg:      indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()

	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity for this graph.
func (g *PipelineGraph) Hash() GraphHash { return g.hash }

// Len returns the number of pipelines in the graph.
func (g *PipelineGraph) Len() int { return len(g.nodes) }

// Node returns a node by name, matched case-insensitively.
func (g *PipelineGraph) Node(name string) (*Node, bool) {
	n, ok := g.nodesByKey[NormalizeName(name)]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *PipelineGraph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the dependency edges as stable (From, To) name pairs in canonical order.
func (g *PipelineGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Name, To: g.nodes[e.to].Name})
	}
	return out
}

// DependsOn reports whether pipeline directly declares dependency.
func (g *PipelineGraph) DependsOn(pipeline, dependency string) bool {
	n, ok := g.Node(pipeline)
	if !ok {
		return false
	}
	d, ok := g.Node(dependency)
	if !ok {
		return false
	}
	for _, p := range g.incoming[n.canonicalIndex] {
		if p == d.canonicalIndex {
			return true
		}
	}
	return false
}

// Dependents returns the names of the pipelines that directly depend on name,
// in canonical order.
func (g *PipelineGraph) Dependents(name string) []string {
	n, ok := g.Node(name)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.outgoing[n.canonicalIndex]))
	for _, c := range g.outgoing[n.canonicalIndex] {
		out = append(out, g.nodes[c].Name)
	}
	return out
}

// Depth returns the deterministic topological depth of the given node name.
//
// Depth is defined as the length of the longest path from any root to the node.
func (g *PipelineGraph) Depth(name string) (int, bool) {
	n, ok := g.Node(name)
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *PipelineGraph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	order := g.topoOrderIndices()
	for _, u := range order {
		maxParent := 0
		for _, p := range g.incoming[u] {
			cand := depth[p] + 1
			if cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic topological ordering of pipeline names.
//
// Since the graph is validated on construction, this method must not fail.
func (g *PipelineGraph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.nodes[idx].Name)
	}
	return names
}

func (g *PipelineGraph) computeGraphHash() GraphHash {
	h := sha256.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56),
			byte(length >> 48),
			byte(length >> 40),
			byte(length >> 32),
			byte(length >> 24),
			byte(length >> 16),
			byte(length >> 8),
			byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}
	writeInt := func(v int) {
		writeField([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	}

	// Nodes (canonical order)
	writeInt(len(g.nodes))
	for _, n := range g.nodes {
		writeField([]byte(n.Key))
	}

	// Edges (canonical order)
	writeInt(len(g.edges))
	for _, e := range g.edges {
		writeInt(e.from)
		writeInt(e.to)
	}

	sum := h.Sum(nil)
	return GraphHash(hex.EncodeToString(sum))
}

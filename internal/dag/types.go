package dag

// GraphHash is the deterministic identity of a PipelineGraph.
//
// It is computed solely from normalized pipeline names and dependency structure.
// It MUST be stable across different registration orders.
type GraphHash string

// Edge represents a dependency relation: To depends on From.
//
// A directed edge From -> To means To can only run after From completes successfully.
type Edge struct {
	From string
	To   string
}

// NodeDef is the declarative input for one pipeline node.
type NodeDef struct {
	Name         string
	Dependencies []string
}

// Node is an immutable node in the PipelineGraph.
//
// Name keeps the registered casing; Key is the normalized comparison key.
// Dependencies are resolved to the registered names of the dependency nodes,
// in declaration order.
type Node struct {
	Name         string
	Key          string
	Dependencies []string

	canonicalIndex int
}

// String returns the string representation of the GraphHash.
func (h GraphHash) String() string { return string(h) }

package comms

import "errors"

// ErrMultipleParents indicates a node has more than one incoming
// parent_child edge, violating the forest invariant.
var ErrMultipleParents = errors.New("comms: node has more than one parent")

// ValidateForest checks that edges of kind parent_child form a forest: every
// node appears as the "to" side of at most one parent_child edge. It does
// not check for cycles, since a spawn relationship is acyclic by
// construction (a node cannot be spawned by its own descendant).
func ValidateForest(t Topology) error {
	parents := make(map[string]bool)
	for _, e := range t.Edges {
		if e.Kind != EdgeParentChild {
			continue
		}
		if parents[e.To] {
			return ErrMultipleParents
		}
		parents[e.To] = true
	}
	return nil
}

// Builder accumulates nodes and edges for a Topology snapshot.
type Builder struct {
	topology Topology
}

// NewBuilder creates an empty topology Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode appends a node to the snapshot being built.
func (b *Builder) AddNode(n Node) *Builder {
	b.topology.Nodes = append(b.topology.Nodes, n)
	return b
}

// AddParentChild records a parent_child edge from parent to child.
func (b *Builder) AddParentChild(parentID, childID string) *Builder {
	b.topology.Edges = append(b.topology.Edges, Edge{From: parentID, To: childID, Kind: EdgeParentChild})
	return b
}

// AddPeer records a symmetric peer edge between two agents.
func (b *Builder) AddPeer(aID, bID string) *Builder {
	b.topology.Edges = append(b.topology.Edges, Edge{From: aID, To: bID, Kind: EdgePeer})
	return b
}

// Build returns the accumulated Topology snapshot.
func (b *Builder) Build() Topology {
	return b.topology
}

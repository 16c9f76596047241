package domain

import "sort"

// Graph is one complete topology built from a batch of flow records.
// It is rebuilt whole on every batch, never patched incrementally; after a
// build completes the graph is treated as read-only.
type Graph struct {
	Nodes   map[string]*Node  `json:"-"`
	Edges   map[EdgeKey]*Edge `json:"-"`
	Skipped int               `json:"skipped"` // malformed records dropped during the fold
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make(map[EdgeKey]*Edge),
	}
}

// NodeCount returns the number of distinct identities in the graph
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of distinct ordered identity pairs
func (g *Graph) EdgeCount() int {
	return len(g.Edges)
}

// Node returns the node for an identity key, or nil
func (g *Graph) Node(id string) *Node {
	return g.Nodes[id]
}

// Edge returns the edge for an ordered pair, or nil
func (g *Graph) Edge(from, to string) *Edge {
	return g.Edges[EdgeKey{From: from, To: to}]
}

// SortedNodes returns the nodes ordered by identity key, for deterministic
// serialization and layout input
func (g *Graph) SortedNodes() []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// SortedEdges returns the edges ordered by (from, to)
func (g *Graph) SortedEdges() []*Edge {
	edges := make([]*Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// Package graph builds the co-participation graph: users as nodes, edges
// weighted by shared-group engagement.
package graph

import (
	"sort"
)

// Pair is a canonical unordered user pair (A < B lexicographically).
type Pair struct {
	A string
	B string
}

// MakePair returns the canonical pair for two user ids.
func MakePair(u, v string) Pair {
	if u < v {
		return Pair{A: u, B: v}
	}
	return Pair{A: v, B: u}
}

// Edge is an exported weighted edge.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// Graph is an undirected simple weighted graph over user ids.
// Isolated users are valid nodes with no edges.
type Graph struct {
	nodes   map[string]struct{}
	weights map[Pair]int

	// Truncated is set when at least one group exceeded the participant
	// cap and contributed only a sampled pair set.
	Truncated bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		weights: make(map[Pair]int),
	}
}

// AddNode ensures a user exists in the node set.
func (g *Graph) AddNode(user string) {
	g.nodes[user] = struct{}{}
}

// AddEdge accumulates weight on the pair's edge. Self-pairs are ignored.
func (g *Graph) AddEdge(u, v string, weight int) {
	if u == v || weight <= 0 {
		return
	}
	g.nodes[u] = struct{}{}
	g.nodes[v] = struct{}{}
	g.weights[MakePair(u, v)] += weight
}

// Weight returns the edge weight between two users, 0 if no edge.
func (g *Graph) Weight(u, v string) int {
	if u == v {
		return 0
	}
	return g.weights[MakePair(u, v)]
}

// HasNode reports whether the user is in the node set.
func (g *Graph) HasNode(user string) bool {
	_, ok := g.nodes[user]
	return ok
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int { return len(g.weights) }

// Nodes returns all user ids in lexicographic order.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// Edges returns all edges ordered by (source, target).
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.weights))
	for p, w := range g.weights {
		edges = append(edges, Edge{Source: p.A, Target: p.B, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// WeightedDegree returns the sum of edge weights per node. Isolated nodes
// appear with degree 0.
func (g *Graph) WeightedDegree() map[string]float64 {
	wd := make(map[string]float64, len(g.nodes))
	for n := range g.nodes {
		wd[n] = 0
	}
	for p, w := range g.weights {
		wd[p.A] += float64(w)
		wd[p.B] += float64(w)
	}
	return wd
}

// Neighbors returns the adjacency map of a node over edges with weight >= minWeight.
func (g *Graph) Neighbors(user string, minWeight int) []string {
	var out []string
	for p, w := range g.weights {
		if w < minWeight {
			continue
		}
		if p.A == user {
			out = append(out, p.B)
		} else if p.B == user {
			out = append(out, p.A)
		}
	}
	sort.Strings(out)
	return out
}

// Merge adds another graph's nodes and edge weights into this one.
// Merging is associative: partial graphs built over disjoint group sets
// merge into the same graph regardless of order.
func (g *Graph) Merge(other *Graph) {
	for n := range other.nodes {
		g.nodes[n] = struct{}{}
	}
	for p, w := range other.weights {
		g.weights[p] += w
	}
	if other.Truncated {
		g.Truncated = true
	}
}

// Filtered returns a copy containing only edges with weight >= minWeight.
// The node set is restricted to the filtered edges' endpoints.
func (g *Graph) Filtered(minWeight int) *Graph {
	h := New()
	h.Truncated = g.Truncated
	for p, w := range g.weights {
		if w >= minWeight {
			h.AddEdge(p.A, p.B, w)
		}
	}
	return h
}

// Density returns the unweighted density of the graph.
func (g *Graph) Density() float64 {
	n := len(g.nodes)
	if n <= 1 {
		return 0
	}
	return 2 * float64(len(g.weights)) / float64(n*(n-1))
}

// Stats summarizes the graph for run reporting.
type Stats struct {
	Nodes     int     `json:"nodes"`
	Edges     int     `json:"edges"`
	Density   float64 `json:"density"`
	Truncated bool    `json:"truncated"`
}

// Stats returns summary statistics.
func (g *Graph) Stats() Stats {
	return Stats{
		Nodes:     g.NumNodes(),
		Edges:     g.NumEdges(),
		Density:   g.Density(),
		Truncated: g.Truncated,
	}
}

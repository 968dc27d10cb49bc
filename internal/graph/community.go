package graph

import "sort"

// Community is one partition of the co-participation graph: a connected
// component over edges at or above the configured minimum weight.
type Community struct {
	ID      int
	Members []string
	Density float64
}

// Partition holds the community assignment for a graph.
type Partition struct {
	// ByUser maps each node to its community id. Users with no qualifying
	// edge belong to no community and map to -1.
	ByUser map[string]int

	Communities []Community
}

// Unassigned is the community id of users outside every community.
const Unassigned = -1

// DetectCommunities partitions the graph into connected components over
// edges with weight >= minWeight, computing induced-subgraph density per
// component. Component ids are assigned in lexicographic order of each
// component's smallest member, so repeated runs on the same graph produce
// the same partition.
func (g *Graph) DetectCommunities(minWeight int) *Partition {
	filtered := g.Filtered(minWeight)

	adj := make(map[string][]string, filtered.NumNodes())
	for p := range filtered.weights {
		adj[p.A] = append(adj[p.A], p.B)
		adj[p.B] = append(adj[p.B], p.A)
	}

	part := &Partition{ByUser: make(map[string]int, len(g.nodes))}
	for u := range g.nodes {
		part.ByUser[u] = Unassigned
	}

	visited := make(map[string]struct{}, filtered.NumNodes())
	nextID := 0

	for _, start := range filtered.Nodes() {
		if _, ok := visited[start]; ok {
			continue
		}

		members := []string{}
		stack := []string{start}
		visited[start] = struct{}{}
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, u)
			for _, v := range adj[u] {
				if _, ok := visited[v]; !ok {
					visited[v] = struct{}{}
					stack = append(stack, v)
				}
			}
		}

		sort.Strings(members)
		for _, m := range members {
			part.ByUser[m] = nextID
		}
		part.Communities = append(part.Communities, Community{
			ID:      nextID,
			Members: members,
			Density: inducedDensity(filtered, members),
		})
		nextID++
	}

	return part
}

// inducedDensity computes the unweighted density of the subgraph induced by
// the member set on the filtered graph.
func inducedDensity(g *Graph, members []string) float64 {
	n := len(members)
	if n <= 1 {
		return 0
	}
	inSet := make(map[string]struct{}, n)
	for _, m := range members {
		inSet[m] = struct{}{}
	}
	edges := 0
	for p := range g.weights {
		if _, a := inSet[p.A]; !a {
			continue
		}
		if _, b := inSet[p.B]; b {
			edges++
		}
	}
	return 2 * float64(edges) / float64(n*(n-1))
}

// CommunityDensity returns each user's community density, 0 for users
// outside all communities. The density is one input signal to scoring.
func (p *Partition) CommunityDensity() map[string]float64 {
	byID := make(map[int]float64, len(p.Communities))
	for _, c := range p.Communities {
		byID[c.ID] = c.Density
	}
	out := make(map[string]float64, len(p.ByUser))
	for u, cid := range p.ByUser {
		if cid == Unassigned {
			out[u] = 0
			continue
		}
		out[u] = byID[cid]
	}
	return out
}

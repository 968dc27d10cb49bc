package graph

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"coordsight/internal/schema"
)

// CountMode selects the edge weight semantics.
type CountMode string

const (
	// CountGroups weights an edge by the number of distinct groups the
	// pair shares.
	CountGroups CountMode = "groups"

	// CountRecords weights an edge by per-group co-occurrence
	// multiplicity: a pair that each posted five times on the same video
	// contributes five, not one.
	CountRecords CountMode = "records"
)

// BuilderConfig configures the graph builder.
type BuilderConfig struct {
	CountMode CountMode

	// MaxGroupUsers caps the participant set per group. Beyond the cap the
	// builder takes a deterministic sample (first N users in lexicographic
	// order) instead of expanding the full quadratic pair set.
	MaxGroupUsers int

	// Workers is the parallelism for per-group pair expansion.
	// Zero means GOMAXPROCS.
	Workers int
}

// DefaultBuilderConfig returns the default builder configuration.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		CountMode:     CountGroups,
		MaxGroupUsers: 200,
	}
}

// Builder derives a co-participation graph from a record set.
type Builder struct {
	config BuilderConfig
}

// NewBuilder creates a graph builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.MaxGroupUsers <= 1 {
		cfg.MaxGroupUsers = DefaultBuilderConfig().MaxGroupUsers
	}
	if cfg.CountMode == "" {
		cfg.CountMode = CountGroups
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{config: cfg}
}

// Build produces the co-participation graph for a record set. The input is
// deduplicated by record identity before counting, so replayed records do
// not inflate weights. Empty input yields an empty graph.
func (b *Builder) Build(ctx context.Context, records []schema.Record) *Graph {
	// groupID -> userID -> record count
	groups := make(map[string]map[string]int)
	users := make(map[string]struct{})
	seen := make(map[string]struct{}, len(records))

	for i := range records {
		r := &records[i]
		key := r.DedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		users[r.UserID] = struct{}{}
		g := groups[r.GroupID]
		if g == nil {
			g = make(map[string]int)
			groups[r.GroupID] = g
		}
		g[r.UserID]++
	}

	groupIDs := make([]string, 0, len(groups))
	for id := range groups {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)

	// Pair expansion is embarrassingly parallel per group: each worker
	// builds a partial graph over its share of groups, merged at the end.
	workers := b.config.Workers
	if workers > len(groupIDs) {
		workers = len(groupIDs)
	}
	if workers < 1 {
		workers = 1
	}

	partials := make([]*Graph, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			part := New()
			for i := w; i < len(groupIDs); i += workers {
				select {
				case <-ctx.Done():
					return
				default:
				}
				b.addGroup(part, groups[groupIDs[i]])
			}
			partials[w] = part
		}(w)
	}
	wg.Wait()

	out := New()
	for _, part := range partials {
		if part != nil {
			out.Merge(part)
		}
	}

	// Every distinct user is a node, including degree-0 users.
	for u := range users {
		out.AddNode(u)
	}

	if out.Truncated {
		slog.Warn("graph builder truncated oversized groups",
			"max_group_users", b.config.MaxGroupUsers)
	}

	return out
}

// addGroup expands one group's participant set into pair weights.
func (b *Builder) addGroup(g *Graph, counts map[string]int) {
	participants := make([]string, 0, len(counts))
	for u := range counts {
		participants = append(participants, u)
	}
	if len(participants) < 2 {
		return
	}
	sort.Strings(participants)

	if len(participants) > b.config.MaxGroupUsers {
		participants = participants[:b.config.MaxGroupUsers]
		g.Truncated = true
	}

	for i := 0; i < len(participants); i++ {
		for j := i + 1; j < len(participants); j++ {
			a, c := participants[i], participants[j]
			w := 1
			if b.config.CountMode == CountRecords {
				w = counts[a]
				if counts[c] < w {
					w = counts[c]
				}
			}
			g.AddEdge(a, c, w)
		}
	}
}

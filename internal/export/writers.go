// Package export writes run artifacts to the output directory and publishes
// ranked scores to downstream consumers. Every artifact is deterministic for
// a given analysis result: rows are emitted in the order the analysis
// packages already guarantee.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"coordsight/internal/coordination"
	"coordsight/internal/graph"
	"coordsight/internal/rules"
	"coordsight/internal/scoring"
)

// Artifact file names inside the run output directory.
const (
	FileGraphJSON      = "graph.json"
	FileEdgesCSV       = "graph_edges.csv"
	FileClustersCSV    = "clusters.csv"
	FileRulesCSV       = "rules.csv"
	FileRuleHitsCSV    = "rule_hits.csv"
	FileScoresCSV      = "user_scores.csv"
	FileCommunitiesCSV = "communities.csv"
	FileSummaryJSON    = "summary.json"
)

// Writer writes run artifacts under a single output directory.
type Writer struct {
	dir string

	// MinEdgeWeight filters edges below this weight from the graph
	// artifacts. Zero keeps everything.
	MinEdgeWeight int
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("export directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// graphExport is the node-link JSON shape shared with the visualizer.
type graphExport struct {
	Nodes []string     `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
	Stats graph.Stats  `json:"stats"`
}

// WriteGraph writes the co-participation graph as node-link JSON plus an
// edge list CSV.
func (w *Writer) WriteGraph(g *graph.Graph) error {
	edges := g.Edges()
	if w.MinEdgeWeight > 1 {
		kept := edges[:0]
		for _, e := range edges {
			if e.Weight >= w.MinEdgeWeight {
				kept = append(kept, e)
			}
		}
		edges = kept
	}

	export := graphExport{Nodes: g.Nodes(), Edges: edges, Stats: g.Stats()}
	if err := w.writeJSON(FileGraphJSON, export); err != nil {
		return err
	}

	rows := make([][]string, 0, len(edges)+1)
	rows = append(rows, []string{"source", "target", "weight"})
	for _, e := range edges {
		rows = append(rows, []string{e.Source, e.Target, strconv.Itoa(e.Weight)})
	}
	return w.writeCSV(FileEdgesCSV, rows)
}

// WriteClusters writes the exact-match cluster table.
func (w *Writer) WriteClusters(clusters []coordination.Cluster) error {
	rows := make([][]string, 0, len(clusters)+1)
	rows = append(rows, []string{"cluster_id", "text_hash", "window_start", "window_end", "size", "users"})
	for _, c := range clusters {
		rows = append(rows, []string{
			c.ID,
			c.TextHash,
			c.WindowStart.UTC().Format(time.RFC3339),
			c.WindowEnd.UTC().Format(time.RFC3339),
			strconv.Itoa(c.Size),
			strings.Join(c.Users, "|"),
		})
	}
	return w.writeCSV(FileClustersCSV, rows)
}

// WriteRules writes the mined rules and the per-user hit counts.
func (w *Writer) WriteRules(res *rules.Result) error {
	rows := make([][]string, 0, len(res.Rules)+1)
	rows = append(rows, []string{"antecedent", "consequent", "support", "confidence", "lift"})
	for _, r := range res.Rules {
		rows = append(rows, []string{
			strings.Join(r.Antecedent, "|"),
			strings.Join(r.Consequent, "|"),
			formatFloat(r.Support),
			formatFloat(r.Confidence),
			formatFloat(r.Lift),
		})
	}
	if err := w.writeCSV(FileRulesCSV, rows); err != nil {
		return err
	}

	users := make([]string, 0, len(res.UserRuleHits))
	for u := range res.UserRuleHits {
		users = append(users, u)
	}
	sort.Strings(users)

	hitRows := make([][]string, 0, len(users)+1)
	hitRows = append(hitRows, []string{"user_id", "rule_hits"})
	for _, u := range users {
		hitRows = append(hitRows, []string{u, strconv.Itoa(res.UserRuleHits[u])})
	}
	return w.writeCSV(FileRuleHitsCSV, hitRows)
}

// WriteScores writes the full ranked user score table and the community
// aggregates.
func (w *Writer) WriteScores(res *scoring.Result) error {
	rows := make([][]string, 0, len(res.Users)+1)
	rows = append(rows, []string{
		"user_id", "community",
		"z_sna", "z_arl", "z_community", "z_nlp_credibility", "z_nlp_similarity",
		"score",
	})
	for _, u := range res.Users {
		rows = append(rows, []string{
			u.UserID,
			strconv.Itoa(u.Community),
			formatFloat(u.ZSNA),
			formatFloat(u.ZARL),
			formatFloat(u.ZCommunity),
			formatFloat(u.ZNLPCredibility),
			formatFloat(u.ZNLPSimilarity),
			formatFloat(u.Score),
		})
	}
	if err := w.writeCSV(FileScoresCSV, rows); err != nil {
		return err
	}

	commRows := make([][]string, 0, len(res.Communities)+1)
	commRows = append(commRows, []string{"community_id", "mean_score", "max_score", "members", "density", "top_users"})
	for _, c := range res.Communities {
		commRows = append(commRows, []string{
			strconv.Itoa(c.CommunityID),
			formatFloat(c.MeanScore),
			formatFloat(c.MaxScore),
			strconv.Itoa(c.MemberCount),
			formatFloat(c.Density),
			strings.Join(c.TopUsers, "|"),
		})
	}
	return w.writeCSV(FileCommunitiesCSV, commRows)
}

// Summary is the run-level report written alongside the tables and
// persisted by the archive uploader.
type Summary struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Duration    string    `json:"duration"`

	Records     int `json:"records"`
	Users       int `json:"users"`
	Clusters    int `json:"clusters"`
	Rules       int `json:"rules"`
	Communities int `json:"communities"`

	GraphStats     graph.Stats                `json:"graph"`
	RulesTruncated bool                       `json:"rules_truncated"`
	Weights        map[scoring.Signal]float64 `json:"effective_weights"`

	TopUsers       []scoring.UserScore      `json:"top_users"`
	TopCommunities []scoring.CommunityScore `json:"top_communities"`
}

// WriteSummary writes the run summary JSON.
func (w *Writer) WriteSummary(s *Summary) error {
	return w.writeJSON(FileSummaryJSON, s)
}

func (w *Writer) writeJSON(name string, v any) error {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

func (w *Writer) writeCSV(name string, rows [][]string) error {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

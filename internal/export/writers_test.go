package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coordsight/internal/coordination"
	"coordsight/internal/graph"
	"coordsight/internal/rules"
	"coordsight/internal/scoring"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestWriteGraph(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	g := graph.New()
	g.AddEdge("acct_a", "acct_b", 3)
	g.AddEdge("acct_a", "acct_c", 1)

	w.MinEdgeWeight = 2
	if err := w.WriteGraph(g); err != nil {
		t.Fatalf("WriteGraph() error = %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, FileEdgesCSV))
	if len(rows) != 2 {
		t.Fatalf("edge rows = %d, want header + 1 filtered edge", len(rows))
	}
	if rows[1][0] != "acct_a" || rows[1][1] != "acct_b" || rows[1][2] != "3" {
		t.Errorf("edge row = %v", rows[1])
	}

	data, err := os.ReadFile(filepath.Join(dir, FileGraphJSON))
	if err != nil {
		t.Fatalf("read graph json: %v", err)
	}
	var export graphExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshal graph json: %v", err)
	}
	if len(export.Nodes) != 3 {
		t.Errorf("nodes = %v, want all 3 even with filtered edges", export.Nodes)
	}
	if len(export.Edges) != 1 {
		t.Errorf("edges = %v, want the single edge above the weight floor", export.Edges)
	}
}

func TestWriteClusters(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clusters := []coordination.Cluster{{
		ID:          "abc123-1709287200",
		TextHash:    "abc123",
		WindowStart: start,
		WindowEnd:   start.Add(45 * time.Minute),
		Users:       []string{"acct_a", "acct_b", "acct_c"},
		Size:        3,
	}}
	if err := w.WriteClusters(clusters); err != nil {
		t.Fatalf("WriteClusters() error = %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, FileClustersCSV))
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1][4] != "3" {
		t.Errorf("size column = %q, want 3", rows[1][4])
	}
	if rows[1][5] != "acct_a|acct_b|acct_c" {
		t.Errorf("users column = %q", rows[1][5])
	}
}

func TestWriteRules(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	res := &rules.Result{
		Rules: []rules.Rule{{
			Antecedent: []string{"DOM:a.com"},
			Consequent: []string{"TAG:vote"},
			Support:    0.8,
			Confidence: 1.0,
			Lift:       1.25,
		}},
		UserRuleHits: map[string]int{"acct_b": 0, "acct_a": 1},
	}
	if err := w.WriteRules(res); err != nil {
		t.Fatalf("WriteRules() error = %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, FileRulesCSV))
	if len(rows) != 2 {
		t.Fatalf("rule rows = %d, want 2", len(rows))
	}
	if rows[1][0] != "DOM:a.com" || rows[1][1] != "TAG:vote" {
		t.Errorf("rule row = %v", rows[1])
	}

	hits := readCSV(t, filepath.Join(dir, FileRuleHitsCSV))
	if len(hits) != 3 {
		t.Fatalf("hit rows = %d, want header + 2", len(hits))
	}
	// Sorted by user id.
	if hits[1][0] != "acct_a" || hits[1][1] != "1" {
		t.Errorf("first hit row = %v", hits[1])
	}
}

func TestWriteScoresAndSummary(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	res := &scoring.Result{
		Users: []scoring.UserScore{
			{UserID: "acct_a", Community: 0, ZSNA: 1.2, Score: 0.9},
			{UserID: "acct_b", Community: -1, ZSNA: -0.3, Score: 0.1},
		},
		Communities: []scoring.CommunityScore{
			{CommunityID: 0, MeanScore: 0.9, MaxScore: 0.9, MemberCount: 1, Density: 1.0, TopUsers: []string{"acct_a"}},
		},
	}
	if err := w.WriteScores(res); err != nil {
		t.Fatalf("WriteScores() error = %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, FileScoresCSV))
	if len(rows) != 3 {
		t.Fatalf("score rows = %d, want 3", len(rows))
	}
	if rows[1][0] != "acct_a" {
		t.Errorf("first ranked user = %q, want acct_a", rows[1][0])
	}

	comms := readCSV(t, filepath.Join(dir, FileCommunitiesCSV))
	if len(comms) != 2 {
		t.Fatalf("community rows = %d, want 2", len(comms))
	}

	summary := &Summary{
		RunID:       "run-1",
		GeneratedAt: time.Now().UTC(),
		Records:     100,
		Users:       2,
	}
	if err := w.WriteSummary(summary); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileSummaryJSON))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var back Summary
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if back.RunID != "run-1" || back.Records != 100 {
		t.Errorf("summary roundtrip = %+v", back)
	}
}

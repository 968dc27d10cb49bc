package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coordsight/internal/config"
	"coordsight/internal/schema"
	"coordsight/internal/scoring"
)

func testRecords() []schema.Record {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var records []schema.Record

	// Three accounts posting the same text on the same video within the
	// hour, all linking the same domain.
	for i, user := range []string{"acct_a", "acct_b", "acct_c"} {
		records = append(records, schema.Record{
			UserID:    user,
			GroupID:   "vid_1",
			Timestamp: base.Add(time.Duration(i*20) * time.Minute),
			Text:      "vote now https://example.com",
			Entities:  schema.Entities{Domains: []string{"example.com"}, Hashtags: []string{"vote"}},
		})
	}

	// The same trio co-posts on a second video with distinct texts, so the
	// pair edges reach the community weight threshold without forming a
	// second cluster.
	for i, user := range []string{"acct_a", "acct_b", "acct_c"} {
		records = append(records, schema.Record{
			UserID:    user,
			GroupID:   "vid_3",
			Timestamp: base.Add(time.Duration(30+i*5) * time.Minute),
			Text:      fmt.Sprintf("great point from %s", user),
			Entities:  schema.Entities{Domains: []string{"example.com"}},
		})
	}

	// An uninvolved account elsewhere.
	records = append(records, schema.Record{
		UserID:    "acct_z",
		GroupID:   "vid_2",
		Timestamp: base.Add(3 * time.Hour),
		Text:      "nice video",
	})
	return records
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Rules.MinItemUsers = 2
	cfg.Rules.MinSupport = 0.25
	return cfg
}

func TestAnalyzeEndToEnd(t *testing.T) {
	e := New(testConfig())
	res, err := e.Analyze(context.Background(), testRecords(), nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if res.RunID == "" {
		t.Error("RunID not set")
	}
	if res.Graph.NumNodes() != 4 {
		t.Errorf("graph nodes = %d, want 4", res.Graph.NumNodes())
	}
	// The three coordinated accounts form a triangle over two shared videos.
	if res.Graph.Weight("acct_a", "acct_b") != 2 {
		t.Errorf("weight(a,b) = %d, want 2", res.Graph.Weight("acct_a", "acct_b"))
	}
	if len(res.Clusters) != 1 {
		t.Fatalf("clusters = %d, want 1", len(res.Clusters))
	}
	if res.Clusters[0].Size != 3 {
		t.Errorf("cluster size = %d, want 3", res.Clusters[0].Size)
	}
	if len(res.Partition.Communities) != 1 {
		t.Errorf("communities = %d, want 1", len(res.Partition.Communities))
	}

	if len(res.Scores.Users) != 4 {
		t.Fatalf("scored users = %d, want 4", len(res.Scores.Users))
	}
	// The coordinated accounts outrank the uninvolved one.
	top := res.Scores.Users[0]
	if top.UserID == "acct_z" {
		t.Errorf("uninvolved account ranked first: %+v", top)
	}
	last := res.Scores.Users[len(res.Scores.Users)-1]
	if last.UserID != "acct_z" {
		t.Errorf("last ranked = %q, want acct_z", last.UserID)
	}
}

func TestAnalyzeWithNLP(t *testing.T) {
	nlp := map[string]scoring.NLPScores{
		"acct_a": {Credibility: 0.9, Similarity: 0.8},
		"acct_z": {Credibility: 0.1, Similarity: 0.1},
	}
	e := New(testConfig())
	res, err := e.Analyze(context.Background(), testRecords(), nlp)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !res.Scores.Available[scoring.SignalNLPCredibility] {
		t.Error("NLP channel should be available when scores are supplied")
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	e := New(testConfig())
	res, err := e.Analyze(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(res.Scores.Users) != 0 {
		t.Errorf("scored users = %d, want 0", len(res.Scores.Users))
	}
	summary := res.Summary(10, 5)
	if summary.Users != 0 || summary.Clusters != 0 {
		t.Errorf("summary = %+v, want zeros", summary)
	}
}

func TestRunReadsRecordFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")

	var lines string
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, user := range []string{"acct_a", "acct_b"} {
		lines += fmt.Sprintf(
			`{"user_id":"%s","group_id":"vid_1","timestamp":"%s","text":"same text"}`+"\n",
			user, base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339),
		)
	}
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Input.RecordsPath = path
	res, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ReadStats.Kept != 2 {
		t.Errorf("Kept = %d, want 2", res.ReadStats.Kept)
	}
	if len(res.Clusters) != 1 {
		t.Errorf("clusters = %d, want 1", len(res.Clusters))
	}
}

func TestSummaryTruncatesTopSlices(t *testing.T) {
	e := New(testConfig())
	res, err := e.Analyze(context.Background(), testRecords(), nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	summary := res.Summary(2, 1)
	if len(summary.TopUsers) != 2 {
		t.Errorf("TopUsers = %d, want 2", len(summary.TopUsers))
	}
	if summary.Users != 4 {
		t.Errorf("Users = %d, want full count 4", summary.Users)
	}
}

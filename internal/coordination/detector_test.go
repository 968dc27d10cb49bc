package coordination

import (
	"context"
	"testing"
	"time"

	"coordsight/internal/schema"
)

func post(user string, at time.Time, text string) schema.Record {
	return schema.Record{
		UserID:    user,
		GroupID:   "topic-1",
		Timestamp: at,
		Text:      text,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 1, hour, minute, 0, 0, time.UTC)
}

func TestDetector_VoteNowScenario(t *testing.T) {
	// 3 users post identical text at 10:00, 10:20, 10:45; a 4th identical
	// post lands at 12:30, 1h45 after the last, starting a new sub-K run.
	records := []schema.Record{
		post("u1", at(10, 0), "VOTE NOW!!!"),
		post("u2", at(10, 20), "VOTE NOW!!!"),
		post("u3", at(10, 45), "VOTE NOW!!!"),
		post("u4", at(12, 30), "VOTE NOW!!!"),
	}

	d := NewDetector(DefaultDetectorConfig())
	clusters := d.Detect(context.Background(), records)

	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want exactly 1", len(clusters))
	}

	c := clusters[0]
	if c.Size != 3 {
		t.Errorf("cluster size = %d, want 3 distinct users", c.Size)
	}
	if !c.WindowStart.Equal(at(10, 0)) || !c.WindowEnd.Equal(at(10, 45)) {
		t.Errorf("window = [%v, %v], want [10:00, 10:45]", c.WindowStart, c.WindowEnd)
	}
	for _, u := range c.Users {
		if u == "u4" {
			t.Error("u4's straggler post must not join the cluster")
		}
	}
}

func TestDetector_InclusiveWindowBoundary(t *testing.T) {
	// Gap of exactly the window width keeps the run alive.
	records := []schema.Record{
		post("u1", at(10, 0), "same text"),
		post("u2", at(11, 0), "same text"),
	}

	d := NewDetector(DefaultDetectorConfig())
	clusters := d.Detect(context.Background(), records)

	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want 1 (gap == window is inclusive)", len(clusters))
	}
	if clusters[0].Size != 2 {
		t.Errorf("size = %d, want 2", clusters[0].Size)
	}
}

func TestDetector_SelfRepetitionCountsOnce(t *testing.T) {
	records := []schema.Record{
		post("u1", at(10, 0), "buy my coin"),
		post("u1", at(10, 5), "buy my coin"),
		post("u1", at(10, 10), "buy my coin"),
	}

	d := NewDetector(DefaultDetectorConfig())
	clusters := d.Detect(context.Background(), records)

	if len(clusters) != 0 {
		t.Errorf("clusters = %d, want 0: one user repeating is not coordination", len(clusters))
	}
}

func TestDetector_EmptyNormalizedTextExcluded(t *testing.T) {
	records := []schema.Record{
		post("u1", at(10, 0), "   "),
		post("u2", at(10, 1), "   "),
		post("u3", at(10, 2), ""),
	}

	d := NewDetector(DefaultDetectorConfig())
	clusters := d.Detect(context.Background(), records)

	if len(clusters) != 0 {
		t.Errorf("clusters = %d, want 0 for empty-normalizing texts", len(clusters))
	}
}

func TestDetector_NormalizationJoinsVariants(t *testing.T) {
	records := []schema.Record{
		post("u1", at(10, 0), "Vote  NOW!!!"),
		post("u2", at(10, 5), "vote now!!!"),
		post("u3", at(10, 10), " VOTE NOW!!! "),
	}

	d := NewDetector(DefaultDetectorConfig())
	clusters := d.Detect(context.Background(), records)

	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want 1 after case/whitespace folding", len(clusters))
	}
	if clusters[0].Size != 3 {
		t.Errorf("size = %d, want 3", clusters[0].Size)
	}
}

func TestDetector_DistinctTextsSeparateClusters(t *testing.T) {
	records := []schema.Record{
		post("u1", at(10, 0), "message alpha"),
		post("u2", at(10, 1), "message alpha"),
		post("u3", at(10, 2), "message beta"),
		post("u4", at(10, 3), "message beta"),
	}

	d := NewDetector(DefaultDetectorConfig())
	clusters := d.Detect(context.Background(), records)

	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2", len(clusters))
	}
	if clusters[0].TextHash == clusters[1].TextHash {
		t.Error("distinct texts must have distinct hashes")
	}
}

func TestDetector_DeterministicIDs(t *testing.T) {
	records := []schema.Record{
		post("u1", at(10, 0), "hello world"),
		post("u2", at(10, 30), "hello world"),
	}

	d := NewDetector(DefaultDetectorConfig())
	c1 := d.Detect(context.Background(), records)
	c2 := d.Detect(context.Background(), records)

	if len(c1) != 1 || len(c2) != 1 {
		t.Fatal("expected one cluster per run")
	}
	if c1[0].ID != c2[0].ID {
		t.Errorf("cluster ids differ across runs: %s vs %s", c1[0].ID, c2[0].ID)
	}
}

func TestNormalizePolicy_StripVolatile(t *testing.T) {
	p := DefaultNormalizePolicy()

	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{
			name: "url query strings stripped",
			a:    "read this https://example.com/story?utm_source=x123",
			b:    "read this https://example.com/story?utm_source=y456",
			same: true,
		},
		{
			name: "long digit runs stripped",
			a:    "order id 123456789 confirmed",
			b:    "order id 987654321 confirmed",
			same: true,
		},
		{
			name: "short numbers kept",
			a:    "top 10 reasons",
			b:    "top 99 reasons",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Normalize(tt.a) == p.Normalize(tt.b)
			if got != tt.same {
				t.Errorf("Normalize(%q) == Normalize(%q) = %v, want %v (%q vs %q)",
					tt.a, tt.b, got, tt.same, p.Normalize(tt.a), p.Normalize(tt.b))
			}
		})
	}
}

func TestMembershipCounts(t *testing.T) {
	records := []schema.Record{
		post("u1", at(10, 0), "copy one"),
		post("u2", at(10, 1), "copy one"),
		post("u1", at(12, 0), "copy two"),
		post("u3", at(12, 1), "copy two"),
		post("u4", at(13, 0), "unique text"),
	}

	d := NewDetector(DefaultDetectorConfig())
	clusters := d.Detect(context.Background(), records)
	counts := MembershipCounts(records, clusters)

	if counts["u1"] != 2 {
		t.Errorf("u1 memberships = %d, want 2", counts["u1"])
	}
	if counts["u2"] != 1 || counts["u3"] != 1 {
		t.Errorf("u2/u3 memberships = %d/%d, want 1/1", counts["u2"], counts["u3"])
	}
	if counts["u4"] != 0 {
		t.Errorf("u4 memberships = %d, want 0", counts["u4"])
	}
}

// Package coordination detects exact-match coordination: groups of users
// posting identical normalized text inside a bounded time window.
package coordination

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"coordsight/internal/schema"
)

// Cluster is a maximal set of records sharing normalized text whose
// consecutive timestamps fall within the detection window, with at least
// the configured number of distinct users.
type Cluster struct {
	// ID is deterministic for a given text and window start, so repeated
	// runs on identical input produce identical cluster ids.
	ID          string    `json:"id"`
	TextHash    string    `json:"text_hash"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// Users is the sorted distinct member set.
	Users []string `json:"users"`

	// Size is the distinct user count.
	Size int `json:"size"`

	Records []schema.Record `json:"-"`
}

// Span returns the time covered by the cluster.
func (c *Cluster) Span() time.Duration {
	return c.WindowEnd.Sub(c.WindowStart)
}

// DetectorConfig configures the exact-match detector.
type DetectorConfig struct {
	// Window is the maximum gap between consecutive posts in a cluster.
	// The boundary is inclusive: a gap of exactly Window keeps the run alive.
	Window time.Duration

	// MinUsers is the minimum distinct user count for a cluster to be
	// emitted. A user repeating the same text counts once.
	MinUsers int

	Normalize NormalizePolicy
}

// DefaultDetectorConfig returns the default detector configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Window:    time.Hour,
		MinUsers:  2,
		Normalize: DefaultNormalizePolicy(),
	}
}

// Detector finds exact-match coordination clusters.
type Detector struct {
	config DetectorConfig
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.MinUsers < 2 {
		cfg.MinUsers = 2
	}
	return &Detector{config: cfg}
}

// Detect returns all coordination clusters in the record set, ordered by
// (text hash, window start). Records whose text normalizes to empty are
// excluded. Clusters are maximal: a run is split only where the gap between
// consecutive posts exceeds the window.
func (d *Detector) Detect(ctx context.Context, records []schema.Record) []Cluster {
	buckets := make(map[string][]schema.Record)
	skipped := 0
	for i := range records {
		norm := d.config.Normalize.Normalize(records[i].Text)
		if norm == "" {
			skipped++
			continue
		}
		buckets[norm] = append(buckets[norm], records[i])
	}

	if skipped > 0 {
		slog.Debug("excluded records with empty normalized text", "count", skipped)
	}

	texts := make([]string, 0, len(buckets))
	for t := range buckets {
		texts = append(texts, t)
	}
	sort.Strings(texts)

	var clusters []Cluster
	for _, text := range texts {
		select {
		case <-ctx.Done():
			return clusters
		default:
		}
		clusters = append(clusters, d.detectBucket(text, buckets[text])...)
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].TextHash != clusters[j].TextHash {
			return clusters[i].TextHash < clusters[j].TextHash
		}
		return clusters[i].WindowStart.Before(clusters[j].WindowStart)
	})
	return clusters
}

// detectBucket splits one normalized-text bucket into maximal runs and
// emits those that reach the distinct-user threshold.
func (d *Detector) detectBucket(text string, records []schema.Record) []Cluster {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].UserID < records[j].UserID
	})

	var clusters []Cluster
	runStart := 0
	for i := 1; i <= len(records); i++ {
		if i < len(records) {
			gap := records[i].Timestamp.Sub(records[i-1].Timestamp)
			if gap <= d.config.Window {
				continue
			}
		}
		if c, ok := d.emit(text, records[runStart:i]); ok {
			clusters = append(clusters, c)
		}
		runStart = i
	}
	return clusters
}

// emit builds a cluster from a maximal run, or reports false when the run
// has too few distinct users.
func (d *Detector) emit(text string, run []schema.Record) (Cluster, bool) {
	users := make(map[string]struct{}, len(run))
	for i := range run {
		users[run[i].UserID] = struct{}{}
	}
	if len(users) < d.config.MinUsers {
		return Cluster{}, false
	}

	sorted := make([]string, 0, len(users))
	for u := range users {
		sorted = append(sorted, u)
	}
	sort.Strings(sorted)

	hash := TextHash(text)
	start := run[0].Timestamp
	return Cluster{
		ID:          fmt.Sprintf("%s-%d", hash, start.Unix()),
		TextHash:    hash,
		WindowStart: start,
		WindowEnd:   run[len(run)-1].Timestamp,
		Users:       sorted,
		Size:        len(sorted),
		Records:     append([]schema.Record(nil), run...),
	}, true
}

// MembershipCounts returns, for every user in the record set, the number of
// clusters the user belongs to. Users in no cluster map to 0.
func MembershipCounts(records []schema.Record, clusters []Cluster) map[string]int {
	counts := make(map[string]int)
	for i := range records {
		counts[records[i].UserID] = 0
	}
	for _, c := range clusters {
		for _, u := range c.Users {
			counts[u]++
		}
	}
	return counts
}

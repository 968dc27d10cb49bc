// Package ingest reads the finalized record set produced by the collection
// collaborators and prepares it for analysis: validation, deduplication,
// and collection-window filtering.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"coordsight/internal/schema"
	"coordsight/internal/scoring"
)

// ReadStats summarizes one intake pass.
type ReadStats struct {
	Total       int `json:"total"`
	Malformed   int `json:"malformed"`
	Duplicates  int `json:"duplicates"`
	OutOfWindow int `json:"out_of_window"`
	Kept        int `json:"kept"`
}

// ReaderConfig configures record intake.
type ReaderConfig struct {
	// WindowStart and WindowEnd bound the collection window (inclusive).
	// Zero values disable the bound.
	WindowStart time.Time
	WindowEnd   time.Time
}

// Reader streams JSONL records from the append-only collection file.
type Reader struct {
	config    ReaderConfig
	validator *schema.Validator
}

// NewReader creates a reader.
func NewReader(cfg ReaderConfig, validator *schema.Validator) *Reader {
	if validator == nil {
		validator = schema.NewValidator()
	}
	return &Reader{config: cfg, validator: validator}
}

// ReadFile reads all records from a JSONL file. Malformed lines are counted
// and logged, never fatal: one bad record must not block scoring for every
// other user.
func (r *Reader) ReadFile(ctx context.Context, path string) ([]schema.Record, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("failed to open records file: %w", err)
	}
	defer f.Close()

	return r.Read(ctx, f)
}

// Read reads all records from a JSONL stream.
func (r *Reader) Read(ctx context.Context, src io.Reader) ([]schema.Record, ReadStats, error) {
	var (
		records []schema.Record
		stats   ReadStats
		seen    = make(map[string]struct{})
	)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return records, stats, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var rec schema.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.Malformed++
			slog.Warn("skipping malformed record", "line", stats.Total, "error", err)
			continue
		}
		if err := r.validator.Validate(&rec); err != nil {
			stats.Malformed++
			slog.Warn("skipping invalid record", "line", stats.Total, "error", err)
			continue
		}

		if !r.inWindow(rec.Timestamp) {
			stats.OutOfWindow++
			continue
		}

		key := rec.DedupeKey()
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		records = append(records, rec)
		stats.Kept++
	}
	if err := scanner.Err(); err != nil {
		return records, stats, fmt.Errorf("failed to read records: %w", err)
	}

	slog.Info("records loaded",
		"total", stats.Total,
		"kept", stats.Kept,
		"malformed", stats.Malformed,
		"duplicates", stats.Duplicates,
		"out_of_window", stats.OutOfWindow,
	)
	return records, stats, nil
}

func (r *Reader) inWindow(ts time.Time) bool {
	if !r.config.WindowStart.IsZero() && ts.Before(r.config.WindowStart) {
		return false
	}
	if !r.config.WindowEnd.IsZero() && ts.After(r.config.WindowEnd) {
		return false
	}
	return true
}

// nlpRow is one line of the external NLP collaborator's output.
type nlpRow struct {
	UserID      string  `json:"user_id"`
	Credibility float64 `json:"credibility"`
	Similarity  float64 `json:"similarity"`
}

// LoadNLPScores reads the optional per-user NLP score file. A missing file
// is not an error: it returns nil, which the aggregator treats as an
// unavailable channel and redistributes the NLP weight.
func LoadNLPScores(path string) (map[string]scoring.NLPScores, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no NLP scores present for this run", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open NLP scores: %w", err)
	}
	defer f.Close()

	out := make(map[string]scoring.NLPScores)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var row nlpRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			slog.Warn("skipping malformed NLP score row", "line", line, "error", err)
			continue
		}
		if row.UserID == "" {
			continue
		}
		out[row.UserID] = scoring.NLPScores{
			Credibility: row.Credibility,
			Similarity:  row.Similarity,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read NLP scores: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

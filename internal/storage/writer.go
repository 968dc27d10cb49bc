package storage

import (
	"context"
	"log/slog"
	"time"

	"coordsight/internal/export"
	"coordsight/internal/scoring"
)

// RunWriter persists one run's scores and summary. Inserts run in batches
// with retries: persistence failures must not lose a whole run on a single
// transient error.
type RunWriter struct {
	client *ClickHouseClient

	batchSize  int
	maxRetries int
	retryDelay time.Duration
}

// NewRunWriter creates a run writer.
func NewRunWriter(client *ClickHouseClient) *RunWriter {
	cfg := client.config
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &RunWriter{
		client:     client,
		batchSize:  batchSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
	}
}

// WriteUserScores inserts the full ranked score table for a run.
func (w *RunWriter) WriteUserScores(ctx context.Context, runID string, generatedAt time.Time, users []scoring.UserScore) error {
	for start := 0; start < len(users); start += w.batchSize {
		end := start + w.batchSize
		if end > len(users) {
			end = len(users)
		}
		if err := w.insertUserBatch(ctx, runID, generatedAt, users[start:end]); err != nil {
			return err
		}
	}
	slog.Info("user scores persisted", "run_id", runID, "rows", len(users))
	return nil
}

func (w *RunWriter) insertUserBatch(ctx context.Context, runID string, generatedAt time.Time, users []scoring.UserScore) error {
	return w.withRetries(ctx, "user_scores", func() error {
		batch, err := w.client.PrepareBatch(ctx, `
			INSERT INTO user_scores (
				run_id, generated_at, user_id, community,
				z_sna, z_arl, z_community, z_nlp_credibility, z_nlp_similarity,
				score
			)`)
		if err != nil {
			return err
		}
		for _, u := range users {
			err := batch.Append(
				runID, generatedAt, u.UserID, int32(u.Community),
				u.ZSNA, u.ZARL, u.ZCommunity, u.ZNLPCredibility, u.ZNLPSimilarity,
				u.Score,
			)
			if err != nil {
				return err
			}
		}
		return batch.Send()
	})
}

// WriteCommunityScores inserts the community aggregates for a run.
func (w *RunWriter) WriteCommunityScores(ctx context.Context, runID string, generatedAt time.Time, comms []scoring.CommunityScore) error {
	if len(comms) == 0 {
		return nil
	}
	return w.withRetries(ctx, "community_scores", func() error {
		batch, err := w.client.PrepareBatch(ctx, `
			INSERT INTO community_scores (
				run_id, generated_at, community_id,
				mean_score, max_score, member_count, density
			)`)
		if err != nil {
			return err
		}
		for _, c := range comms {
			err := batch.Append(
				runID, generatedAt, int32(c.CommunityID),
				c.MeanScore, c.MaxScore, uint64(c.MemberCount), c.Density,
			)
			if err != nil {
				return err
			}
		}
		return batch.Send()
	})
}

// WriteSummary inserts the run summary row.
func (w *RunWriter) WriteSummary(ctx context.Context, s *export.Summary) error {
	duration, err := time.ParseDuration(s.Duration)
	if err != nil {
		duration = 0
	}
	truncated := uint8(0)
	if s.RulesTruncated {
		truncated = 1
	}
	return w.withRetries(ctx, "run_summaries", func() error {
		return w.client.Exec(ctx, `
			INSERT INTO run_summaries (
				run_id, generated_at, duration_ms,
				records, users, clusters, rules, communities,
				graph_nodes, graph_edges, graph_density, rules_truncated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, s.GeneratedAt, uint64(duration.Milliseconds()),
			uint64(s.Records), uint64(s.Users), uint64(s.Clusters),
			uint64(s.Rules), uint64(s.Communities),
			uint64(s.GraphStats.Nodes), uint64(s.GraphStats.Edges),
			s.GraphStats.Density, truncated,
		)
	})
}

func (w *RunWriter) withRetries(ctx context.Context, table string, insert func() error) error {
	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.retryDelay * time.Duration(attempt)):
			}
		}
		if err := insert(); err != nil {
			lastErr = err
			slog.Warn("insert failed, retrying",
				"table", table,
				"attempt", attempt+1,
				"max_retries", w.maxRetries,
				"error", err,
			)
			continue
		}
		return nil
	}
	return WrapInsertError(table, w.maxRetries, lastErr)
}

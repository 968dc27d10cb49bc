package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig holds TTL settings for score history tables.
type RetentionConfig struct {
	ScoresTTL    time.Duration
	SummariesTTL time.Duration
}

// DefaultRetentionConfig keeps score rows for 90 days and summaries for a
// year.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		ScoresTTL:    90 * 24 * time.Hour,
		SummariesTTL: 365 * 24 * time.Hour,
	}
}

// RetentionManager applies data retention policies.
type RetentionManager struct {
	client *ClickHouseClient
	config RetentionConfig
}

// NewRetentionManager creates a retention manager.
func NewRetentionManager(client *ClickHouseClient, config RetentionConfig) *RetentionManager {
	return &RetentionManager{client: client, config: config}
}

// ApplyTTLs updates TTL settings on all tables to match the configured
// retention periods. Called after migrations have run.
func (r *RetentionManager) ApplyTTLs(ctx context.Context) error {
	type tablePolicy struct {
		table string
		ttl   time.Duration
	}

	policies := []tablePolicy{
		{"user_scores", r.config.ScoresTTL},
		{"community_scores", r.config.ScoresTTL},
		{"run_summaries", r.config.SummariesTTL},
	}

	for _, p := range policies {
		if p.ttl <= 0 {
			continue
		}

		days := int(p.ttl.Hours() / 24)
		if days < 1 {
			days = 1
		}

		query := fmt.Sprintf(
			"ALTER TABLE %s MODIFY TTL toDateTime(generated_at) + INTERVAL %d DAY DELETE",
			p.table, days,
		)
		if err := r.client.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to apply TTL on %s: %w", p.table, err)
		}

		slog.Info("retention policy applied", "table", p.table, "days", days)
	}
	return nil
}

package export

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coordsight/internal/config"
	"coordsight/internal/scoring"
)

// Publisher pushes the ranked user scores into a Redis sorted set so that
// moderation dashboards can read the current leaderboard without touching
// run artifacts on disk.
type Publisher struct {
	client *redis.Client
	key    string
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(cfg config.RedisConfig) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Publisher{client: client, key: cfg.Key}, nil
}

// Publish replaces the leaderboard with the given ranked scores. The write
// is staged under a temporary key and swapped in with RENAME so readers
// never observe a half-written set.
func (p *Publisher) Publish(ctx context.Context, scores []scoring.UserScore) error {
	staging := p.key + ":staging"

	members := make([]redis.Z, 0, len(scores))
	for _, s := range scores {
		members = append(members, redis.Z{Score: s.Score, Member: s.UserID})
	}

	pipe := p.client.TxPipeline()
	pipe.Del(ctx, staging)
	if len(members) > 0 {
		pipe.ZAdd(ctx, staging, members...)
		pipe.Rename(ctx, staging, p.key)
	} else {
		pipe.Del(ctx, p.key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish scores: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Package engine orchestrates one analysis run: record intake, the three
// signal extractors, and the final score aggregation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"coordsight/internal/config"
	"coordsight/internal/coordination"
	"coordsight/internal/export"
	"coordsight/internal/graph"
	"coordsight/internal/ingest"
	"coordsight/internal/rules"
	"coordsight/internal/schema"
	"coordsight/internal/scoring"
)

// RunResult holds everything one run produced.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	ReadStats ingest.ReadStats

	Graph     *graph.Graph
	Partition *graph.Partition
	Clusters  []coordination.Cluster
	Rules     *rules.Result
	Scores    *scoring.Result
}

// Engine runs the full pipeline for a configuration.
type Engine struct {
	cfg *config.Config
}

// New creates an engine.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Run reads the configured record file and analyzes it.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	reader := ingest.NewReader(ingest.ReaderConfig{
		WindowStart: e.cfg.Input.WindowStart,
		WindowEnd:   e.cfg.Input.WindowEnd,
	}, schema.NewValidator())

	records, stats, err := reader.ReadFile(ctx, e.cfg.Input.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("record intake failed: %w", err)
	}

	nlp, err := ingest.LoadNLPScores(e.cfg.Input.NLPScoresPath)
	if err != nil {
		return nil, fmt.Errorf("nlp score intake failed: %w", err)
	}

	result, err := e.Analyze(ctx, records, nlp)
	if err != nil {
		return nil, err
	}
	result.ReadStats = stats
	return result, nil
}

// Analyze runs the three extractors over an immutable record slice and
// joins their outputs into final scores. The extractors only read the
// records, so they run concurrently.
func (e *Engine) Analyze(ctx context.Context, records []schema.Record, nlp map[string]scoring.NLPScores) (*RunResult, error) {
	started := time.Now()
	result := &RunResult{
		RunID:     uuid.New().String(),
		StartedAt: started.UTC(),
	}

	slog.Info("analysis started", "run_id", result.RunID, "records", len(records))

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		builder := graph.NewBuilder(graph.BuilderConfig{
			CountMode:     graph.CountMode(e.cfg.Graph.CountMode),
			MaxGroupUsers: e.cfg.Graph.MaxGroupUsers,
		})
		result.Graph = builder.Build(ctx, records)
	}()

	go func() {
		defer wg.Done()
		detector := coordination.NewDetector(coordination.DetectorConfig{
			Window:   e.cfg.Coordination.Window,
			MinUsers: e.cfg.Coordination.MinUsers,
			Normalize: coordination.NormalizePolicy{
				StripVolatile: e.cfg.Coordination.StripVolatile,
				MinLength:     e.cfg.Coordination.MinTextLength,
			},
		})
		result.Clusters = detector.Detect(ctx, records)
	}()

	go func() {
		defer wg.Done()
		miner := rules.NewMiner(rules.MinerConfig{
			MinSupport:     e.cfg.Rules.MinSupport,
			MinConfidence:  e.cfg.Rules.MinConfidence,
			MinItemUsers:   e.cfg.Rules.MinItemUsers,
			MaxItemsetSize: e.cfg.Rules.MaxItemsetSize,
			MaxDuration:    e.cfg.Rules.MaxDuration,
			MinLift:        e.cfg.Rules.MinLift,
			TopKRules:      e.cfg.Rules.TopKRules,
		})
		result.Rules = miner.Mine(ctx, records)
	}()

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Partition = result.Graph.DetectCommunities(e.cfg.Graph.CommunityMinWeight)

	aggregator := scoring.NewAggregator(scoring.AggregatorConfig{
		Weights: scoring.Weights{
			SNA:            e.cfg.Scoring.Weights.SNA,
			ARL:            e.cfg.Scoring.Weights.ARL,
			Community:      e.cfg.Scoring.Weights.Community,
			NLPCredibility: e.cfg.Scoring.Weights.NLPCredibility,
			NLPSimilarity:  e.cfg.Scoring.Weights.NLPSimilarity,
		},
	})
	result.Scores = aggregator.Aggregate(scoring.Inputs{
		WeightedDegree:   result.Graph.WeightedDegree(),
		ClusterCounts:    coordination.MembershipCounts(records, result.Clusters),
		RuleHits:         result.Rules.UserRuleHits,
		CommunityByUser:  result.Partition.ByUser,
		CommunityDensity: result.Partition.CommunityDensity(),
		NLP:              nlp,
	})

	result.Duration = time.Since(started)
	slog.Info("analysis finished",
		"run_id", result.RunID,
		"duration", result.Duration,
		"users", len(result.Scores.Users),
		"clusters", len(result.Clusters),
		"rules", len(result.Rules.Rules),
		"communities", len(result.Partition.Communities),
	)
	return result, nil
}

// Summary builds the run-level report, keeping the top slices the dashboard
// reads.
func (r *RunResult) Summary(topUsers, topCommunities int) *export.Summary {
	users := r.Scores.Users
	if topUsers > 0 && len(users) > topUsers {
		users = users[:topUsers]
	}
	comms := r.Scores.Communities
	if topCommunities > 0 && len(comms) > topCommunities {
		comms = comms[:topCommunities]
	}

	return &export.Summary{
		RunID:          r.RunID,
		GeneratedAt:    r.StartedAt,
		Duration:       r.Duration.String(),
		Records:        r.ReadStats.Kept,
		Users:          len(r.Scores.Users),
		Clusters:       len(r.Clusters),
		Rules:          len(r.Rules.Rules),
		Communities:    len(r.Partition.Communities),
		GraphStats:     r.Graph.Stats(),
		RulesTruncated: r.Rules.Truncated,
		Weights:        r.Scores.EffectiveWeights,
		TopUsers:       users,
		TopCommunities: comms,
	}
}

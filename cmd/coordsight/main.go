// Package main is the entry point for the coordsight analysis pipeline.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"coordsight/internal/config"
	"coordsight/internal/engine"
	"coordsight/internal/export"
	"coordsight/internal/logging"
	"coordsight/internal/storage"
	"coordsight/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"records_path", cfg.Input.RecordsPath,
		"export_dir", cfg.Export.Dir,
		"coordination_window", cfg.Coordination.Window,
		"storage_enabled", cfg.Storage.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := engine.New(cfg).Run(ctx)
	if err != nil {
		slog.Error("analysis run failed", "error", err)
		os.Exit(1)
	}

	summary := result.Summary(cfg.Scoring.TopUsers, cfg.Scoring.TopCommunities)

	if err := writeArtifacts(cfg, result, summary); err != nil {
		slog.Error("failed to write artifacts", "error", err)
		os.Exit(1)
	}

	// Downstream publication and persistence are best effort: the run
	// artifacts on disk are already complete at this point.
	publishScores(ctx, cfg, result)
	persistRun(ctx, cfg, result, summary)
	archiveRun(ctx, cfg, result)

	slog.Info("run complete",
		"run_id", result.RunID,
		"duration", result.Duration,
		"output_dir", cfg.Export.Dir,
	)
}

func writeArtifacts(cfg *config.Config, result *engine.RunResult, summary *export.Summary) error {
	writer, err := export.NewWriter(cfg.Export.Dir)
	if err != nil {
		return err
	}
	writer.MinEdgeWeight = cfg.Graph.MinExportWeight

	if err := writer.WriteGraph(result.Graph); err != nil {
		return err
	}
	if err := writer.WriteClusters(result.Clusters); err != nil {
		return err
	}
	if err := writer.WriteRules(result.Rules); err != nil {
		return err
	}
	if err := writer.WriteScores(result.Scores); err != nil {
		return err
	}
	return writer.WriteSummary(summary)
}

func publishScores(ctx context.Context, cfg *config.Config, result *engine.RunResult) {
	if !cfg.Export.Redis.Enabled {
		return
	}
	publisher, err := export.NewPublisher(cfg.Export.Redis)
	if err != nil {
		slog.Error("redis unavailable, skipping publication", "error", err)
		return
	}
	defer publisher.Close()

	if err := publisher.Publish(ctx, result.Scores.Users); err != nil {
		slog.Error("failed to publish scores", "error", err)
		return
	}
	slog.Info("scores published", "key", cfg.Export.Redis.Key, "users", len(result.Scores.Users))
}

func persistRun(ctx context.Context, cfg *config.Config, result *engine.RunResult, summary *export.Summary) {
	if !cfg.Storage.Enabled {
		return
	}
	ch := cfg.Storage.ClickHouse
	slog.Info("persisting run",
		"clickhouse", logging.MaskDSN(ch.Username+":"+ch.Password+"@"+strings.Join(ch.Hosts, ",")),
		"database", ch.Database,
	)

	client, err := storage.NewClickHouseClient(ch)
	if err != nil {
		slog.Error("clickhouse unavailable, skipping persistence", "error", err)
		return
	}
	defer client.Close()

	if err := storage.NewMigrator(client).Run(ctx); err != nil {
		slog.Error("migrations failed, skipping persistence", "error", err)
		return
	}

	writer := storage.NewRunWriter(client)
	if err := writer.WriteUserScores(ctx, result.RunID, result.StartedAt, result.Scores.Users); err != nil {
		slog.Error("failed to persist user scores", "error", err)
	}
	if err := writer.WriteCommunityScores(ctx, result.RunID, result.StartedAt, result.Scores.Communities); err != nil {
		slog.Error("failed to persist community scores", "error", err)
	}
	if err := writer.WriteSummary(ctx, summary); err != nil {
		slog.Error("failed to persist run summary", "error", err)
	}
}

func archiveRun(ctx context.Context, cfg *config.Config, result *engine.RunResult) {
	if !cfg.Storage.S3.Enabled {
		return
	}
	client, err := s3.NewClient(ctx, &s3.Config{
		Region:          cfg.Storage.S3.Region,
		Bucket:          cfg.Storage.S3.Bucket,
		Prefix:          cfg.Storage.S3.Prefix,
		Endpoint:        cfg.Storage.S3.Endpoint,
		AccessKeyID:     cfg.Storage.S3.AccessKeyID,
		SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		UsePathStyle:    cfg.Storage.S3.UsePathStyle,
	}, slog.Default())
	if err != nil {
		slog.Error("s3 unavailable, skipping archive", "error", err)
		return
	}

	archiver := s3.NewRunArchiver(client, slog.Default())
	if _, err := archiver.ArchiveRun(ctx, result.RunID, cfg.Export.Dir, result.StartedAt); err != nil {
		slog.Error("failed to archive run", "error", err)
	}
}

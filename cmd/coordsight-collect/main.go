// Package main is the entry point for the record collector, which drains
// the Kafka collection topic into the append-only JSONL record file.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"coordsight/internal/config"
	"coordsight/internal/kafka"
	"coordsight/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging)
	logger := slog.Default()

	if err := os.MkdirAll(filepath.Dir(cfg.Input.RecordsPath), 0o755); err != nil {
		slog.Error("failed to create record directory", "error", err)
		os.Exit(1)
	}
	out, err := os.OpenFile(cfg.Input.RecordsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("failed to open record file", "error", err)
		os.Exit(1)
	}
	defer out.Close()

	collector, err := kafka.NewCollector(cfg.Kafka, out, logger)
	if err != nil {
		slog.Error("failed to create collector", "error", err)
		os.Exit(1)
	}
	defer collector.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Periodic progress logging while the collector drains the topic.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := collector.Stats()
				slog.Info("collector progress",
					"consumed", stats.Consumed,
					"written", stats.Written,
					"malformed", stats.Malformed,
					"unsupported", stats.Unsupported,
				)
			}
		}
	}()

	slog.Info("collector started",
		"topic", cfg.Kafka.Topic,
		"records_path", cfg.Input.RecordsPath,
	)
	if err := collector.Run(ctx); err != nil {
		slog.Error("collector failed", "error", err)
		os.Exit(1)
	}

	stats := collector.Stats()
	slog.Info("collector stopped",
		"consumed", stats.Consumed,
		"written", stats.Written,
		"malformed", stats.Malformed,
	)
}

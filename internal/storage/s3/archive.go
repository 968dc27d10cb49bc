package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RunManifest describes one archived run.
type RunManifest struct {
	RunID      string    `json:"run_id"`
	ArchivedAt time.Time `json:"archived_at"`
	Files      []RunFile `json:"files"`
}

// RunFile is one archived artifact.
type RunFile struct {
	Name           string `json:"name"`
	Key            string `json:"key"`
	Size           int64  `json:"size"`
	CompressedSize int64  `json:"compressed_size"`
}

// RunArchiver gzips a run's output directory and uploads it.
type RunArchiver struct {
	client *Client
	logger *slog.Logger
}

// NewRunArchiver creates a run archiver.
func NewRunArchiver(client *Client, logger *slog.Logger) *RunArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunArchiver{client: client, logger: logger}
}

// ArchiveRun uploads every file in the run output directory, gzipped, under
// a date-partitioned key, then uploads a manifest describing them.
func (a *RunArchiver) ArchiveRun(ctx context.Context, runID string, dir string, archivedAt time.Time) (*RunManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read run directory: %w", err)
	}

	manifest := &RunManifest{
		RunID:      runID,
		ArchivedAt: archivedAt.UTC(),
	}
	base := runKeyPrefix(runID, archivedAt)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", entry.Name(), err)
		}

		compressed, err := compressGzip(data)
		if err != nil {
			return nil, fmt.Errorf("failed to compress artifact %s: %w", entry.Name(), err)
		}

		key := base + "/" + entry.Name() + ".gz"
		if _, err := a.client.Upload(ctx, key, "application/gzip", bytes.NewReader(compressed)); err != nil {
			return nil, err
		}

		manifest.Files = append(manifest.Files, RunFile{
			Name:           entry.Name(),
			Key:            key,
			Size:           int64(len(data)),
			CompressedSize: int64(len(compressed)),
		})
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if _, err := a.client.Upload(ctx, base+"/manifest.json", "application/json", bytes.NewReader(manifestData)); err != nil {
		return nil, err
	}

	a.logger.Info("run archived",
		"run_id", runID,
		"files", len(manifest.Files),
		"key_prefix", base,
	)
	return manifest, nil
}

// runKeyPrefix partitions archives by date so lifecycle rules can expire
// whole days at a time.
func runKeyPrefix(runID string, t time.Time) string {
	return fmt.Sprintf("%s/%s", t.UTC().Format("2006/01/02"), runID)
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

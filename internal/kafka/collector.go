// Package kafka consumes raw platform payloads from the collection topic
// and appends normalized records to the JSONL record file the analysis
// engine reads.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"coordsight/internal/config"
	"coordsight/internal/ingest"
	"coordsight/internal/schema"
)

// envelope wraps a raw platform payload with its source platform.
type envelope struct {
	Platform string          `json:"platform"`
	Payload  json.RawMessage `json:"payload"`
}

// CollectorStats counts collector activity.
type CollectorStats struct {
	Consumed    int64
	Written     int64
	Malformed   int64
	Unsupported int64
}

// Collector reads platform payloads from Kafka, normalizes them, and
// appends them to the record sink as JSONL.
type Collector struct {
	reader    *kafka.Reader
	out       io.Writer
	validator *schema.Validator
	logger    *slog.Logger

	mu sync.Mutex

	consumed    atomic.Int64
	written     atomic.Int64
	malformed   atomic.Int64
	unsupported atomic.Int64
}

// NewCollector creates a collector writing normalized records to out.
func NewCollector(cfg config.KafkaConfig, out io.Writer, logger *slog.Logger) (*Collector, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        maxWait,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	logger.Info("collector initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"group", cfg.ConsumerGroup,
	)

	return &Collector{
		reader:    reader,
		out:       out,
		validator: schema.NewValidator(),
		logger:    logger,
	}, nil
}

// Run consumes messages until the context is canceled. Malformed payloads
// are counted and skipped, then committed anyway: a poison message must not
// wedge the partition.
func (c *Collector) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("kafka: fetch failed: %w", err)
		}
		c.consumed.Add(1)

		if err := c.handle(msg.Value); err != nil {
			c.malformed.Add(1)
			c.logger.Warn("skipping payload",
				"offset", msg.Offset,
				"partition", msg.Partition,
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka: commit failed: %w", err)
		}
	}
}

func (c *Collector) handle(value []byte) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("bad envelope: %w", err)
	}

	var (
		record schema.Record
		err    error
	)
	switch schema.Platform(env.Platform) {
	case schema.PlatformYouTube:
		var comment ingest.YouTubeComment
		if err := json.Unmarshal(env.Payload, &comment); err != nil {
			return fmt.Errorf("bad youtube payload: %w", err)
		}
		record, err = comment.Normalize()
	case schema.PlatformX:
		var post ingest.XPost
		if err := json.Unmarshal(env.Payload, &post); err != nil {
			return fmt.Errorf("bad x payload: %w", err)
		}
		record, err = post.Normalize()
	default:
		c.unsupported.Add(1)
		return fmt.Errorf("unsupported platform %q", env.Platform)
	}
	if err != nil {
		return err
	}
	if err := c.validator.Validate(&record); err != nil {
		return err
	}

	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	c.written.Add(1)
	return nil
}

// Stats returns a snapshot of collector counters.
func (c *Collector) Stats() CollectorStats {
	return CollectorStats{
		Consumed:    c.consumed.Load(),
		Written:     c.written.Load(),
		Malformed:   c.malformed.Load(),
		Unsupported: c.unsupported.Load(),
	}
}

// Close releases the Kafka reader.
func (c *Collector) Close() error {
	return c.reader.Close()
}

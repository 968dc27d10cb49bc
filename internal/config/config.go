// Package config handles configuration loading for Coordsight.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Input        InputConfig        `yaml:"input"`
	Graph        GraphConfig        `yaml:"graph"`
	Coordination CoordinationConfig `yaml:"coordination"`
	Rules        RulesConfig        `yaml:"rules"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	Export       ExportConfig       `yaml:"export"`
	Storage      StorageConfig      `yaml:"storage"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// InputConfig holds record intake settings.
type InputConfig struct {
	// RecordsPath is the append-only JSONL record file produced by the
	// collection collaborators.
	RecordsPath string `yaml:"records_path"`

	// NLPScoresPath is an optional per-user JSONL file of externally
	// computed credibility/similarity scores.
	NLPScoresPath string `yaml:"nlp_scores_path"`

	// WindowStart/WindowEnd bound the collection window. Records outside
	// the window are dropped before analysis. Zero values disable the filter.
	WindowStart time.Time `yaml:"window_start"`
	WindowEnd   time.Time `yaml:"window_end"`
}

// GraphConfig holds co-participation graph builder settings.
type GraphConfig struct {
	// CountMode selects edge weight semantics: "groups" counts one per
	// shared group, "records" counts per-group co-occurrence multiplicity.
	CountMode string `yaml:"count_mode"`

	// MaxGroupUsers caps the participant set considered per group. Groups
	// above the cap contribute a deterministic sample to bound the
	// quadratic pair expansion.
	MaxGroupUsers int `yaml:"max_group_users"`

	// CommunityMinWeight is the minimum edge weight for the community
	// partition and density computation.
	CommunityMinWeight int `yaml:"community_min_weight"`

	// MinExportWeight filters edges below this weight from exports.
	// The full graph is always used for scoring.
	MinExportWeight int `yaml:"min_export_weight"`
}

// CoordinationConfig holds exact-match detector settings.
type CoordinationConfig struct {
	// Window is the sliding window width for exact-match clustering.
	Window time.Duration `yaml:"window"`

	// MinUsers is the minimum number of distinct users in a cluster.
	MinUsers int `yaml:"min_users"`

	// StripVolatile removes volatile tokens (URL query strings, long
	// digit runs) during text normalization.
	StripVolatile bool `yaml:"strip_volatile"`

	// MinTextLength excludes normalized texts shorter than this from
	// clustering entirely.
	MinTextLength int `yaml:"min_text_length"`
}

// RulesConfig holds association rule mining settings.
type RulesConfig struct {
	MinSupport    float64 `yaml:"min_support"`
	MinConfidence float64 `yaml:"min_confidence"`

	// MinItemUsers is the vocabulary floor: tokens used by fewer distinct
	// users are dropped before mining.
	MinItemUsers int `yaml:"min_item_users"`

	// MaxItemsetSize bounds the apriori level count.
	MaxItemsetSize int `yaml:"max_itemset_size"`

	// MaxDuration bounds mining wall-clock time. On expiry the miner
	// returns the rules found so far with a truncation flag.
	MaxDuration time.Duration `yaml:"max_duration"`

	// MinLift and TopKRules filter the rule set used for hit counting.
	// TopKRules <= 0 keeps all rules that pass the thresholds.
	MinLift   float64 `yaml:"min_lift"`
	TopKRules int     `yaml:"top_k_rules"`
}

// ScoringConfig holds score aggregation settings.
type ScoringConfig struct {
	Weights WeightsConfig `yaml:"weights"`

	// TopUsers and TopCommunities size the ranked summary.
	TopUsers       int `yaml:"top_users"`
	TopCommunities int `yaml:"top_communities"`
}

// WeightsConfig holds the per-signal combination weights.
type WeightsConfig struct {
	SNA            float64 `yaml:"sna"`
	ARL            float64 `yaml:"arl"`
	Community      float64 `yaml:"community"`
	NLPCredibility float64 `yaml:"nlp_credibility"`
	NLPSimilarity  float64 `yaml:"nlp_similarity"`
}

// ExportConfig holds output settings.
type ExportConfig struct {
	// Dir is the directory all run outputs are written to.
	Dir string `yaml:"dir"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds settings for publishing ranked scores to Redis.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Key is the sorted set the ranked user scores are published to.
	Key string `yaml:"key"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	S3         S3Config         `yaml:"s3"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// S3Config holds archive upload settings.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// KafkaConfig holds record collector settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	MinBytes      int           `yaml:"min_bytes"`
	MaxBytes      int           `yaml:"max_bytes"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			RecordsPath: "data/records.jsonl",
		},
		Graph: GraphConfig{
			CountMode:          "groups",
			MaxGroupUsers:      200,
			CommunityMinWeight: 2,
			MinExportWeight:    1,
		},
		Coordination: CoordinationConfig{
			Window:        time.Hour,
			MinUsers:      2,
			StripVolatile: true,
			MinTextLength: 1,
		},
		Rules: RulesConfig{
			MinSupport:     0.01,
			MinConfidence:  0.5,
			MinItemUsers:   3,
			MaxItemsetSize: 4,
			MaxDuration:    2 * time.Minute,
			MinLift:        1.0,
			TopKRules:      0,
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				SNA:            0.45,
				ARL:            0.30,
				Community:      0.05,
				NLPCredibility: 0.15,
				NLPSimilarity:  0.05,
			},
			TopUsers:       50,
			TopCommunities: 25,
		},
		Export: ExportConfig{
			Dir: "out",
			Redis: RedisConfig{
				Enabled: false,
				Addr:    "localhost:6379",
				Key:     "coordsight:top_users",
			},
		},
		Storage: StorageConfig{
			Enabled: false,
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "coordsight",
				Username:        "default",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				DialTimeout:     10 * time.Second,
				BatchSize:       1000,
				MaxRetries:      3,
				RetryDelay:      time.Second,
			},
			S3: S3Config{
				Enabled: false,
				Region:  "us-east-1",
				Bucket:  "coordsight-archive",
				Prefix:  "runs/",
			},
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Topic:         "engagement-records",
			ConsumerGroup: "coordsight-collect",
			MinBytes:      1,
			MaxBytes:      10 * 1024 * 1024,
			MaxWait:       500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("COORDSIGHT_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("COORDSIGHT_RECORDS_PATH"); p != "" {
		c.Input.RecordsPath = p
	}

	if p := os.Getenv("COORDSIGHT_OUT_DIR"); p != "" {
		c.Export.Dir = p
	}

	if level := os.Getenv("COORDSIGHT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if w := os.Getenv("COORDSIGHT_WINDOW"); w != "" {
		if d, err := time.ParseDuration(w); err == nil {
			c.Coordination.Window = d
		}
	}

	if k := os.Getenv("COORDSIGHT_MIN_USERS"); k != "" {
		if n, err := strconv.Atoi(k); err == nil {
			c.Coordination.MinUsers = n
		}
	}

	// Storage settings
	if enabled := os.Getenv("COORDSIGHT_STORAGE_ENABLED"); enabled == "true" {
		c.Storage.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	// Kafka settings
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
	}

	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		c.Kafka.Topic = topic
	}

	// Redis settings
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Export.Redis.Addr = addr
		c.Export.Redis.Enabled = true
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Input.RecordsPath == "" {
		return fmt.Errorf("input records_path is required")
	}

	if c.Graph.CountMode != "groups" && c.Graph.CountMode != "records" {
		return fmt.Errorf("invalid graph count_mode: %q", c.Graph.CountMode)
	}

	if c.Graph.MaxGroupUsers <= 1 {
		return fmt.Errorf("graph max_group_users must be > 1")
	}

	if c.Coordination.Window <= 0 {
		return fmt.Errorf("coordination window must be positive")
	}

	if c.Coordination.MinUsers < 2 {
		return fmt.Errorf("coordination min_users must be >= 2")
	}

	if c.Rules.MinSupport <= 0 || c.Rules.MinSupport > 1 {
		return fmt.Errorf("rules min_support must be in (0, 1]")
	}

	if c.Rules.MinConfidence <= 0 || c.Rules.MinConfidence > 1 {
		return fmt.Errorf("rules min_confidence must be in (0, 1]")
	}

	if c.Rules.MinItemUsers < 1 {
		return fmt.Errorf("rules min_item_users must be >= 1")
	}

	w := c.Scoring.Weights
	if w.SNA < 0 || w.ARL < 0 || w.Community < 0 || w.NLPCredibility < 0 || w.NLPSimilarity < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if w.SNA+w.ARL+w.Community+w.NLPCredibility+w.NLPSimilarity <= 0 {
		return fmt.Errorf("at least one scoring weight must be positive")
	}

	if c.Scoring.TopUsers <= 0 {
		return fmt.Errorf("scoring top_users must be positive")
	}

	return nil
}

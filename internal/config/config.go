package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Initial positions for shards with no checkpoint yet.
const (
	InitialPositionLatest      = "LATEST"
	InitialPositionTrimHorizon = "TRIM_HORIZON"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Application names the consumer application; it also names the lease
	// table, so two applications consume the same stream independently.
	Application string `json:"application"`
	// Stream is the stream to consume or produce to.
	Stream string `json:"stream"`
	// InitialPosition is where a shard with no checkpoint starts:
	// LATEST or TRIM_HORIZON.
	InitialPosition string `json:"initialPosition"`
	// ShardCount is used only when creating a missing stream.
	ShardCount int `json:"shardCount"`

	DataDir         string `json:"dataDir"`
	Fsync           string `json:"fsync"`
	FsyncIntervalMs int64  `json:"fsyncIntervalMs"`

	Consumer ConsumerConfig `json:"consumer"`
	Producer ProducerConfig `json:"producer"`
	Log      LogConfig      `json:"log"`
}

// ConsumerConfig tunes the lease/checkpoint/retry core.
type ConsumerConfig struct {
	LeaseTTLMs           int64  `json:"leaseTtlMs"`
	CheckpointIntervalMs int64  `json:"checkpointIntervalMs"`
	RetryCount           int    `json:"retryCount"`
	RetryBackoffMs       int64  `json:"retryBackoffMs"`
	BatchSize            int    `json:"batchSize"`
	PollIdleMs           int64  `json:"pollIdleMs"`
	// Filter is an optional CEL expression; records it rejects are skipped.
	Filter string `json:"filter"`
}

// ProducerConfig tunes the producer loop and stream provisioning waits.
type ProducerConfig struct {
	IntervalMs      int64 `json:"intervalMs"`
	SourceCount     int   `json:"sourceCount"`
	EnsurePollMs    int64 `json:"ensurePollMs"`
	EnsureTimeoutMs int64 `json:"ensureTimeoutMs"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Application:     "lode-sample",
		Stream:          "lode-stream",
		InitialPosition: InitialPositionLatest,
		ShardCount:      4,
		DataDir:         DefaultDataDir(),
		Fsync:           "interval",
		FsyncIntervalMs: 5,
		Consumer: ConsumerConfig{
			LeaseTTLMs:           10_000,
			CheckpointIntervalMs: 60_000,
			RetryCount:           10,
			RetryBackoffMs:       3_000,
			BatchSize:            1000,
			PollIdleMs:           1_000,
		},
		Producer: ProducerConfig{
			IntervalMs:      1_000,
			SourceCount:     8,
			EnsurePollMs:    20_000,
			EnsureTimeoutMs: 600_000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot act on.
func (c Config) Validate() error {
	if c.Application == "" {
		return fmt.Errorf("application is required")
	}
	if c.Stream == "" {
		return fmt.Errorf("stream is required")
	}
	switch c.InitialPosition {
	case InitialPositionLatest, InitialPositionTrimHorizon:
	default:
		return fmt.Errorf("initialPosition must be %s or %s, got %q",
			InitialPositionLatest, InitialPositionTrimHorizon, c.InitialPosition)
	}
	if c.ShardCount < 1 {
		return fmt.Errorf("shardCount must be >= 1, got %d", c.ShardCount)
	}
	if c.Consumer.LeaseTTLMs <= 0 {
		return fmt.Errorf("consumer.leaseTtlMs must be positive")
	}
	if c.Consumer.CheckpointIntervalMs <= 0 {
		return fmt.Errorf("consumer.checkpointIntervalMs must be positive")
	}
	if c.Consumer.RetryCount < 1 {
		return fmt.Errorf("consumer.retryCount must be >= 1")
	}
	if c.Consumer.BatchSize < 1 {
		return fmt.Errorf("consumer.batchSize must be >= 1")
	}
	return nil
}

// Duration accessors; ms fields stay plain integers for JSON/env friendliness.

func (c ConsumerConfig) LeaseTTL() time.Duration           { return msDur(c.LeaseTTLMs) }
func (c ConsumerConfig) CheckpointInterval() time.Duration { return msDur(c.CheckpointIntervalMs) }
func (c ConsumerConfig) RetryBackoff() time.Duration       { return msDur(c.RetryBackoffMs) }
func (c ConsumerConfig) PollIdle() time.Duration           { return msDur(c.PollIdleMs) }

func (p ProducerConfig) Interval() time.Duration      { return msDur(p.IntervalMs) }
func (p ProducerConfig) EnsurePoll() time.Duration    { return msDur(p.EnsurePollMs) }
func (p ProducerConfig) EnsureTimeout() time.Duration { return msDur(p.EnsureTimeoutMs) }

func (c Config) FsyncInterval() time.Duration { return msDur(c.FsyncIntervalMs) }

func msDur(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

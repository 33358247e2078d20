package config

import (
	"os"
	"strconv"
)

// FromEnv overlays LODE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setStr := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt64 := func(name string, dst *int64) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	setStr("LODE_APPLICATION", &cfg.Application)
	setStr("LODE_STREAM", &cfg.Stream)
	setStr("LODE_INITIAL_POSITION", &cfg.InitialPosition)
	setInt("LODE_SHARD_COUNT", &cfg.ShardCount)
	setStr("LODE_DATA_DIR", &cfg.DataDir)
	setStr("LODE_FSYNC", &cfg.Fsync)
	setInt64("LODE_FSYNC_INTERVAL_MS", &cfg.FsyncIntervalMs)

	setInt64("LODE_LEASE_TTL_MS", &cfg.Consumer.LeaseTTLMs)
	setInt64("LODE_CHECKPOINT_INTERVAL_MS", &cfg.Consumer.CheckpointIntervalMs)
	setInt("LODE_RETRY_COUNT", &cfg.Consumer.RetryCount)
	setInt64("LODE_RETRY_BACKOFF_MS", &cfg.Consumer.RetryBackoffMs)
	setInt("LODE_BATCH_SIZE", &cfg.Consumer.BatchSize)
	setInt64("LODE_POLL_IDLE_MS", &cfg.Consumer.PollIdleMs)
	setStr("LODE_FILTER", &cfg.Consumer.Filter)

	setInt64("LODE_PRODUCE_INTERVAL_MS", &cfg.Producer.IntervalMs)
	setInt("LODE_PRODUCE_SOURCE_COUNT", &cfg.Producer.SourceCount)
	setInt64("LODE_ENSURE_POLL_MS", &cfg.Producer.EnsurePollMs)
	setInt64("LODE_ENSURE_TIMEOUT_MS", &cfg.Producer.EnsureTimeoutMs)

	setStr("LODE_LOG_LEVEL", &cfg.Log.Level)
	setStr("LODE_LOG_FORMAT", &cfg.Log.Format)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.InitialPosition != InitialPositionLatest {
		t.Fatalf("default initial position = %q", cfg.InitialPosition)
	}
	if cfg.ShardCount != 4 {
		t.Fatalf("default shard count = %d", cfg.ShardCount)
	}
	if cfg.Consumer.RetryCount != 10 {
		t.Fatalf("default retry count = %d", cfg.Consumer.RetryCount)
	}
	if cfg.Consumer.RetryBackoff() != 3*time.Second {
		t.Fatalf("default retry backoff = %v", cfg.Consumer.RetryBackoff())
	}
	if cfg.Consumer.CheckpointInterval() != time.Minute {
		t.Fatalf("default checkpoint interval = %v", cfg.Consumer.CheckpointInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "lode.json")
	data := []byte(`{"application":"billing","stream":"orders","initialPosition":"TRIM_HORIZON","consumer":{"leaseTtlMs":5000,"retryCount":3}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Application != "billing" {
		t.Fatalf("application = %q", cfg.Application)
	}
	if cfg.InitialPosition != InitialPositionTrimHorizon {
		t.Fatalf("initial position = %q", cfg.InitialPosition)
	}
	if cfg.Consumer.LeaseTTL() != 5*time.Second {
		t.Fatalf("lease ttl = %v", cfg.Consumer.LeaseTTL())
	}
	// Untouched keys keep their defaults.
	if cfg.Consumer.BatchSize != 1000 {
		t.Fatalf("batch size = %d", cfg.Consumer.BatchSize)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("LODE_APPLICATION", "staging-app")
	os.Setenv("LODE_INITIAL_POSITION", "TRIM_HORIZON")
	os.Setenv("LODE_LEASE_TTL_MS", "2500")
	os.Setenv("LODE_RETRY_COUNT", "4")
	t.Cleanup(func() {
		os.Unsetenv("LODE_APPLICATION")
		os.Unsetenv("LODE_INITIAL_POSITION")
		os.Unsetenv("LODE_LEASE_TTL_MS")
		os.Unsetenv("LODE_RETRY_COUNT")
	})
	FromEnv(&cfg)
	if cfg.Application != "staging-app" {
		t.Fatalf("env override application = %q", cfg.Application)
	}
	if cfg.InitialPosition != InitialPositionTrimHorizon {
		t.Fatalf("env override initial position = %q", cfg.InitialPosition)
	}
	if cfg.Consumer.LeaseTTLMs != 2500 {
		t.Fatalf("env override lease ttl = %d", cfg.Consumer.LeaseTTLMs)
	}
	if cfg.Consumer.RetryCount != 4 {
		t.Fatalf("env override retry count = %d", cfg.Consumer.RetryCount)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.InitialPosition = "EARLIEST"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for bad initial position")
	}

	cfg = Default()
	cfg.Application = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty application")
	}

	cfg = Default()
	cfg.ShardCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero shard count")
	}

	cfg = Default()
	cfg.Consumer.RetryCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero retry count")
	}
}

package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "APPENDSHIP_"

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// ApplyEnvConfig applies configuration from environment variables (APPENDSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("base-url", env("BASE_URL"), &cfg.BaseURL)
	s.setString("stream", env("STREAM"), &cfg.Stream)
	s.setString("auth-token", env("AUTH_TOKEN"), &cfg.AuthToken)
	s.setString("compression", env("COMPRESSION"), &cfg.Compression)
	s.setString("input", env("INPUT"), &cfg.Input)
	s.setString("state-dir", env("STATE_DIR"), &cfg.StateDir)
	s.setString("fencing-token", env("FENCING_TOKEN"), &cfg.FencingToken)
	s.setString("append-retry-policy", env("APPEND_RETRY_POLICY"), &cfg.RetryPolicy)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	if h := env("HEADERS"); h != "" {
		s.setStrings("header", strings.Split(h, ","), &cfg.Headers)
	}

	durations := []struct {
		flag string
		name string
		dst  *time.Duration
	}{
		{"poll", "POLL_INTERVAL", &cfg.PollInterval},
		{"linger", "LINGER", &cfg.Linger},
		{"request-timeout", "REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"timeout", "HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"retry-min-delay", "RETRY_MIN_DELAY", &cfg.RetryMinDelay},
		{"retry-max-delay", "RETRY_MAX_DELAY", &cfg.RetryMaxDelay},
		{"checkpoint-interval", "CHECKPOINT_INTERVAL", &cfg.CheckpointInterval},
		{"shutdown-grace", "SHUTDOWN_GRACE", &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.name), d.dst); err != nil {
			return err
		}
	}

	if err := s.setFloatFromString("records-per-second", env("RECORDS_PER_SECOND"), &cfg.RecordsPerSecond); err != nil {
		return err
	}

	ints := []struct {
		flag string
		name string
		dst  *int
	}{
		{"burst", "BURST", &cfg.Burst},
		{"max-batch-records", "MAX_BATCH_RECORDS", &cfg.MaxBatchRecords},
		{"max-batch-bytes", "MAX_BATCH_BYTES", &cfg.MaxBatchBytes},
		{"max-inflight", "MAX_INFLIGHT", &cfg.MaxInflight},
		{"retry-max-attempts", "RETRY_MAX_ATTEMPTS", &cfg.RetryMaxAttempts},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.name), i.dst); err != nil {
			return err
		}
	}
	if err := s.setInt64FromString("match-seq-num", env("MATCH_SEQ_NUM"), &cfg.MatchSeqNum); err != nil {
		return err
	}

	s.setBoolFromString("once", env("ONCE"), &cfg.Once)
	s.setBoolFromString("dry-run", env("DRY_RUN"), &cfg.DryRun)

	return nil
}

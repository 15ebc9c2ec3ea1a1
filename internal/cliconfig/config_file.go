package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to make TOML and
// YAML friendly.
type FileConfig struct {
	BaseURL     string `toml:"base_url" yaml:"base_url"`
	Stream      string `toml:"stream" yaml:"stream"`
	AuthToken   string `toml:"auth_token" yaml:"auth_token"`
	Compression string `toml:"compression" yaml:"compression"`

	Input        string `toml:"input" yaml:"input"`
	Once         *bool  `toml:"once" yaml:"once"`
	StateDir     string `toml:"state_dir" yaml:"state_dir"`
	PollInterval string `toml:"poll_interval" yaml:"poll_interval"`

	RecordsPerSecond float64  `toml:"records_per_second" yaml:"records_per_second"`
	Burst            int      `toml:"burst" yaml:"burst"`
	Headers          []string `toml:"headers" yaml:"headers"`

	Linger          string `toml:"linger" yaml:"linger"`
	MaxBatchRecords int    `toml:"max_batch_records" yaml:"max_batch_records"`
	MaxBatchBytes   int    `toml:"max_batch_bytes" yaml:"max_batch_bytes"`
	FencingToken    string `toml:"fencing_token" yaml:"fencing_token"`
	MatchSeqNum     *int64 `toml:"match_seq_num" yaml:"match_seq_num"`

	MaxInflight    int    `toml:"max_inflight" yaml:"max_inflight"`
	RequestTimeout string `toml:"request_timeout" yaml:"request_timeout"`
	HTTPTimeout    string `toml:"http_timeout" yaml:"http_timeout"`

	RetryMaxAttempts int    `toml:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryMinDelay    string `toml:"retry_min_delay" yaml:"retry_min_delay"`
	RetryMaxDelay    string `toml:"retry_max_delay" yaml:"retry_max_delay"`
	RetryPolicy      string `toml:"append_retry_policy" yaml:"append_retry_policy"`

	CheckpointInterval string `toml:"checkpoint_interval" yaml:"checkpoint_interval"`
	ShutdownGrace      string `toml:"shutdown_grace" yaml:"shutdown_grace"`

	LogLevel    string `toml:"log_level" yaml:"log_level"`
	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`
}

// LoadFileConfig reads and parses a config file from the given path.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.appendship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".appendship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("base-url", fc.BaseURL, &cfg.BaseURL)
	s.setString("stream", fc.Stream, &cfg.Stream)
	s.setString("auth-token", fc.AuthToken, &cfg.AuthToken)
	s.setString("compression", fc.Compression, &cfg.Compression)
	s.setString("input", fc.Input, &cfg.Input)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("fencing-token", fc.FencingToken, &cfg.FencingToken)
	s.setString("append-retry-policy", fc.RetryPolicy, &cfg.RetryPolicy)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setStrings("header", fc.Headers, &cfg.Headers)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"poll", fc.PollInterval, &cfg.PollInterval},
		{"linger", fc.Linger, &cfg.Linger},
		{"request-timeout", fc.RequestTimeout, &cfg.RequestTimeout},
		{"timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"retry-min-delay", fc.RetryMinDelay, &cfg.RetryMinDelay},
		{"retry-max-delay", fc.RetryMaxDelay, &cfg.RetryMaxDelay},
		{"checkpoint-interval", fc.CheckpointInterval, &cfg.CheckpointInterval},
		{"shutdown-grace", fc.ShutdownGrace, &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setFloat("records-per-second", fc.RecordsPerSecond, &cfg.RecordsPerSecond)

	s.setInt("burst", fc.Burst, &cfg.Burst)
	s.setInt("max-batch-records", fc.MaxBatchRecords, &cfg.MaxBatchRecords)
	s.setInt("max-batch-bytes", fc.MaxBatchBytes, &cfg.MaxBatchBytes)
	s.setInt("max-inflight", fc.MaxInflight, &cfg.MaxInflight)
	s.setInt("retry-max-attempts", fc.RetryMaxAttempts, &cfg.RetryMaxAttempts)
	s.setInt64("match-seq-num", fc.MatchSeqNum, &cfg.MatchSeqNum)

	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/appendship/pkg/appendship"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
)

// Config holds CLI configuration for appendship.
type Config struct {
	BaseURL     string
	Stream      string
	AuthToken   string
	Compression string

	Input        string
	Once         bool
	StateDir     string
	PollInterval time.Duration

	RecordsPerSecond float64
	Burst            int
	Headers          []string

	Linger          time.Duration
	MaxBatchRecords int
	MaxBatchBytes   int
	FencingToken    string
	// MatchSeqNum is negative when unset.
	MatchSeqNum int64

	MaxInflight    int
	RequestTimeout time.Duration
	HTTPTimeout    time.Duration

	RetryMaxAttempts int
	RetryMinDelay    time.Duration
	RetryMaxDelay    time.Duration
	RetryPolicy      string

	CheckpointInterval time.Duration
	ShutdownGrace      time.Duration

	LogLevel    string
	MetricsAddr string
	DryRun      bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	lib := appendship.DefaultConfig()
	return Config{
		Compression:        lib.Compression,
		PollInterval:       lib.PollInterval,
		Linger:             lib.Linger,
		MaxBatchRecords:    lib.MaxBatchRecords,
		MaxBatchBytes:      lib.MaxBatchBytes,
		MatchSeqNum:        -1,
		MaxInflight:        lib.MaxInflightBatches,
		HTTPTimeout:        lib.HTTPTimeout,
		RetryMaxAttempts:   lib.Retry.MaxAttempts,
		RetryMinDelay:      lib.Retry.MinDelay,
		RetryMaxDelay:      lib.Retry.MaxDelay,
		RetryPolicy:        lib.Retry.AppendRetryPolicy.String(),
		CheckpointInterval: lib.CheckpointInterval,
		ShutdownGrace:      lib.ShutdownGrace,
		LogLevel:           "info",
		AuthToken:          os.Getenv("APPENDSHIP_AUTH_TOKEN"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input is required")
	}
	if !c.DryRun {
		if c.BaseURL == "" {
			return fmt.Errorf("base-url is required")
		}
		if c.Stream == "" {
			return fmt.Errorf("stream is required")
		}
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.Input == appendship.StdinInput {
		c.Once = true
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if _, err := c.headers(); err != nil {
		return err
	}
	if _, err := retry.ParseAppendRetryPolicy(c.RetryPolicy); err != nil {
		return err
	}
	return nil
}

// Library converts the CLI configuration into the embeddable agent's.
func (c Config) Library() (appendship.Config, error) {
	headers, err := c.headers()
	if err != nil {
		return appendship.Config{}, err
	}
	policy, err := retry.ParseAppendRetryPolicy(c.RetryPolicy)
	if err != nil {
		return appendship.Config{}, err
	}

	lib := appendship.Config{
		BaseURL:            c.BaseURL,
		Stream:             c.Stream,
		AuthToken:          c.AuthToken,
		Compression:        c.Compression,
		Input:              c.Input,
		Once:               c.Once,
		PollInterval:       c.PollInterval,
		StateDir:           c.StateDir,
		Headers:            headers,
		RecordsPerSecond:   c.RecordsPerSecond,
		Burst:              c.Burst,
		Linger:             c.Linger,
		MaxBatchRecords:    c.MaxBatchRecords,
		MaxBatchBytes:      c.MaxBatchBytes,
		FencingToken:       c.FencingToken,
		MaxInflightBatches: c.MaxInflight,
		RequestTimeout:     c.RequestTimeout,
		HTTPTimeout:        c.HTTPTimeout,
		Retry: retry.Config{
			MaxAttempts:       c.RetryMaxAttempts,
			MinDelay:          c.RetryMinDelay,
			MaxDelay:          c.RetryMaxDelay,
			AppendRetryPolicy: policy,
		},
		CheckpointInterval: c.CheckpointInterval,
		ShutdownGrace:      c.ShutdownGrace,
	}
	if c.MatchSeqNum >= 0 {
		seq := uint64(c.MatchSeqNum)
		lib.MatchSeqNum = &seq
	}
	return lib, nil
}

// headers parses "name=value" pairs.
func (c Config) headers() ([]record.Header, error) {
	var out []record.Header
	for _, h := range c.Headers {
		name, value, ok := strings.Cut(h, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("header %q: want name=value", h)
		}
		out = append(out, record.Header{Name: []byte(name), Value: []byte(value)})
	}
	return out, nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value from a pointer if not nil and flag not changed.
func (s *configSetter) setInt64(flag string, value *int64, dst *int64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

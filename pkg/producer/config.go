package producer

import (
	"time"

	"github.com/bft-labs/appendship/pkg/batch"
	"github.com/bft-labs/appendship/pkg/pipeline"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
)

// Default producer configuration values.
const (
	DefaultMaxInflightBatches = pipeline.DefaultMaxInflight
	DefaultShutdownGrace      = 30 * time.Second
)

// Config holds producer settings.
type Config struct {
	// Batch configures how records are grouped.
	Batch batch.Config

	// MaxInflightBatches bounds the batches being sent at once.
	MaxInflightBatches int

	// RequestTimeout bounds each append attempt. Zero means none.
	RequestTimeout time.Duration

	// ShutdownGrace bounds how long a forced Close waits for in-flight sends.
	ShutdownGrace time.Duration

	// Retry configures append retries.
	Retry retry.Config
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Batch:              batch.DefaultConfig(),
		MaxInflightBatches: DefaultMaxInflightBatches,
		ShutdownGrace:      DefaultShutdownGrace,
		Retry:              retry.DefaultConfig(),
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	c.Batch.SetDefaults()
	if c.MaxInflightBatches == 0 {
		c.MaxInflightBatches = DefaultMaxInflightBatches
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	c.Retry.SetDefaults()
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := c.Batch.Validate(); err != nil {
		return err
	}
	if c.MaxInflightBatches < 1 {
		return record.NewConfigError("max-inflight-batches", "must be at least 1")
	}
	if c.RequestTimeout < 0 {
		return record.NewConfigError("request-timeout", "must not be negative")
	}
	if c.ShutdownGrace < 0 {
		return record.NewConfigError("shutdown-grace", "must not be negative")
	}
	return c.Retry.Validate()
}

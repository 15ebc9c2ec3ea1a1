package appendship

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/bft-labs/appendship/pkg/batch"
	"github.com/bft-labs/appendship/pkg/producer"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
	"github.com/bft-labs/appendship/pkg/sender"
)

// StdinInput reads records from standard input.
const StdinInput = "-"

// Default configuration values.
const (
	DefaultPollInterval       = time.Second
	DefaultHTTPTimeout        = 30 * time.Second
	DefaultCheckpointInterval = time.Second
)

// Config holds the configuration for an Appendship agent.
type Config struct {
	// BaseURL is the basin endpoint.
	BaseURL string

	// Stream is the target stream name.
	Stream string

	// AuthToken is sent as a bearer token.
	AuthToken string

	// Compression is "none", "gzip" or "zstd".
	Compression string

	// Input is a file path, or "-" for stdin. Each line becomes one record.
	Input string

	// Once stops at the end of the input instead of following the file.
	Once bool

	// PollInterval bounds how long a follower waits without a file event.
	PollInterval time.Duration

	// StateDir holds the checkpoint file. Defaults to the input's directory.
	StateDir string

	// Headers are attached to every record.
	Headers []record.Header

	// RecordsPerSecond throttles reading when positive.
	RecordsPerSecond float64
	Burst            int

	// Linger is how long an open batch waits for more records.
	// Zero selects the default, negative disables lingering.
	Linger time.Duration

	MaxBatchRecords int
	MaxBatchBytes   int

	// FencingToken is attached to every batch when non-empty.
	FencingToken string

	// MatchSeqNum makes the first batch conditional on the stream tail.
	MatchSeqNum *uint64

	// MaxInflightBatches bounds concurrent appends. Batches may land on
	// the stream out of order unless it is 1.
	MaxInflightBatches int

	// RequestTimeout bounds one append attempt.
	RequestTimeout time.Duration

	// HTTPTimeout is the default HTTP client timeout.
	HTTPTimeout time.Duration

	Retry retry.Config

	CheckpointInterval time.Duration

	// ShutdownGrace bounds how long Stop waits for outstanding batches.
	ShutdownGrace time.Duration
}

// DefaultConfig returns a Config with default values.
// BaseURL, Stream and Input must still be set.
func DefaultConfig() Config {
	return Config{
		Compression:        string(sender.CompressionNone),
		PollInterval:       DefaultPollInterval,
		Linger:             batch.DefaultLinger,
		MaxBatchRecords:    batch.DefaultMaxRecords,
		MaxBatchBytes:      batch.DefaultMaxBytes,
		MaxInflightBatches: producer.DefaultMaxInflightBatches,
		HTTPTimeout:        DefaultHTTPTimeout,
		Retry:              retry.DefaultConfig(),
		CheckpointInterval: DefaultCheckpointInterval,
		ShutdownGrace:      producer.DefaultShutdownGrace,
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Linger == 0 {
		c.Linger = batch.DefaultLinger
	}
	if c.MaxBatchRecords == 0 {
		c.MaxBatchRecords = batch.DefaultMaxRecords
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = batch.DefaultMaxBytes
	}
	if c.MaxInflightBatches == 0 {
		c.MaxInflightBatches = producer.DefaultMaxInflightBatches
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = producer.DefaultShutdownGrace
	}
	c.Retry.SetDefaults()

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.StateDir == "" && c.Input != "" && c.Input != StdinInput {
		c.StateDir = filepath.Dir(c.Input)
	}
}

// Validate checks the configuration for errors.
// Transport settings are checked by New unless a transport is injected.
func (c Config) Validate() error {
	if c.Input == "" {
		return record.NewConfigError("input", "is required")
	}
	if c.Input == StdinInput && !c.Once {
		return record.NewConfigError("input", "stdin can only be read with once")
	}
	if c.PollInterval < 0 {
		return record.NewConfigError("poll-interval", "must not be negative")
	}
	if c.RecordsPerSecond < 0 {
		return record.NewConfigError("records-per-second", "must not be negative")
	}
	if _, err := sender.ParseCompression(c.Compression); err != nil {
		return err
	}
	if c.CheckpointInterval < 0 {
		return record.NewConfigError("checkpoint-interval", "must not be negative")
	}
	pc := c.producerConfig()
	return pc.Validate()
}

func (c Config) producerConfig() producer.Config {
	bc := batch.Config{
		Linger:     c.Linger,
		MaxRecords: c.MaxBatchRecords,
		MaxBytes:   c.MaxBatchBytes,
	}
	if bc.Linger < 0 {
		bc.Linger = 0
	}
	if c.FencingToken != "" {
		token := c.FencingToken
		bc.FencingToken = &token
	}
	if c.MatchSeqNum != nil {
		seq := *c.MatchSeqNum
		bc.MatchSeqNum = &seq
	}
	return producer.Config{
		Batch:              bc,
		MaxInflightBatches: c.MaxInflightBatches,
		RequestTimeout:     c.RequestTimeout,
		ShutdownGrace:      c.ShutdownGrace,
		Retry:              c.Retry,
	}
}

package batch

import (
	"time"

	"github.com/bft-labs/appendship/pkg/record"
)

// Batch limits enforced by the stream service.
const (
	MaxRecordsLimit = 1000
	MaxBytesLimit   = 1 << 20
)

// Default accumulator configuration values.
const (
	DefaultLinger        = 5 * time.Millisecond
	DefaultMaxRecords    = MaxRecordsLimit
	DefaultMaxBytes      = MaxBytesLimit
	DefaultBufferBatches = 1
)

// Config holds accumulator settings.
type Config struct {
	// Linger is the maximum time an open batch waits before it is flushed.
	// Zero disables the linger timer.
	Linger time.Duration

	// MaxRecords bounds the record count of a batch.
	MaxRecords int

	// MaxBytes bounds the metered size of a batch.
	MaxBytes int

	// FencingToken is attached to every emitted batch when set.
	FencingToken *string

	// MatchSeqNum is the precondition for the first batch when set.
	MatchSeqNum *uint64

	// BufferBatches is the capacity of the emitted-batch channel.
	BufferBatches int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Linger:        DefaultLinger,
		MaxRecords:    DefaultMaxRecords,
		MaxBytes:      DefaultMaxBytes,
		BufferBatches: DefaultBufferBatches,
	}
}

// SetDefaults fills zero limits with defaults. Linger is left as is.
func (c *Config) SetDefaults() {
	if c.MaxRecords == 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.BufferBatches <= 0 {
		c.BufferBatches = DefaultBufferBatches
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Linger < 0 {
		return record.NewConfigError("linger", "must not be negative")
	}
	if c.MaxRecords < 1 || c.MaxRecords > MaxRecordsLimit {
		return record.NewConfigError("max-batch-records", "must be between 1 and 1000")
	}
	if c.MaxBytes < 1 || c.MaxBytes > MaxBytesLimit {
		return record.NewConfigError("max-batch-bytes", "must be between 1 and 1048576")
	}
	return nil
}

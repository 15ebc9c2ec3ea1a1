package retry

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/appendship/pkg/record"
)

// AppendRetryPolicy decides whether ambiguous append failures may be retried.
type AppendRetryPolicy int

const (
	// RetryAll retries every retryable append failure.
	// A retried append may be applied twice.
	RetryAll AppendRetryPolicy = iota

	// RetryNoSideEffects only retries failures known not to have been applied.
	RetryNoSideEffects
)

// String returns the config name of the policy.
func (p AppendRetryPolicy) String() string {
	switch p {
	case RetryAll:
		return "all"
	case RetryNoSideEffects:
		return "no-side-effects"
	default:
		return "unknown"
	}
}

// ParseAppendRetryPolicy parses a policy name.
func ParseAppendRetryPolicy(s string) (AppendRetryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return RetryAll, nil
	case "no-side-effects", "no_side_effects", "nosideeffects":
		return RetryNoSideEffects, nil
	default:
		return RetryAll, record.NewConfigError("append-retry-policy", fmt.Sprintf("unknown policy %q", s))
	}
}

// Default retry configuration values.
const (
	DefaultMaxAttempts = 3
	DefaultMinDelay    = 100 * time.Millisecond
	DefaultMaxDelay    = time.Second
)

// Config holds retry settings.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// MinDelay is the initial backoff base.
	MinDelay time.Duration

	// MaxDelay caps the backoff base.
	MaxDelay time.Duration

	// AppendRetryPolicy governs ambiguous append failures.
	AppendRetryPolicy AppendRetryPolicy
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       DefaultMaxAttempts,
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		AppendRetryPolicy: RetryAll,
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MinDelay == 0 {
		c.MinDelay = DefaultMinDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return record.NewConfigError("max-attempts", "must be at least 1")
	}
	if c.MinDelay < 0 {
		return record.NewConfigError("min-delay", "must not be negative")
	}
	if c.MaxDelay < c.MinDelay {
		return record.NewConfigError("max-delay", "must not be less than min-delay")
	}
	switch c.AppendRetryPolicy {
	case RetryAll, RetryNoSideEffects:
	default:
		return record.NewConfigError("append-retry-policy", "unknown policy")
	}
	return nil
}

package record

import (
	"context"
	"errors"
	"fmt"
)

// Pipeline errors. These can be checked with errors.Is.
var (
	// ErrInvalidConfig is wrapped by every *ConfigError.
	ErrInvalidConfig = errors.New("appendship: invalid configuration")

	// ErrRecordTooLarge is returned when a single record exceeds the batch byte limit.
	ErrRecordTooLarge = errors.New("appendship: record exceeds max batch bytes")

	// ErrClosed is returned when submitting to a closed pipeline.
	ErrClosed = errors.New("appendship: closed")

	// ErrClosedWithPending resolves handles that never reached a batch on close.
	ErrClosedWithPending = errors.New("appendship: closed with pending records")

	// ErrCanceled resolves handles abandoned by a forced shutdown.
	ErrCanceled = fmt.Errorf("appendship: canceled: %w", context.Canceled)

	// ErrInvariant reports an internal ledger/batch mismatch.
	ErrInvariant = errors.New("appendship: internal invariant violated")
)

// ConfigError describes an invalid option value or input.
// It is fatal and reported synchronously.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

// Error implements error.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidConfig, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

// Unwrap lets errors.Is match both ErrInvalidConfig and the cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

// NewConfigError creates a ConfigError for a field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// TooLarge creates the ConfigError returned for an oversized record.
func TooLarge(size, limit int) *ConfigError {
	return &ConfigError{
		Field:  "record",
		Reason: fmt.Sprintf("metered size %d exceeds limit %d", size, limit),
		Err:    ErrRecordTooLarge,
	}
}

// Package retry executes transport calls with bounded retries.
//
// An [Executor] retries an operation while attempts remain and the error is
// classified retryable. Delays follow an exponential [Backoff] with jitter:
// the delay before a retry is drawn from [d, 2d) where d is the current
// base capped at MaxDelay, and the base doubles after every attempt.
//
// Appends carry an extra rule. Under [RetryNoSideEffects] an ambiguous
// failure (the service may already have applied the append) is returned
// immediately instead of retried, so a record is never written twice.
//
// # Classification
//
// Errors opt in through two optional methods, looked up with errors.As:
//
//	Retryable() bool      // transient: rate limited, 5xx, connectivity
//	SideEffectFree() bool // the request certainly was not applied
//
// A per-attempt context.DeadlineExceeded is retryable but ambiguous.
// Cancellation of the caller's context is never retried.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package retry

package retry

import (
	"context"
	"errors"
)

type retryable interface {
	Retryable() bool
}

type sideEffectFree interface {
	SideEffectFree() bool
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsSideEffectFree reports whether err guarantees the request was not applied.
func IsSideEffectFree(err error) bool {
	var s sideEffectFree
	if errors.As(err, &s) {
		return s.SideEffectFree()
	}
	return false
}

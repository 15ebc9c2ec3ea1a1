package sender

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindFencingMismatch
	KindSeqNumMismatch
	KindRateLimited
	KindServer
	KindTimeout
	KindConnection
)

// String returns a human-readable representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad-request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not-found"
	case KindFencingMismatch:
		return "fencing-mismatch"
	case KindSeqNumMismatch:
		return "seq-num-mismatch"
	case KindRateLimited:
		return "rate-limited"
	case KindServer:
		return "server-error"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection-error"
	default:
		return "unknown"
	}
}

// Error is a classified transport failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string

	// NotSent is true when the request never left the client.
	NotSent bool

	Err error
}

// Error implements error.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "append: " + msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports transient failures.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServer, KindTimeout, KindConnection:
		return true
	default:
		return false
	}
}

// SideEffectFree reports failures that certainly did not apply the append.
func (e *Error) SideEffectFree() bool {
	switch e.Kind {
	case KindRateLimited:
		return true
	case KindConnection:
		return e.NotSent
	default:
		return !e.Retryable()
	}
}

// ConditionFailed reports fencing token or sequence number mismatches.
func (e *Error) ConditionFailed() bool {
	return e.Kind == KindFencingMismatch || e.Kind == KindSeqNumMismatch
}

// IsConditionFailed reports whether err is a fencing or sequence mismatch.
func IsConditionFailed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.ConditionFailed()
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ErrorForStatus classifies a non-2xx HTTP status.
func ErrorForStatus(status int, message string) *Error {
	e := &Error{StatusCode: status, Message: message}
	switch {
	case status == 400 || status == 422:
		e.Kind = KindBadRequest
	case status == 401 || status == 403:
		e.Kind = KindUnauthorized
	case status == 404:
		e.Kind = KindNotFound
	case status == 408:
		e.Kind = KindTimeout
	case status == 412:
		e.Kind = KindSeqNumMismatch
	case status == 429:
		e.Kind = KindRateLimited
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindUnknown
	}
	return e
}

package record

import (
	"context"
	"sync"
)

// Handle is a one-shot result cell for a submitted record.
// It is resolved exactly once; any number of goroutines may wait on it.
type Handle struct {
	once sync.Once
	done chan struct{}
	ack  RecordAck
	err  error
}

// NewHandle creates an unresolved handle.
func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Resolve completes the handle successfully.
// Returns false if the handle was already resolved.
func (h *Handle) Resolve(ack RecordAck) bool {
	return h.complete(ack, nil)
}

// Fail completes the handle with err.
// Returns false if the handle was already resolved.
func (h *Handle) Fail(err error) bool {
	return h.complete(RecordAck{}, err)
}

// Cancel fails the handle with ErrCanceled.
func (h *Handle) Cancel() bool {
	return h.Fail(ErrCanceled)
}

func (h *Handle) complete(ack RecordAck, err error) bool {
	resolved := false
	h.once.Do(func() {
		h.ack = ack
		h.err = err
		resolved = true
		close(h.done)
	})
	return resolved
}

// Done returns a channel closed once the handle is resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Resolved returns true once the handle has a result.
func (h *Handle) Resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the handle is resolved or ctx is done.
// A ctx error does not resolve the handle.
func (h *Handle) Wait(ctx context.Context) (RecordAck, error) {
	select {
	case <-h.done:
		return h.ack, h.err
	case <-ctx.Done():
		return RecordAck{}, ctx.Err()
	}
}

// Result returns the outcome without blocking.
// The values are only meaningful once Resolved reports true.
func (h *Handle) Result() (RecordAck, error) {
	select {
	case <-h.done:
		return h.ack, h.err
	default:
		return RecordAck{}, nil
	}
}

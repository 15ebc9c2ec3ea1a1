package appendship

import (
	"time"

	"github.com/bft-labs/appendship/pkg/lifecycle"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
	"github.com/bft-labs/appendship/pkg/sender"
)

// State is the lifecycle state of an Appendship instance.
type State = lifecycle.State

// Lifecycle states.
const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// BatchAckedEvent describes an acknowledged batch.
type BatchAckedEvent struct {
	Records  int
	Bytes    int
	Ack      record.AppendAck
	Duration time.Duration
}

// BatchFailedEvent describes a batch whose records were all failed.
type BatchFailedEvent struct {
	Error     error
	Kind      sender.ErrorKind
	Records   int
	Retryable bool
	Duration  time.Duration
}

// EventHandler receives notifications about agent activity.
// Batch events arrive on send goroutines and may be concurrent;
// implementations must be safe for concurrent use and return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnBatchAcked(event BatchAckedEvent)
	OnBatchFailed(event BatchFailedEvent)
}

// BaseEventHandler implements EventHandler with no-ops.
// Embed it to handle only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnBatchAcked(BatchAckedEvent)   {}
func (BaseEventHandler) OnBatchFailed(BatchFailedEvent) {}

// eventEmitterWrapper adapts EventHandler to the lifecycle and pipeline emitters.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current lifecycle.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: previous,
		Current:  current,
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnBatchAcked(records, bytes int, ack *record.AppendAck, duration time.Duration) {
	if e.handler == nil {
		return
	}
	ev := BatchAckedEvent{Records: records, Bytes: bytes, Duration: duration}
	if ack != nil {
		ev.Ack = *ack
	}
	e.handler.OnBatchAcked(ev)
}

func (e *eventEmitterWrapper) OnBatchFailed(err error, records int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnBatchFailed(BatchFailedEvent{
		Error:     err,
		Kind:      sender.KindOf(err),
		Records:   records,
		Retryable: retry.IsRetryable(err),
		Duration:  duration,
	})
}

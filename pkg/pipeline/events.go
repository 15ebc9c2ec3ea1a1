package pipeline

import (
	"time"

	"github.com/bft-labs/appendship/pkg/record"
)

// EventEmitter is notified after each batch outcome.
// Calls happen on send goroutines and may be concurrent.
type EventEmitter interface {
	// OnBatchAcked is called once the batch's handles have been resolved.
	OnBatchAcked(records, bytes int, ack *record.AppendAck, duration time.Duration)

	// OnBatchFailed is called once the batch's handles have been failed.
	OnBatchFailed(err error, records int, duration time.Duration)
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter []EventEmitter

// OnBatchAcked implements EventEmitter.
func (m MultiEmitter) OnBatchAcked(records, bytes int, ack *record.AppendAck, duration time.Duration) {
	for _, e := range m {
		if e != nil {
			e.OnBatchAcked(records, bytes, ack, duration)
		}
	}
}

// OnBatchFailed implements EventEmitter.
func (m MultiEmitter) OnBatchFailed(err error, records int, duration time.Duration) {
	for _, e := range m {
		if e != nil {
			e.OnBatchFailed(err, records, duration)
		}
	}
}

package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/sender"
)

// fakeTransport wraps a MemoryTransport with a per-batch hook and
// concurrency tracking.
type fakeTransport struct {
	mem *sender.MemoryTransport

	// hook runs before the append; a non-nil error fails the attempt.
	hook func(ctx context.Context, b *record.Batch) error

	calls       atomic.Int64
	current     atomic.Int64
	maxObserved atomic.Int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{mem: sender.NewMemoryTransport()}
}

func (f *fakeTransport) Append(ctx context.Context, b *record.Batch) (*record.AppendAck, error) {
	f.calls.Add(1)
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		max := f.maxObserved.Load()
		if n <= max || f.maxObserved.CompareAndSwap(max, n) {
			break
		}
	}

	if f.hook != nil {
		if err := f.hook(ctx, b); err != nil {
			return nil, err
		}
	}
	return f.mem.Append(ctx, b)
}

// mockEmitter records batch events.
type mockEmitter struct {
	mu     sync.Mutex
	acked  int
	failed int
	errs   []error
}

func (m *mockEmitter) OnBatchAcked(records, bytes int, ack *record.AppendAck, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
}

func (m *mockEmitter) OnBatchFailed(err error, records int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	m.errs = append(m.errs, err)
}

func (m *mockEmitter) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked, m.failed
}

func hasBody(b *record.Batch, body string) bool {
	for _, r := range b.Records {
		if string(r.Body) == body {
			return true
		}
	}
	return false
}

// fatal is a non-retryable transport failure.
var fatal = &sender.Error{Kind: sender.KindBadRequest, StatusCode: 400, Message: "rejected"}

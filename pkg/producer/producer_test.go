package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/appendship/pkg/batch"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/sender"
)

// fakeTransport appends to an in-memory stream after an optional hook.
type fakeTransport struct {
	mem   *sender.MemoryTransport
	hook  func(ctx context.Context, b *record.Batch) error
	calls atomic.Int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{mem: sender.NewMemoryTransport()}
}

func (f *fakeTransport) Append(ctx context.Context, b *record.Batch) (*record.AppendAck, error) {
	f.calls.Add(1)
	if f.hook != nil {
		if err := f.hook(ctx, b); err != nil {
			return nil, err
		}
	}
	return f.mem.Append(ctx, b)
}

func hasBody(b *record.Batch, body string) bool {
	for _, r := range b.Records {
		if string(r.Body) == body {
			return true
		}
	}
	return false
}

func testConfig(maxRecords int, linger time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Batch = batch.Config{MaxRecords: maxRecords, Linger: linger}
	return cfg
}

func newProducer(t *testing.T, ft *fakeTransport, cfg Config) *Producer {
	t.Helper()
	p, err := New(ft, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func submitN(t *testing.T, p *Producer, n int) []*record.Handle {
	t.Helper()
	handles := make([]*record.Handle, n)
	for i := range handles {
		h, err := p.Submit(record.NewRecord([]byte(fmt.Sprintf("r%03d", i))))
		if err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
		handles[i] = h
	}
	return handles
}

func TestProducer_ThousandRecordsCorrelateWithOffsets(t *testing.T) {
	ft := newFakeTransport()
	cfg := testConfig(10, 0)
	cfg.MaxInflightBatches = 1
	p := newProducer(t, ft, cfg)

	handles := submitN(t, p, 1000)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := ft.mem.Batches(); got != 100 {
		t.Fatalf("batches sent = %d, want 100", got)
	}
	for i, h := range handles {
		ack, err := h.Wait(context.Background())
		if err != nil {
			t.Fatalf("handle %d error = %v", i, err)
		}
		if ack.SeqNum != uint64(i) {
			t.Errorf("handle %d seq = %d, want %d", i, ack.SeqNum, i)
		}
		if want := uint64(i / 10 * 10); ack.Batch.Start.SeqNum != want {
			t.Errorf("handle %d batch start = %d, want %d", i, ack.Batch.Start.SeqNum, want)
		}
		if i%10 != 0 {
			prev, _ := handles[i-1].Result()
			if prev.Batch != ack.Batch {
				t.Errorf("handle %d does not share its batch ack with handle %d", i, i-1)
			}
		}
	}

	st := p.Stats()
	if st.Submitted != 1000 || st.Acked != 1000 || st.Failed != 0 {
		t.Errorf("Stats() = %+v, want 1000 submitted and acked", st)
	}
}

func TestProducer_PipelinedSequenceNumbersMatchBatchOffsets(t *testing.T) {
	ft := newFakeTransport()
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		time.Sleep(time.Millisecond)
		return nil
	}
	p := newProducer(t, ft, testConfig(7, 0))

	handles := submitN(t, p, 200)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	seen := make(map[uint64]bool)
	for i, h := range handles {
		ack, err := h.Wait(context.Background())
		if err != nil {
			t.Fatalf("handle %d error = %v", i, err)
		}
		if seen[ack.SeqNum] {
			t.Fatalf("seq %d assigned twice", ack.SeqNum)
		}
		seen[ack.SeqNum] = true
		if idx := ack.SeqNum - ack.Batch.Start.SeqNum; idx != uint64(i%7) {
			t.Errorf("handle %d at batch index %d, want %d", i, idx, i%7)
		}
	}
}

func TestProducer_FailedBatchOnlyFailsItsRecords(t *testing.T) {
	rejected := &sender.Error{Kind: sender.KindBadRequest, StatusCode: 400, Message: "rejected"}
	ft := newFakeTransport()
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		if hasBody(b, "r002") {
			return rejected
		}
		return nil
	}
	p := newProducer(t, ft, testConfig(2, 0))

	handles := submitN(t, p, 6)
	err := p.Close(context.Background())
	if !errors.Is(err, rejected) {
		t.Errorf("Close() error = %v, want first batch error", err)
	}

	for i, h := range handles {
		_, err := h.Wait(context.Background())
		switch i {
		case 2, 3:
			if !errors.Is(err, rejected) {
				t.Errorf("handle %d error = %v, want %v", i, err, rejected)
			}
		default:
			if err != nil {
				t.Errorf("handle %d error = %v, want success", i, err)
			}
		}
	}
	if st := p.Stats(); st.Acked != 4 || st.Failed != 2 {
		t.Errorf("Stats() = %+v, want 4 acked and 2 failed", st)
	}
}

func TestProducer_CloseFlushesLingeringBatch(t *testing.T) {
	ft := newFakeTransport()
	p := newProducer(t, ft, testConfig(100, time.Hour))

	handles := submitN(t, p, 3)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for i, h := range handles {
		if !h.Resolved() {
			t.Fatalf("handle %d unresolved after Close", i)
		}
		if _, err := h.Result(); err != nil {
			t.Errorf("handle %d error = %v", i, err)
		}
	}
	if got := ft.mem.Batches(); got != 1 {
		t.Errorf("batches = %d, want 1", got)
	}
}

func TestProducer_LingerSendsIdleRecords(t *testing.T) {
	ft := newFakeTransport()
	p := newProducer(t, ft, testConfig(100, 10*time.Millisecond))
	defer p.Close(context.Background())

	handles := submitN(t, p, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			t.Fatalf("handle %d error = %v", i, err)
		}
	}
	if got := ft.mem.Batches(); got != 1 {
		t.Errorf("batches = %d, want exactly 1 linger batch", got)
	}
}

func TestProducer_AbortCancelsInflight(t *testing.T) {
	ft := newFakeTransport()
	started := make(chan struct{}, 16)
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
	cfg := testConfig(1, 0)
	cfg.ShutdownGrace = time.Second
	p := newProducer(t, ft, cfg)

	handles := submitN(t, p, 3)
	<-started

	err := p.Abort()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Abort() error = %v, want canceled", err)
	}
	for i, h := range handles {
		if !h.Resolved() {
			t.Fatalf("handle %d unresolved after Abort", i)
		}
		if _, err := h.Result(); !errors.Is(err, record.ErrCanceled) {
			t.Errorf("handle %d error = %v, want ErrCanceled", i, err)
		}
	}
}

func TestProducer_ForcedCloseAfterGrace(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ft := newFakeTransport()
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		<-block
		return nil
	}
	cfg := testConfig(1, 0)
	cfg.ShutdownGrace = 20 * time.Millisecond
	p := newProducer(t, ft, cfg)

	handles := submitN(t, p, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want deadline exceeded", err)
	}
	if _, err := handles[0].Result(); !errors.Is(err, record.ErrCanceled) {
		t.Errorf("stuck handle error = %v, want ErrCanceled", err)
	}
}

func TestProducer_InvariantViolationAborts(t *testing.T) {
	ft := newFakeTransport()
	p := newProducer(t, ft, testConfig(10, 0))

	handles := submitN(t, p, 2)

	// Drop the second handle so the emitted batch of two outruns the ledger.
	p.ledgerMu.Lock()
	dropped := p.ledger[1]
	p.ledger = p.ledger[:1]
	p.ledgerMu.Unlock()
	if dropped != handles[1] {
		t.Fatal("ledger order does not match submission order")
	}

	p.Flush()

	if _, err := handles[0].Wait(context.Background()); !errors.Is(err, record.ErrInvariant) {
		t.Errorf("outstanding handle error = %v, want ErrInvariant", err)
	}
	if _, err := p.Submit(record.NewRecord([]byte("after"))); !errors.Is(err, record.ErrInvariant) {
		t.Errorf("Submit() after abort error = %v, want ErrInvariant", err)
	}
	if err := p.Close(context.Background()); !errors.Is(err, record.ErrInvariant) {
		t.Errorf("Close() error = %v, want ErrInvariant", err)
	}
	if got := ft.calls.Load(); got != 0 {
		t.Errorf("transport calls = %d, want 0", got)
	}

	// The producer no longer owns the dropped handle, so Close leaves it alone.
	if handles[1].Resolved() {
		t.Error("dropped handle was resolved by the producer")
	}
	if !handles[1].Cancel() {
		t.Error("Cancel() on dropped handle returned false")
	}
	if _, err := handles[1].Result(); !errors.Is(err, record.ErrCanceled) {
		t.Errorf("dropped handle error = %v, want ErrCanceled", err)
	}
}

func TestProducer_SubmitRejections(t *testing.T) {
	ft := newFakeTransport()
	cfg := testConfig(10, time.Hour)
	cfg.Batch.MaxBytes = 32
	p := newProducer(t, ft, cfg)

	if _, err := p.Submit(record.NewRecord([]byte("ok"))); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_, err := p.Submit(record.NewRecord(make([]byte, 40)))
	if !errors.Is(err, record.ErrRecordTooLarge) {
		t.Errorf("Submit(oversized) error = %v, want ErrRecordTooLarge", err)
	}
	if got := p.Stats().PendingRecords; got != 1 {
		t.Errorf("PendingRecords = %d after rejected submit, want 1", got)
	}

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := p.Submit(record.NewRecord([]byte("late"))); !errors.Is(err, record.ErrClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrClosed", err)
	}
}

func TestProducer_RecordTimestamps(t *testing.T) {
	ft := newFakeTransport()
	p := newProducer(t, ft, testConfig(10, 0))

	withTS, err := p.Submit(record.NewRecord([]byte("a")).WithTimestamp(42))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	withoutTS, err := p.Submit(record.NewRecord([]byte("b")))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a, _ := withTS.Result()
	if a.Timestamp != 42 {
		t.Errorf("client timestamp = %d, want 42", a.Timestamp)
	}
	b, _ := withoutTS.Result()
	if b.Timestamp != b.Batch.Start.Timestamp {
		t.Errorf("service timestamp = %d, want batch start %d", b.Timestamp, b.Batch.Start.Timestamp)
	}
}

func TestProducer_MatchSeqNumAcrossBatches(t *testing.T) {
	ft := newFakeTransport()
	start := uint64(0)
	cfg := testConfig(3, 0)
	cfg.Batch.MatchSeqNum = &start
	cfg.MaxInflightBatches = 1
	p := newProducer(t, ft, cfg)

	handles := submitN(t, p, 10)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for i, h := range handles {
		if _, err := h.Result(); err != nil {
			t.Errorf("handle %d error = %v", i, err)
		}
	}
	if got := ft.mem.Tail(); got != 10 {
		t.Errorf("tail = %d, want 10", got)
	}
}

func TestProducer_FencingMismatchIsNotRetried(t *testing.T) {
	ft := newFakeTransport()
	ft.mem.SetFencingToken("other-writer")
	token := "me"
	cfg := testConfig(5, 0)
	cfg.Batch.FencingToken = &token
	p := newProducer(t, ft, cfg)

	handles := submitN(t, p, 5)
	err := p.Close(context.Background())
	if !sender.IsConditionFailed(err) {
		t.Errorf("Close() error = %v, want condition failure", err)
	}
	if _, err := handles[0].Result(); sender.KindOf(err) != sender.KindFencingMismatch {
		t.Errorf("handle error = %v, want fencing mismatch", err)
	}
	if got := ft.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
}

func TestProducer_ConcurrentSubmittersKeepOrder(t *testing.T) {
	ft := newFakeTransport()
	cfg := testConfig(16, time.Millisecond)
	cfg.MaxInflightBatches = 1
	p := newProducer(t, ft, cfg)

	const workers, perWorker = 8, 100
	results := make([][]*record.Handle, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h, err := p.Submit(record.NewRecord([]byte(fmt.Sprintf("w%d-%d", w, i))))
				if err != nil {
					t.Errorf("Submit() error = %v", err)
					return
				}
				results[w] = append(results[w], h)
			}
		}(w)
	}
	wg.Wait()
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	stored := ft.mem.Records()
	for w, handles := range results {
		last := int64(-1)
		for i, h := range handles {
			ack, err := h.Result()
			if err != nil {
				t.Fatalf("worker %d handle %d error = %v", w, i, err)
			}
			if int64(ack.SeqNum) <= last {
				t.Errorf("worker %d handle %d seq %d not after %d", w, i, ack.SeqNum, last)
			}
			last = int64(ack.SeqNum)
			if want := fmt.Sprintf("w%d-%d", w, i); string(stored[ack.SeqNum].Body) != want {
				t.Errorf("seq %d holds %q, want %q", ack.SeqNum, stored[ack.SeqNum].Body, want)
			}
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInflightBatches = -1
	if _, err := New(newFakeTransport(), cfg); !errors.Is(err, record.ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}

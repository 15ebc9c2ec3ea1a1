package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
	"github.com/bft-labs/appendship/pkg/sender"
)

func testBatch(bodies ...string) *record.Batch {
	b := &record.Batch{}
	for _, body := range bodies {
		r := record.NewRecord([]byte(body))
		b.Records = append(b.Records, r)
		b.MeteredBytes += r.MeteredBytes()
	}
	return b
}

func TestDispatcher_BoundsInflight(t *testing.T) {
	ft := newFakeTransport()
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	d, err := NewDispatcher(ft, DispatcherConfig{MaxInflight: 3})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	var mu sync.Mutex
	acked := 0
	for i := 0; i < 20; i++ {
		err := d.Dispatch(context.Background(), testBatch("x"), func(ack *record.AppendAck, err error) {
			if err != nil {
				t.Errorf("batch failed: %v", err)
				return
			}
			mu.Lock()
			acked++
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if acked != 20 {
		t.Errorf("acked = %d, want 20", acked)
	}
	if max := ft.maxObserved.Load(); max > 3 {
		t.Errorf("max concurrent sends = %d, want <= 3", max)
	}
	if d.Inflight() != 0 {
		t.Errorf("Inflight() = %d after Wait, want 0", d.Inflight())
	}
}

func TestDispatcher_DispatchCanceledWhileWaitingForPermit(t *testing.T) {
	release := make(chan struct{})
	ft := newFakeTransport()
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		<-release
		return nil
	}
	d, err := NewDispatcher(ft, DispatcherConfig{MaxInflight: 1})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	noop := func(*record.AppendAck, error) {}
	if err := d.Dispatch(context.Background(), testBatch("a"), noop); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err = d.Dispatch(ctx, testBatch("b"), func(*record.AppendAck, error) { called = true })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dispatch() error = %v, want deadline exceeded", err)
	}

	close(release)
	d.Wait(context.Background())
	if called {
		t.Error("done called for a batch that was never dispatched")
	}
	if got := ft.calls.Load(); got != 1 {
		t.Errorf("transport calls = %d, want 1", got)
	}
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	ft := newFakeTransport()
	attempts := 0
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		attempts++
		if attempts < 3 {
			return &sender.Error{Kind: sender.KindRateLimited, StatusCode: 429}
		}
		return nil
	}

	var retries []int
	d, err := NewDispatcher(ft, DispatcherConfig{
		MaxInflight: 1,
		Retry:       retry.Config{MaxAttempts: 3, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, WithRetryHook(func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}))
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	var gotErr error
	d.Dispatch(context.Background(), testBatch("a", "b"), func(ack *record.AppendAck, err error) {
		gotErr = err
	})
	d.Wait(context.Background())

	if gotErr != nil {
		t.Fatalf("batch error = %v, want success after retries", gotErr)
	}
	if len(retries) != 2 {
		t.Errorf("retries = %v, want 2", retries)
	}
}

func TestDispatcher_RejectsMismatchedAck(t *testing.T) {
	bad := sender.TransportFunc(func(ctx context.Context, b *record.Batch) (*record.AppendAck, error) {
		return &record.AppendAck{End: record.StreamPosition{SeqNum: 5}}, nil
	})
	em := &mockEmitter{}
	d, err := NewDispatcher(bad, DispatcherConfig{}, WithEmitter(em))
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	var gotErr error
	d.Dispatch(context.Background(), testBatch("a"), func(ack *record.AppendAck, err error) {
		gotErr = err
	})
	d.Wait(context.Background())

	if !errors.Is(gotErr, record.ErrInvariant) {
		t.Errorf("error = %v, want ErrInvariant", gotErr)
	}
	if _, failed := em.counts(); failed != 1 {
		t.Errorf("failed events = %d, want 1", failed)
	}
}

func TestDispatcher_RequestTimeoutPerAttempt(t *testing.T) {
	ft := newFakeTransport()
	ft.hook = func(ctx context.Context, b *record.Batch) error {
		<-ctx.Done()
		return ctx.Err()
	}
	d, err := NewDispatcher(ft, DispatcherConfig{
		RequestTimeout: 5 * time.Millisecond,
		Retry:          retry.Config{MaxAttempts: 2, MinDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	var gotErr error
	d.Dispatch(context.Background(), testBatch("a"), func(ack *record.AppendAck, err error) {
		gotErr = err
	})
	d.Wait(context.Background())

	if !errors.Is(gotErr, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", gotErr)
	}
	if got := ft.calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	if _, err := NewDispatcher(nil, DispatcherConfig{}); err == nil {
		t.Error("NewDispatcher(nil transport) returned no error")
	}
	if _, err := NewDispatcher(newFakeTransport(), DispatcherConfig{MaxInflight: -1}); !errors.Is(err, record.ErrInvalidConfig) {
		t.Errorf("NewDispatcher(-1 inflight) error = %v, want ErrInvalidConfig", err)
	}
}

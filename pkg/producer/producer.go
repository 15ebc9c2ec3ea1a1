package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/appendship/pkg/batch"
	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/pipeline"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/sender"
)

// Stats is a snapshot of producer counters.
type Stats struct {
	Submitted       uint64
	Acked           uint64
	Failed          uint64
	InflightBatches int
	PendingRecords  int
}

// Producer batches submitted records, sends the batches pipelined, and
// resolves each record's handle from its batch outcome.
type Producer struct {
	cfg        Config
	acc        *batch.Accumulator
	dispatcher *pipeline.Dispatcher
	logger     log.Logger

	runCtx context.Context
	cancel context.CancelFunc

	// submitMu makes the ledger push and the accumulator append one step,
	// so ledger order always equals batch order.
	submitMu sync.Mutex
	closed   atomic.Bool

	// ledgerMu guards the ledger and is never held while blocking.
	ledgerMu sync.Mutex
	ledger   []*record.Handle
	flights  map[uint64][]*record.Handle
	nextID   uint64
	broken   error

	errMu    sync.Mutex
	firstErr error

	pumpDone  chan struct{}
	closeOnce sync.Once
	closeErr  error

	submitted atomic.Uint64
	acked     atomic.Uint64
	failed    atomic.Uint64
}

// New creates a producer sending through transport and starts its pump.
func New(transport sender.Transport, cfg Config, opts ...Option) (*Producer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	acc, err := batch.NewAccumulator(cfg.Batch, o.logger)
	if err != nil {
		return nil, err
	}

	pipeOpts := append([]pipeline.Option{pipeline.WithLogger(o.logger)}, o.pipeline...)
	d, err := pipeline.NewDispatcher(transport, pipeline.DispatcherConfig{
		MaxInflight:    cfg.MaxInflightBatches,
		RequestTimeout: cfg.RequestTimeout,
		Retry:          cfg.Retry,
	}, pipeOpts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Producer{
		cfg:        cfg,
		acc:        acc,
		dispatcher: d,
		logger:     o.logger,
		runCtx:     ctx,
		cancel:     cancel,
		flights:    make(map[uint64][]*record.Handle),
		pumpDone:   make(chan struct{}),
	}
	go p.pump()
	return p, nil
}

// Submit hands a record to the producer and returns its handle.
// Oversized records are rejected synchronously, as are submissions after
// Close or after the producer broke on an internal error.
// Submit blocks while the pipeline is saturated.
func (p *Producer) Submit(rec record.Record) (*record.Handle, error) {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if p.closed.Load() {
		return nil, record.ErrClosed
	}

	h := record.NewHandle()

	p.ledgerMu.Lock()
	if p.broken != nil {
		err := p.broken
		p.ledgerMu.Unlock()
		return nil, err
	}
	p.ledger = append(p.ledger, h)
	p.ledgerMu.Unlock()

	if err := p.acc.Submit(rec); err != nil {
		p.ledgerMu.Lock()
		if n := len(p.ledger); n > 0 && p.ledger[n-1] == h {
			p.ledger = p.ledger[:n-1]
		}
		p.ledgerMu.Unlock()
		h.Fail(err)
		return nil, err
	}

	p.submitted.Add(1)
	return h, nil
}

// Flush emits the open batch without waiting for the linger timer.
func (p *Producer) Flush() {
	p.acc.Flush()
}

// Close stops accepting records, sends everything already submitted and
// waits for all outcomes. If ctx ends first, in-flight sends are aborted
// and Close waits at most ShutdownGrace more. Handles that are still
// unresolved afterwards fail with record.ErrCanceled (forced) or
// record.ErrClosedWithPending. Close returns the first batch error seen,
// otherwise the ctx error of a forced close. It is idempotent.
func (p *Producer) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.close(ctx)
	})
	return p.closeErr
}

// Abort closes the producer without waiting for in-flight sends.
func (p *Producer) Abort() error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return p.Close(ctx)
}

func (p *Producer) close(ctx context.Context) error {
	p.closed.Store(true)

	drained := make(chan struct{})
	go func() {
		p.acc.Complete()
		<-p.pumpDone
		_ = p.dispatcher.Wait(context.Background())
		close(drained)
	}()

	var ctxErr error
	select {
	case <-drained:
	case <-ctx.Done():
		ctxErr = ctx.Err()
		p.logger.Warn("close interrupted, aborting in-flight batches",
			log.Int("inflight_batches", p.dispatcher.Inflight()),
		)
		p.cancel()

		grace := time.NewTimer(p.cfg.ShutdownGrace)
		select {
		case <-drained:
		case <-grace.C:
			p.logger.Warn("shutdown grace expired", log.Duration("grace", p.cfg.ShutdownGrace))
		}
		grace.Stop()
	}
	p.cancel()

	leftover := record.ErrClosedWithPending
	if ctxErr != nil {
		leftover = record.ErrCanceled
	}
	p.failRemaining(leftover)

	if err := p.firstError(); err != nil {
		return err
	}
	return ctxErr
}

// Stats returns a snapshot of the producer counters.
func (p *Producer) Stats() Stats {
	p.ledgerMu.Lock()
	pending := len(p.ledger)
	p.ledgerMu.Unlock()

	return Stats{
		Submitted:       p.submitted.Load(),
		Acked:           p.acked.Load(),
		Failed:          p.failed.Load(),
		InflightBatches: p.dispatcher.Inflight(),
		PendingRecords:  pending,
	}
}

// pump pairs emitted batches with ledger handles and dispatches them.
// It runs until the accumulator is completed and never stops early, so
// Submit and Complete cannot block on an unread batch channel.
func (p *Producer) pump() {
	defer close(p.pumpDone)

	for b := range p.acc.Batches() {
		id, handles, err := p.take(b.Size())
		if err != nil {
			p.breakLedger(err)
			continue
		}

		done := p.completion(id, b, handles)
		if err := p.dispatcher.Dispatch(p.runCtx, b, done); err != nil {
			done(nil, record.ErrCanceled)
		}
	}
}

// take pops the handles for a batch of k records.
func (p *Producer) take(k int) (uint64, []*record.Handle, error) {
	p.ledgerMu.Lock()
	defer p.ledgerMu.Unlock()

	if p.broken != nil {
		return 0, nil, p.broken
	}
	if len(p.ledger) < k {
		return 0, nil, fmt.Errorf("%w: batch of %d records but %d handles pending",
			record.ErrInvariant, k, len(p.ledger))
	}

	handles := p.ledger[:k:k]
	p.ledger = p.ledger[k:]
	p.nextID++
	p.flights[p.nextID] = handles
	return p.nextID, handles, nil
}

func (p *Producer) completion(id uint64, b *record.Batch, handles []*record.Handle) pipeline.DoneFunc {
	return func(ack *record.AppendAck, err error) {
		p.ledgerMu.Lock()
		delete(p.flights, id)
		p.ledgerMu.Unlock()

		if err != nil {
			if p.runCtx.Err() != nil && errors.Is(err, context.Canceled) {
				err = record.ErrCanceled
			}
			for _, h := range handles {
				h.Fail(err)
			}
			p.failed.Add(uint64(len(handles)))
			p.rememberError(err)
			return
		}

		for i, h := range handles {
			h.Resolve(record.AckFor(ack, i, b.Records[i]))
		}
		p.acked.Add(uint64(len(handles)))
	}
}

// breakLedger fails every outstanding handle and rejects further submits.
func (p *Producer) breakLedger(err error) {
	p.ledgerMu.Lock()
	first := p.broken == nil
	if first {
		p.broken = err
	}
	handles := p.ledger
	p.ledger = nil
	p.ledgerMu.Unlock()

	if first {
		p.logger.Error("producer aborted", log.Err(err))
		p.rememberError(err)
		p.cancel()
	}
	for _, h := range handles {
		h.Fail(err)
	}
	p.failed.Add(uint64(len(handles)))
}

// failRemaining resolves every handle not yet resolved by a batch outcome.
func (p *Producer) failRemaining(err error) {
	p.ledgerMu.Lock()
	handles := p.ledger
	p.ledger = nil
	for id, hs := range p.flights {
		handles = append(handles, hs...)
		delete(p.flights, id)
	}
	p.ledgerMu.Unlock()

	n := 0
	for _, h := range handles {
		if h.Fail(err) {
			n++
		}
	}
	if n > 0 {
		p.failed.Add(uint64(n))
		p.logger.Warn("resolved pending records on close", log.Int("records", n), log.Err(err))
	}
}

func (p *Producer) rememberError(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.firstErr == nil {
		p.firstErr = err
	}
}

func (p *Producer) firstError() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.firstErr
}

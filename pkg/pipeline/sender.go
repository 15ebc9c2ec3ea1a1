package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/appendship/pkg/batch"
	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
	"github.com/bft-labs/appendship/pkg/sender"
)

// Default sender configuration values.
const (
	DefaultBatchSize            = batch.MaxRecordsLimit
	DefaultBatchTimeout         = 10 * time.Millisecond
	DefaultMaxBatchBytes        = batch.MaxBytesLimit
	DefaultBufferSize           = 10000
	DefaultMaxConcurrentBatches = DefaultMaxInflight
	DefaultShutdownGrace        = 30 * time.Second
)

// SenderConfig holds pipelined sender settings.
type SenderConfig struct {
	// BatchSize is the maximum number of records per batch.
	BatchSize int

	// BatchTimeout is how long a partial batch waits for more records.
	BatchTimeout time.Duration

	// MaxBatchBytes is the maximum metered size of a batch.
	MaxBatchBytes int

	// BufferSize is the capacity of the submission queue.
	BufferSize int

	// MaxConcurrentBatches bounds the batches being sent at once.
	MaxConcurrentBatches int

	// FencingToken is attached to every batch when set.
	FencingToken *string

	// RequestTimeout bounds each append attempt. Zero means none.
	RequestTimeout time.Duration

	// ShutdownGrace bounds how long Shutdown waits for in-flight work.
	ShutdownGrace time.Duration

	// Retry configures append retries.
	Retry retry.Config
}

// DefaultSenderConfig returns a SenderConfig with default values.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		BatchSize:            DefaultBatchSize,
		BatchTimeout:         DefaultBatchTimeout,
		MaxBatchBytes:        DefaultMaxBatchBytes,
		BufferSize:           DefaultBufferSize,
		MaxConcurrentBatches: DefaultMaxConcurrentBatches,
		ShutdownGrace:        DefaultShutdownGrace,
		Retry:                retry.DefaultConfig(),
	}
}

// SetDefaults fills zero values with defaults.
func (c *SenderConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = DefaultMaxBatchBytes
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxConcurrentBatches == 0 {
		c.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	c.Retry.SetDefaults()
}

// Validate checks the configuration for errors.
func (c SenderConfig) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > batch.MaxRecordsLimit {
		return record.NewConfigError("batch-size", "must be between 1 and 1000")
	}
	if c.MaxBatchBytes < 1 || c.MaxBatchBytes > batch.MaxBytesLimit {
		return record.NewConfigError("max-batch-bytes", "must be between 1 and 1048576")
	}
	if c.BatchTimeout < 0 {
		return record.NewConfigError("batch-timeout", "must not be negative")
	}
	if c.BufferSize < 1 {
		return record.NewConfigError("buffer-size", "must be at least 1")
	}
	if c.ShutdownGrace < 0 {
		return record.NewConfigError("shutdown-grace", "must not be negative")
	}
	return nil
}

// item is a queued record and its handle.
type item struct {
	rec    record.Record
	handle *record.Handle
}

// Sender collects submitted records into batches and sends them pipelined.
type Sender struct {
	cfg        SenderConfig
	dispatcher *Dispatcher
	logger     log.Logger

	queue  chan item
	runCtx context.Context
	cancel context.CancelFunc

	// inputMu guards closing the queue against concurrent Submit sends.
	// closing is closed first so that Submits blocked on a full queue
	// release their read lock.
	inputMu sync.RWMutex
	closed  bool
	closing chan struct{}

	pendingMu sync.Mutex
	pending   map[*record.Handle]struct{}

	loopDone chan struct{}
	stopOnce sync.Once
}

// NewSender creates a pipelined sender and starts its collection loop.
func NewSender(transport sender.Transport, cfg SenderConfig, opts ...Option) (*Sender, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := NewDispatcher(transport, DispatcherConfig{
		MaxInflight:    cfg.MaxConcurrentBatches,
		RequestTimeout: cfg.RequestTimeout,
		Retry:          cfg.Retry,
	}, opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sender{
		cfg:        cfg,
		dispatcher: d,
		logger:     applyOptions(opts).logger,
		queue:      make(chan item, cfg.BufferSize),
		runCtx:     ctx,
		cancel:     cancel,
		closing:    make(chan struct{}),
		pending:    make(map[*record.Handle]struct{}),
		loopDone:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Submit queues a record. It blocks while the queue is full.
// Oversized records and submissions after Flush or Shutdown are rejected.
func (s *Sender) Submit(ctx context.Context, rec record.Record) (*record.Handle, error) {
	if size := rec.MeteredBytes(); size > s.cfg.MaxBatchBytes {
		return nil, record.TooLarge(size, s.cfg.MaxBatchBytes)
	}

	s.inputMu.RLock()
	defer s.inputMu.RUnlock()

	if s.closed {
		return nil, record.ErrClosed
	}

	h := record.NewHandle()
	s.track(h)

	select {
	case s.queue <- item{rec: rec, handle: h}:
		return h, nil
	case <-ctx.Done():
		s.untrack(h)
		return nil, ctx.Err()
	case <-s.runCtx.Done():
		s.untrack(h)
		return nil, record.ErrClosed
	case <-s.closing:
		s.untrack(h)
		return nil, record.ErrClosed
	}
}

// Flush stops accepting records and waits until everything queued has
// been sent and every handle resolved, or ctx is done.
func (s *Sender) Flush(ctx context.Context) error {
	s.closeInput()

	select {
	case <-s.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.dispatcher.Wait(ctx)
}

// Shutdown stops accepting records, aborts collection and in-flight
// sends, and waits up to ShutdownGrace (or until ctx is done) for them to
// wind down. Every handle still unresolved afterwards fails with
// record.ErrCanceled.
func (s *Sender) Shutdown(ctx context.Context) error {
	s.cancel()
	s.closeInput()

	graceCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer cancel()

	var err error
	select {
	case <-s.loopDone:
		err = s.dispatcher.Wait(graceCtx)
	case <-graceCtx.Done():
		err = graceCtx.Err()
	}

	s.cancelPending()
	if err != nil {
		s.logger.Warn("shutdown grace expired", log.Err(err))
	}
	return err
}

// Inflight returns the number of batches currently being sent.
func (s *Sender) Inflight() int {
	return s.dispatcher.Inflight()
}

// Pending returns the number of unresolved handles.
func (s *Sender) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

func (s *Sender) closeInput() {
	s.stopOnce.Do(func() {
		close(s.closing)
		s.inputMu.Lock()
		s.closed = true
		close(s.queue)
		s.inputMu.Unlock()
	})
}

func (s *Sender) track(h *record.Handle) {
	s.pendingMu.Lock()
	s.pending[h] = struct{}{}
	s.pendingMu.Unlock()
}

func (s *Sender) untrack(h *record.Handle) {
	s.pendingMu.Lock()
	delete(s.pending, h)
	s.pendingMu.Unlock()
}

func (s *Sender) cancelPending() {
	s.pendingMu.Lock()
	handles := make([]*record.Handle, 0, len(s.pending))
	for h := range s.pending {
		handles = append(handles, h)
	}
	s.pending = make(map[*record.Handle]struct{})
	s.pendingMu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

// run collects batches from the queue until it is closed and drained or
// the sender is shut down.
func (s *Sender) run() {
	defer close(s.loopDone)

	var carry *item
	for {
		if s.runCtx.Err() != nil {
			return
		}

		var first item
		if carry != nil {
			first, carry = *carry, nil
		} else {
			select {
			case it, ok := <-s.queue:
				if !ok {
					return
				}
				first = it
			case <-s.runCtx.Done():
				return
			}
		}

		items := []item{first}
		bytes := first.rec.MeteredBytes()
		inputClosed := false

		timer := time.NewTimer(s.cfg.BatchTimeout)
	collect:
		for len(items) < s.cfg.BatchSize && bytes < s.cfg.MaxBatchBytes {
			select {
			case it, ok := <-s.queue:
				if !ok {
					inputClosed = true
					break collect
				}
				size := it.rec.MeteredBytes()
				if bytes+size > s.cfg.MaxBatchBytes {
					carry = &it
					break collect
				}
				items = append(items, it)
				bytes += size
			case <-timer.C:
				break collect
			case <-s.runCtx.Done():
				timer.Stop()
				s.fail(items, record.ErrCanceled)
				return
			}
		}
		timer.Stop()

		s.dispatch(items, bytes)
		if inputClosed {
			return
		}
	}
}

func (s *Sender) dispatch(items []item, bytes int) {
	b := &record.Batch{
		Records:      make([]record.Record, len(items)),
		FencingToken: s.cfg.FencingToken,
		MeteredBytes: bytes,
	}
	for i, it := range items {
		b.Records[i] = it.rec
	}

	err := s.dispatcher.Dispatch(s.runCtx, b, func(ack *record.AppendAck, err error) {
		if err != nil {
			if s.runCtx.Err() != nil && errors.Is(err, context.Canceled) {
				err = record.ErrCanceled
			}
			s.fail(items, err)
			return
		}
		for i, it := range items {
			it.handle.Resolve(record.AckFor(ack, i, it.rec))
			s.untrack(it.handle)
		}
	})
	if err != nil {
		s.fail(items, record.ErrCanceled)
	}
}

func (s *Sender) fail(items []item, err error) {
	for _, it := range items {
		it.handle.Fail(err)
		s.untrack(it.handle)
	}
}

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
	"github.com/bft-labs/appendship/pkg/sender"
)

// DefaultMaxInflight is the default number of concurrently sent batches.
const DefaultMaxInflight = 4

// DispatcherConfig holds dispatcher settings.
type DispatcherConfig struct {
	// MaxInflight bounds the number of batches being sent at once.
	MaxInflight int

	// RequestTimeout bounds each attempt. Zero means no per-attempt timeout.
	RequestTimeout time.Duration

	// Retry configures the retrying executor.
	Retry retry.Config
}

// SetDefaults fills zero values with defaults.
func (c *DispatcherConfig) SetDefaults() {
	if c.MaxInflight == 0 {
		c.MaxInflight = DefaultMaxInflight
	}
	c.Retry.SetDefaults()
}

// Validate checks the configuration for errors.
func (c DispatcherConfig) Validate() error {
	if c.MaxInflight < 1 {
		return record.NewConfigError("max-inflight-batches", "must be at least 1")
	}
	if c.RequestTimeout < 0 {
		return record.NewConfigError("request-timeout", "must not be negative")
	}
	return c.Retry.Validate()
}

// DoneFunc receives the outcome of a dispatched batch.
// Exactly one of ack and err is non-nil.
type DoneFunc func(ack *record.AppendAck, err error)

// Dispatcher sends batches concurrently up to a permit limit.
type Dispatcher struct {
	transport sender.Transport
	executor  *retry.Executor
	permits   *semaphore.Weighted
	cfg       DispatcherConfig
	emitter   EventEmitter
	logger    log.Logger

	wg       sync.WaitGroup
	inflight atomic.Int64
}

// NewDispatcher creates a dispatcher for the given transport.
func NewDispatcher(transport sender.Transport, cfg DispatcherConfig, opts ...Option) (*Dispatcher, error) {
	if transport == nil {
		return nil, record.NewConfigError("transport", "is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	executor, err := retry.NewExecutor(cfg.Retry,
		retry.WithLogger(o.logger),
		retry.WithRetryHook(o.retryHook),
	)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		transport: transport,
		executor:  executor,
		permits:   semaphore.NewWeighted(int64(cfg.MaxInflight)),
		cfg:       cfg,
		emitter:   o.emitter,
		logger:    o.logger,
	}, nil
}

// Dispatch acquires a permit and sends b on a new goroutine.
// It blocks while all permits are taken. If ctx ends first, the batch is
// not sent, done is not called, and the context error is returned.
// ctx also governs the send itself.
func (d *Dispatcher) Dispatch(ctx context.Context, b *record.Batch, done DoneFunc) error {
	if err := d.permits.Acquire(ctx, 1); err != nil {
		return err
	}

	d.wg.Add(1)
	d.inflight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.permits.Release(1)
		defer d.inflight.Add(-1)

		start := time.Now()
		ack, err := d.send(ctx, b)
		duration := time.Since(start)

		done(ack, err)

		if err != nil {
			d.logger.Error("batch failed",
				log.Err(err),
				log.Int("records", b.Size()),
				log.Duration("duration", duration),
			)
			if d.emitter != nil {
				d.emitter.OnBatchFailed(err, b.Size(), duration)
			}
			return
		}

		d.logger.Debug("batch acked",
			log.Int("records", b.Size()),
			log.Int("bytes", b.MeteredBytes),
			log.Uint64("start_seq_num", ack.Start.SeqNum),
			log.Duration("duration", duration),
		)
		if d.emitter != nil {
			d.emitter.OnBatchAcked(b.Size(), b.MeteredBytes, ack, duration)
		}
	}()
	return nil
}

func (d *Dispatcher) send(ctx context.Context, b *record.Batch) (*record.AppendAck, error) {
	var ack *record.AppendAck
	err := d.executor.DoAppend(ctx, func(ctx context.Context) error {
		if d.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.cfg.RequestTimeout)
			defer cancel()
		}
		var err error
		ack, err = d.transport.Append(ctx, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ack == nil {
		return nil, fmt.Errorf("%w: transport returned no ack", record.ErrInvariant)
	}
	if ack.Count() != uint64(b.Size()) {
		return nil, fmt.Errorf("%w: ack covers %d records, batch has %d",
			record.ErrInvariant, ack.Count(), b.Size())
	}
	return ack, nil
}

// Wait blocks until every dispatched batch has completed or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inflight returns the number of batches currently being sent.
func (d *Dispatcher) Inflight() int {
	return int(d.inflight.Load())
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() DispatcherConfig {
	return d.cfg
}

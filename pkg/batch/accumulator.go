package batch

import (
	"sync"
	"time"

	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/record"
)

// Accumulator groups submitted records into batches.
// All batch state, including linger expiry, is guarded by one mutex.
type Accumulator struct {
	cfg    Config
	logger log.Logger

	mu        sync.Mutex
	records   []record.Record
	bytes     int
	timer     *time.Timer
	gen       uint64
	nextMatch *uint64
	closed    bool
	out       chan *record.Batch
}

// NewAccumulator creates an accumulator. Zero limits take defaults.
func NewAccumulator(cfg Config, logger log.Logger) (*Accumulator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Accumulator{
		cfg:    cfg,
		logger: log.OrNoop(logger),
		out:    make(chan *record.Batch, cfg.BufferBatches),
	}
	if cfg.MatchSeqNum != nil {
		seq := *cfg.MatchSeqNum
		a.nextMatch = &seq
	}
	return a, nil
}

// Batches returns the channel of emitted batches.
// It is closed by Complete after the final batch.
func (a *Accumulator) Batches() <-chan *record.Batch {
	return a.out
}

// Config returns the accumulator configuration.
func (a *Accumulator) Config() Config {
	return a.cfg
}

// Submit adds a record to the open batch, flushing as limits require.
// A record larger than MaxBytes is rejected without touching any batch.
// Submit blocks while the emitted-batch channel is full.
func (a *Accumulator) Submit(r record.Record) error {
	size := r.MeteredBytes()
	if size > a.cfg.MaxBytes {
		return record.TooLarge(size, a.cfg.MaxBytes)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return record.ErrClosed
	}

	if len(a.records)+1 > a.cfg.MaxRecords || a.bytes+size > a.cfg.MaxBytes {
		a.flushLocked()
	}
	if len(a.records) == 0 && a.cfg.Linger > 0 {
		a.armLocked()
	}

	a.records = append(a.records, r)
	a.bytes += size

	if len(a.records) >= a.cfg.MaxRecords || a.bytes >= a.cfg.MaxBytes {
		a.flushLocked()
	}
	return nil
}

// Flush emits the open batch, if any.
func (a *Accumulator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.flushLocked()
}

// Complete flushes the open batch and closes the batch channel.
// It is safe to call more than once.
func (a *Accumulator) Complete() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.flushLocked()
	a.closed = true
	close(a.out)
}

// Pending returns the number of records in the open batch.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// armLocked starts a linger timer for a new open batch.
func (a *Accumulator) armLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.cfg.Linger, func() {
		a.lingerExpired(gen)
	})
}

// lingerExpired flushes the batch the timer was armed for.
// Timers that lost a race with a size-triggered flush see a newer generation.
func (a *Accumulator) lingerExpired(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || gen != a.gen {
		return
	}
	a.logger.Debug("linger expired", log.Int("records", len(a.records)))
	a.flushLocked()
}

func (a *Accumulator) flushLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++

	if len(a.records) == 0 {
		return
	}

	b := &record.Batch{
		Records:      a.records,
		FencingToken: a.cfg.FencingToken,
		MeteredBytes: a.bytes,
	}
	if a.nextMatch != nil {
		seq := *a.nextMatch
		b.MatchSeqNum = &seq
		*a.nextMatch += uint64(len(a.records))
	}

	a.records = make([]record.Record, 0, len(b.Records))
	a.bytes = 0

	a.out <- b
}

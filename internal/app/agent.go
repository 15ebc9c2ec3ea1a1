// Package app runs the file-fed append agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/bft-labs/appendship/internal/source"
	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/metrics"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/state"
)

// Defaults for the agent loop.
const (
	DefaultCheckpointInterval = time.Second
	DefaultMaxPending         = 10000
	DefaultCloseTimeout       = 30 * time.Second
)

// Producer is the part of producer.Producer the agent uses.
type Producer interface {
	Submit(rec record.Record) (*record.Handle, error)
	Flush()
	Close(ctx context.Context) error
}

// Opener opens the input at a byte offset.
type Opener func(ctx context.Context, offset int64) (source.Source, error)

// AgentConfig contains configuration for the agent loop.
type AgentConfig struct {
	// Input names the source; it keys the checkpoint.
	Input string

	// Once stops at the end of a finite input instead of waiting.
	Once bool

	// RecordsPerSecond throttles submission. Zero disables throttling.
	RecordsPerSecond float64
	Burst            int

	// Headers are attached to every record.
	Headers []record.Header

	// CheckpointInterval bounds how often the checkpoint is written.
	CheckpointInterval time.Duration

	// MaxPending bounds the records awaiting acknowledgment.
	MaxPending int

	// CloseTimeout bounds the final producer flush on shutdown.
	CloseTimeout time.Duration
}

// SetDefaults fills zero values with defaults.
func (c *AgentConfig) SetDefaults() {
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.MaxPending == 0 {
		c.MaxPending = DefaultMaxPending
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.RecordsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = int(c.RecordsPerSecond)
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
}

// pending is a submitted line awaiting its outcome.
// A nil handle marks a skipped line that only advances the offset.
type pending struct {
	handle *record.Handle
	end    int64
}

// Agent reads lines from a source and appends them through a producer,
// checkpointing the offset of the last contiguously acknowledged line.
type Agent struct {
	config    AgentConfig
	open      Opener
	producer  Producer
	stateRepo state.Repository
	logger    log.Logger
	metrics   *metrics.AgentMetrics
	limiter   *rate.Limiter
}

// NewAgent creates a new agent with the given dependencies.
// agentMetrics may be nil.
func NewAgent(
	config AgentConfig,
	open Opener,
	producer Producer,
	stateRepo state.Repository,
	logger log.Logger,
	agentMetrics *metrics.AgentMetrics,
) *Agent {
	config.SetDefaults()
	a := &Agent{
		config:    config,
		open:      open,
		producer:  producer,
		stateRepo: stateRepo,
		logger:    log.OrNoop(logger),
		metrics:   agentMetrics,
	}
	if config.RecordsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(config.RecordsPerSecond), config.Burst)
	}
	return a
}

// Run executes the agent loop until the input ends (Once), ctx is
// canceled, or a record fails. The producer is closed before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	st, err := a.stateRepo.Load(ctx)
	if err != nil {
		a.logger.Error("failed to load checkpoint", log.Err(err))
		st = state.State{}
	}
	offset := st.ResumeOffset(a.config.Input)
	if offset > 0 {
		a.logger.Info("resuming from checkpoint",
			log.String("input", a.config.Input),
			log.Int64("offset", offset),
			log.Uint64("seq_num", st.SeqNum),
		)
	}

	src, err := a.open(ctx, offset)
	if err != nil {
		a.closeProducer()
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan pending, a.config.MaxPending)
	committed := make(chan error, 1)
	go func() {
		committed <- a.commit(cancel, queue, st)
	}()

	readErr := a.read(runCtx, src, queue)
	close(queue)

	closeErr := a.closeProducer()
	commitErr := <-committed

	switch {
	case commitErr != nil:
		return commitErr
	case readErr != nil && !errors.Is(readErr, context.Canceled):
		return readErr
	case closeErr != nil:
		return closeErr
	}
	return ctx.Err()
}

// read submits lines until the input ends or ctx is done.
func (a *Agent) read(ctx context.Context, src source.Source, queue chan<- pending) error {
	for {
		line, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.logger.Info("input exhausted", log.String("input", src.Name()))
				a.producer.Flush()
				return nil
			}
			return err
		}
		if a.metrics != nil {
			a.metrics.LinesRead.Inc()
		}

		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		rec := record.Record{Body: line.Data, Headers: a.config.Headers}
		h, err := a.producer.Submit(rec)
		if err != nil {
			if !errors.Is(err, record.ErrRecordTooLarge) {
				return err
			}
			a.logger.Warn("skipping oversized line",
				log.Int64("offset", line.End),
				log.Int("bytes", len(line.Data)),
			)
			if a.metrics != nil {
				a.metrics.LinesSkipped.Inc()
			}
			h = nil
		}

		select {
		case queue <- pending{handle: h, end: line.End}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// commit awaits outcomes in submission order and advances the checkpoint.
// On the first failed record it stops advancing, cancels the reader and
// keeps draining so the reader never blocks.
func (a *Agent) commit(cancel context.CancelFunc, queue <-chan pending, st state.State) error {
	var (
		failure  error
		dirty    bool
		lastSave = time.Now()
	)

	for p := range queue {
		if failure != nil {
			continue
		}

		seqNum := st.SeqNum
		if p.handle != nil {
			// Close resolves every handle, so this wait always returns.
			ack, err := p.handle.Wait(context.Background())
			if err != nil {
				failure = fmt.Errorf("append failed at offset %d: %w", p.end, err)
				a.logger.Error("record failed, stopping", log.Err(err), log.Int64("offset", p.end))
				cancel()
				continue
			}
			seqNum = ack.SeqNum
		}

		st.Advance(a.config.Input, p.end, seqNum)
		dirty = true

		if len(queue) == 0 || time.Since(lastSave) >= a.config.CheckpointInterval {
			a.save(st)
			dirty = false
			lastSave = time.Now()
		}
	}

	if dirty {
		a.save(st)
	}
	return failure
}

func (a *Agent) save(st state.State) {
	// Checkpoints are written even while shutting down.
	if err := a.stateRepo.Save(context.Background(), st); err != nil {
		a.logger.Error("failed to save checkpoint", log.Err(err))
		return
	}
	if a.metrics != nil {
		a.metrics.CheckpointOffset.Set(float64(st.Offset))
		a.metrics.CheckpointSeqNum.Set(float64(st.SeqNum))
	}
}

func (a *Agent) closeProducer() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.CloseTimeout)
	defer cancel()
	if err := a.producer.Close(ctx); err != nil {
		a.logger.Warn("producer closed with error", log.Err(err))
		return err
	}
	return nil
}

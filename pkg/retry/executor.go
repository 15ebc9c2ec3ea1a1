package retry

import (
	"context"
	"time"

	"github.com/bft-labs/appendship/pkg/log"
)

// Op is a single attempt of a retried operation.
type Op func(ctx context.Context) error

// RetryHook observes each scheduled retry.
type RetryHook func(attempt int, err error, delay time.Duration)

// Executor runs operations with bounded retries.
// It is safe for concurrent use; every call has its own backoff state.
type Executor struct {
	cfg     Config
	logger  log.Logger
	onRetry RetryHook
	rand    func() float64
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for retry messages.
func WithLogger(logger log.Logger) Option {
	return func(e *Executor) {
		e.logger = log.OrNoop(logger)
	}
}

// WithRetryHook registers a callback invoked before every retry wait.
func WithRetryHook(hook RetryHook) Option {
	return func(e *Executor) {
		e.onRetry = hook
	}
}

// NewExecutor creates an Executor. Zero config values take defaults.
func NewExecutor(cfg Config, opts ...Option) (*Executor, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		cfg:    cfg,
		logger: log.NewNoopLogger(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Do runs op, retrying retryable failures.
// The last error is returned unchanged.
func (e *Executor) Do(ctx context.Context, op Op) error {
	return e.run(ctx, false, op)
}

// DoAppend runs an append op. Under RetryNoSideEffects, failures that are
// not known to be side-effect free are returned without retrying.
func (e *Executor) DoAppend(ctx context.Context, op Op) error {
	return e.run(ctx, true, op)
}

func (e *Executor) run(ctx context.Context, isAppend bool, op Op) error {
	b := NewBackoff(e.cfg.MinDelay, e.cfg.MaxDelay)
	if e.rand != nil {
		b.rand = e.rand
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.cfg.MaxAttempts || !e.shouldRetry(ctx, isAppend, err) {
			return err
		}

		delay := b.Next()
		e.logger.Warn("retrying request",
			log.Int("attempt", attempt),
			log.Int("max_attempts", e.cfg.MaxAttempts),
			log.Duration("delay", delay),
			log.Err(err),
		)
		if e.onRetry != nil {
			e.onRetry(attempt, err, delay)
		}
		if e.sleep(ctx, delay) != nil {
			return err
		}
	}
}

func (e *Executor) shouldRetry(ctx context.Context, isAppend bool, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if !IsRetryable(err) {
		return false
	}
	if isAppend && e.cfg.AppendRetryPolicy == RetryNoSideEffects {
		return IsSideEffectFree(err)
	}
	return true
}

package pipeline

import (
	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/retry"
)

// Option configures a Dispatcher or Sender.
type Option func(*options)

type options struct {
	logger    log.Logger
	emitter   EventEmitter
	retryHook retry.RetryHook
}

func defaultOptions() *options {
	return &options{
		logger: log.NewNoopLogger(),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.OrNoop(logger)
	}
}

// WithEmitter registers a batch outcome observer.
func WithEmitter(emitter EventEmitter) Option {
	return func(o *options) {
		o.emitter = emitter
	}
}

// WithRetryHook registers a callback invoked before every retry wait.
func WithRetryHook(hook retry.RetryHook) Option {
	return func(o *options) {
		o.retryHook = hook
	}
}

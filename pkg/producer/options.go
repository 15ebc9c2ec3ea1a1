package producer

import (
	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/pipeline"
	"github.com/bft-labs/appendship/pkg/retry"
)

// Option configures a Producer.
type Option func(*options)

type options struct {
	logger   log.Logger
	pipeline []pipeline.Option
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.OrNoop(logger)
	}
}

// WithEmitter registers a batch outcome observer.
func WithEmitter(emitter pipeline.EventEmitter) Option {
	return func(o *options) {
		o.pipeline = append(o.pipeline, pipeline.WithEmitter(emitter))
	}
}

// WithRetryHook registers a callback invoked before every retry wait.
func WithRetryHook(hook retry.RetryHook) Option {
	return func(o *options) {
		o.pipeline = append(o.pipeline, pipeline.WithRetryHook(hook))
	}
}

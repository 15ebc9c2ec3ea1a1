// Package pipeline sends batches with bounded concurrency.
//
// A [Dispatcher] holds a fixed pool of permits. Each dispatched batch takes
// a permit, is sent on its own goroutine through a retrying executor, and
// releases the permit when its outcome has been delivered. Batches may
// complete out of order; a failure only affects the batch that failed.
//
// A [Sender] is a self-contained pipelined sender: records are queued,
// collected into batches by count, bytes and timeout, and handed to a
// Dispatcher while the next batch is being collected.
//
// # Usage
//
//	s, err := pipeline.NewSender(transport, pipeline.DefaultSenderConfig(),
//	    pipeline.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	h, err := s.Submit(ctx, rec)
//	...
//	if err := s.Flush(ctx); err != nil {
//	    return err
//	}
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package pipeline

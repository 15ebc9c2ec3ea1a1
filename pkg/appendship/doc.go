// Package appendship provides an embeddable agent that ships newline-delimited
// records to a stream.
//
// Each line of the input becomes one record. Records are grouped into batches,
// sent with bounded pipelining, and the byte offset just past the last
// contiguously acknowledged line is checkpointed so a restart resumes there.
//
// # Basic Usage
//
//	cfg := appendship.DefaultConfig()
//	cfg.BaseURL = "https://my-basin.b.aws.s2.dev"
//	cfg.Stream = "events"
//	cfg.AuthToken = token
//	cfg.Input = "/var/log/app/events.jsonl"
//
//	agent, err := appendship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := agent.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	if err := agent.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// Without Once the input file is followed as it grows. With Once the agent
// stops at the end of the input and [Appendship.Done] is closed.
//
// # Event Handling
//
// Implement [EventHandler] (embedding [BaseEventHandler] for defaults) and
// pass it via [WithEventHandler] to observe state changes and batch outcomes.
//
// # Dependency Injection
//
//	agent, err := appendship.New(cfg,
//	    appendship.WithTransport(sender.NewMemoryTransport()),
//	    appendship.WithLogger(customLogger),
//	    appendship.WithMetrics(metrics.NewRegistry(metrics.DefaultConfig())),
//	)
//
// # Lifecycle States
//
// An instance is in one of [StateStopped], [StateStarting], [StateRunning],
// [StateStopping] or [StateCrashed]. Use [Appendship.Status] to query it.
package appendship

// Package lifecycle tracks the run state of an embedded append agent.
//
// A Manager owns one State at a time and moves between them only along
// the edges below. Every accepted move is reported to the EventEmitter and
// logged; a rejected move returns ErrAlreadyRunning or ErrNotRunning so a
// facade can surface the same errors for Start and Stop.
//
//	Stopped  -> Starting
//	Starting -> Running | Stopping | Crashed
//	Running  -> Stopping | Crashed
//	Stopping -> Stopped | Crashed
//	Crashed  -> Starting
//
// The manager also keeps the cancel function of the running agent and a
// wait group of its goroutines, so that Stop can cancel and then bound the
// drain with WaitWithTimeout:
//
//	m := lifecycle.NewManager(logger, emitter)
//	_ = m.TransitionTo(lifecycle.StateStarting, "start requested")
//	m.SetCancel(cancel)
//	m.Go(func() { runAgent(ctx) })
//	...
//	m.Cancel()
//	if err := m.WaitWithTimeout(grace); errors.Is(err, lifecycle.ErrShutdownTimeout) {
//	    // records still in flight were abandoned
//	}
//
// See version.go for version constants.
package lifecycle

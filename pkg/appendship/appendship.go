package appendship

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"

	"github.com/bft-labs/appendship/internal/app"
	"github.com/bft-labs/appendship/internal/source"
	"github.com/bft-labs/appendship/pkg/batch"
	"github.com/bft-labs/appendship/pkg/lifecycle"
	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/metrics"
	"github.com/bft-labs/appendship/pkg/pipeline"
	"github.com/bft-labs/appendship/pkg/producer"
	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/retry"
	"github.com/bft-labs/appendship/pkg/sender"
	"github.com/bft-labs/appendship/pkg/state"
)

// Lifecycle errors.
var (
	ErrAlreadyRunning  = lifecycle.ErrAlreadyRunning
	ErrNotRunning      = lifecycle.ErrNotRunning
	ErrShutdownTimeout = lifecycle.ErrShutdownTimeout
)

// Appendship ships the lines of an input to a stream.
// Use New() to create an instance, then Start() to begin shipping.
type Appendship struct {
	config    Config
	opts      options
	lifecycle *lifecycle.DefaultManager
	emitter   *eventEmitterWrapper
	transport sender.Transport
	ownsTrans bool
	stateRepo state.Repository
	logger    log.Logger

	mu       sync.RWMutex
	cancel   context.CancelFunc
	producer *producer.Producer
	done     chan struct{}
	err      error
}

// New creates a new Appendship instance with the given configuration.
// The instance is created in StateStopped; call Start() to begin shipping.
func New(cfg Config, opts ...Option) (*Appendship, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.OrNoop(o.logger)

	a := &Appendship{
		config:  cfg,
		opts:    o,
		emitter: &eventEmitterWrapper{handler: o.eventHandler},
		logger:  logger,
	}
	a.lifecycle = lifecycle.NewManager(logger, a.emitter)

	if o.transport != nil {
		a.transport = o.transport
	} else {
		client := o.httpClient
		if client == nil {
			client = &http.Client{Timeout: cfg.HTTPTimeout}
		}
		compression, _ := sender.ParseCompression(cfg.Compression)
		t, err := sender.NewHTTPTransport(client, sender.Config{
			BaseURL:     cfg.BaseURL,
			Stream:      cfg.Stream,
			AuthToken:   cfg.AuthToken,
			Compression: compression,
			UserAgent:   userAgent(),
		}, logger)
		if err != nil {
			return nil, err
		}
		a.transport = t
		a.ownsTrans = true
	}

	if cfg.Input == StdinInput {
		a.stateRepo = state.NewMemoryRepository()
	} else {
		a.stateRepo = state.NewFileRepository(cfg.StateDir)
	}

	return a, nil
}

// Start begins shipping in the background.
// Returns immediately after starting the agent goroutine.
// The provided context bounds the lifetime of the agent.
func (a *Appendship) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := a.lifecycle.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		return err
	}

	p, err := producer.New(a.transport, a.config.producerConfig(), a.producerOptions()...)
	if err != nil {
		_ = a.lifecycle.TransitionTo(lifecycle.StateCrashed, "producer: "+err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		Input:    a.config.Input,
		StateDir: a.config.StateDir,
		BaseURL:  a.config.BaseURL,
		Stream:   a.config.Stream,
		Logger:   a.logger,
	}
	for i, pl := range a.opts.plugins {
		if err := pl.Initialize(runCtx, pluginCfg); err != nil {
			a.logger.Error("plugin initialization failed",
				log.String("plugin", pl.Name()),
				log.Err(err))
			cancel()
			a.shutdownPlugins(a.opts.plugins[:i])
			_ = p.Abort()
			_ = a.lifecycle.TransitionTo(lifecycle.StateCrashed, "plugin init failed: "+pl.Name())
			return fmt.Errorf("plugin %s: %w", pl.Name(), err)
		}
		a.logger.Info("plugin initialized", log.String("plugin", pl.Name()))
	}

	var agentMetrics *metrics.AgentMetrics
	if a.opts.metrics != nil {
		agentMetrics = a.opts.metrics.Agent
	}
	agent := app.NewAgent(app.AgentConfig{
		Input:              a.config.Input,
		Once:               a.config.Once,
		RecordsPerSecond:   a.config.RecordsPerSecond,
		Burst:              a.config.Burst,
		Headers:            a.config.Headers,
		CheckpointInterval: a.config.CheckpointInterval,
		CloseTimeout:       a.config.ShutdownGrace,
	}, a.opener(), p, a.stateRepo, a.logger, agentMetrics)

	done := make(chan struct{})
	a.cancel = cancel
	a.producer = p
	a.done = done
	a.err = nil

	a.lifecycle.Go(func() {
		defer close(done)
		defer cancel()

		if err := a.lifecycle.TransitionTo(lifecycle.StateRunning, "agent starting"); err != nil {
			a.logger.Error("failed to transition to running", log.Err(err))
			_ = p.Abort()
			a.shutdownPlugins(a.opts.plugins)
			return
		}

		err := agent.Run(runCtx)
		a.shutdownPlugins(a.opts.plugins)
		a.finish(err)
	})

	return nil
}

// finish records the agent result and settles the lifecycle state.
// A Stop in progress owns the final transition.
func (a *Appendship) finish(err error) {
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("agent error", log.Err(err))
		_ = a.lifecycle.TransitionTo(lifecycle.StateCrashed, err.Error())
		return
	}
	if a.lifecycle.TransitionTo(lifecycle.StateStopping, "input exhausted") == nil {
		_ = a.lifecycle.TransitionTo(lifecycle.StateStopped, "input exhausted")
	}
}

// Stop gracefully shuts down the agent.
// Submitted records are flushed and the checkpoint is persisted.
// Returns ErrShutdownTimeout if outstanding work does not finish in time.
func (a *Appendship) Stop() error {
	a.mu.Lock()
	if !a.lifecycle.CanStop() {
		a.mu.Unlock()
		return ErrNotRunning
	}
	if err := a.lifecycle.TransitionTo(lifecycle.StateStopping, "Stop() called"); err != nil {
		a.mu.Unlock()
		return err
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	// The producer gets ShutdownGrace to drain, plus slack for the close itself.
	err := a.lifecycle.WaitWithTimeout(a.config.ShutdownGrace + lifecycle.ShutdownTimeout)
	if err != nil {
		_ = a.lifecycle.TransitionTo(lifecycle.StateCrashed, "shutdown timeout")
		return err
	}
	if a.lifecycle.State() == lifecycle.StateStopping {
		_ = a.lifecycle.TransitionTo(lifecycle.StateStopped, "graceful shutdown")
	}
	return nil
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (a *Appendship) Status() State {
	return a.lifecycle.State()
}

// Done is closed when the current run's agent loop has returned.
// It is nil before the first Start.
func (a *Appendship) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Err returns the error that ended the last run, if any.
func (a *Appendship) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Stats returns counters of the current or last run.
func (a *Appendship) Stats() producer.Stats {
	a.mu.RLock()
	p := a.producer
	a.mu.RUnlock()
	if p == nil {
		return producer.Stats{}
	}
	return p.Stats()
}

// Close releases the transport created by New. The instance must be stopped.
func (a *Appendship) Close() error {
	if s := a.Status(); s == StateStarting || s == StateRunning || s == StateStopping {
		return ErrAlreadyRunning
	}
	if c, ok := a.transport.(io.Closer); ok && a.ownsTrans {
		return c.Close()
	}
	return nil
}

func (a *Appendship) producerOptions() []producer.Option {
	opts := []producer.Option{producer.WithLogger(a.logger)}
	emitters := pipeline.MultiEmitter{a.emitter}
	if reg := a.opts.metrics; reg != nil {
		emitters = append(emitters, reg.Pipeline)
		opts = append(opts, producer.WithRetryHook(reg.Pipeline.OnRetry))
	}
	return append(opts, producer.WithEmitter(emitters))
}

func (a *Appendship) opener() app.Opener {
	cfg := a.config
	return func(ctx context.Context, offset int64) (source.Source, error) {
		switch {
		case cfg.Input == StdinInput:
			r := a.opts.stdin
			if r == nil {
				r = os.Stdin
			}
			return source.NewReader(r, "stdin"), nil
		case cfg.Once:
			rd, err := source.OpenFile(cfg.Input, offset)
			if err != nil {
				return nil, err
			}
			return rd, nil
		default:
			f, err := source.NewFollower(cfg.Input, offset, cfg.PollInterval, a.logger)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	}
}

// shutdownPlugins shuts plugins down in reverse order.
func (a *Appendship) shutdownPlugins(plugins []Plugin) {
	ctx := context.Background()
	for i := len(plugins) - 1; i >= 0; i-- {
		pl := plugins[i]
		if err := pl.Shutdown(ctx); err != nil {
			a.logger.Error("plugin shutdown failed",
				log.String("plugin", pl.Name()),
				log.Err(err))
			continue
		}
		a.logger.Info("plugin shutdown complete", log.String("plugin", pl.Name()))
	}
}

func userAgent() string {
	return fmt.Sprintf("appendship/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// validateModuleVersions checks that all module versions are compatible.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"record":    {record.Version, record.MinCompatibleVersion},
		"batch":     {batch.Version, batch.MinCompatibleVersion},
		"retry":     {retry.Version, retry.MinCompatibleVersion},
		"sender":    {sender.Version, sender.MinCompatibleVersion},
		"pipeline":  {pipeline.Version, pipeline.MinCompatibleVersion},
		"producer":  {producer.Version, producer.MinCompatibleVersion},
		"state":     {state.Version, state.MinCompatibleVersion},
		"log":       {log.Version, log.MinCompatibleVersion},
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"metrics":   {metrics.Version, metrics.MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible reports whether version >= minVersion.
// Versions are "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}

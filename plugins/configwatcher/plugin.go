// Package configwatcher provides config file monitoring for appendship.
// When enabled, it watches the agent's config files and calls a callback
// once they settle after a change, so the caller can reload.
package configwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/appendship/pkg/appendship"
	"github.com/bft-labs/appendship/pkg/log"
)

// Plugin implements config watching functionality.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	paths         []string
	debounceDelay time.Duration
	onChange      func(path string)

	// Runtime state
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	changed  string
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Paths are the files to watch. Empty paths are ignored.
	Paths []string

	// DebounceDelay is the delay to wait after a file change before
	// calling OnChange. Default: 100 milliseconds
	DebounceDelay time.Duration

	// OnChange is called with the last changed path.
	OnChange func(path string)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}

	var paths []string
	for _, p := range cfg.Paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		paths = append(paths, p)
	}

	return &Plugin{
		paths:         paths,
		debounceDelay: cfg.DebounceDelay,
		onChange:      cfg.OnChange,
		logger:        log.NewNoopLogger(),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the configured files.
func (p *Plugin) Initialize(ctx context.Context, cfg appendship.PluginConfig) error {
	p.mu.Lock()
	p.logger = log.OrNoop(cfg.Logger)
	p.mu.Unlock()

	if len(p.paths) == 0 || p.onChange == nil {
		p.logger.Warn("config watcher disabled: nothing to watch")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch directories so editors that replace files are still observed.
	dirs := map[string]bool{}
	for _, path := range p.paths {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
		dirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	p.logger.Info("config watcher plugin initialized", log.Int("files", len(p.paths)))
	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// watchLoop watches for config file changes.
func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !p.watched(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceChange(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) watched(name string) bool {
	if abs, err := filepath.Abs(name); err == nil {
		name = abs
	}
	for _, path := range p.paths {
		if path == name {
			return true
		}
	}
	return false
}

func (p *Plugin) debounceChange(ctx context.Context, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.changed = path
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		changed := p.changed
		p.mu.Unlock()

		p.logger.Info("config file changed", log.String("path", changed))
		p.onChange(changed)
	})
}

// Ensure Plugin implements appendship.Plugin.
var _ appendship.Plugin = (*Plugin)(nil)

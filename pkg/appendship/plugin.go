package appendship

import (
	"context"

	"github.com/bft-labs/appendship/pkg/log"
)

// Plugin extends an agent with work that runs alongside it.
// Plugins are initialized in registration order on Start and shut down
// in reverse order once the agent loop has finished.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to plugins on Initialize.
type PluginConfig struct {
	Input    string
	StateDir string
	BaseURL  string
	Stream   string
	Logger   log.Logger
}

// BasePlugin implements Plugin with no-ops.
type BasePlugin struct {
	name string
}

// NewBasePlugin creates a BasePlugin with the given name.
func NewBasePlugin(name string) *BasePlugin {
	return &BasePlugin{name: name}
}

// Name implements Plugin.
func (p *BasePlugin) Name() string {
	return p.name
}

// Initialize implements Plugin.
func (p *BasePlugin) Initialize(context.Context, PluginConfig) error {
	return nil
}

// Shutdown implements Plugin.
func (p *BasePlugin) Shutdown(context.Context) error {
	return nil
}

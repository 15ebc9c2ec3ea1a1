package appendship

import (
	"io"

	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/metrics"
	"github.com/bft-labs/appendship/pkg/sender"
)

// Option configures optional behavior of Appendship.
type Option func(*options)

type options struct {
	httpClient   sender.HTTPClient
	transport    sender.Transport
	logger       log.Logger
	eventHandler EventHandler
	metrics      *metrics.Registry
	plugins      []Plugin
	stdin        io.Reader
}

// WithHTTPClient sets the HTTP client used by the default transport.
// If not provided, a client with Config.HTTPTimeout is used.
func WithHTTPClient(client sender.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTransport replaces the HTTP transport entirely.
// BaseURL and Stream are not required when a transport is injected.
func WithTransport(transport sender.Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for agent events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithMetrics records pipeline and agent metrics into registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *options) {
		o.metrics = registry
	}
}

// WithPlugin registers a plugin to be initialized when the agent starts.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithStdin sets the reader used when Input is "-".
// If not provided, os.Stdin is used.
func WithStdin(r io.Reader) Option {
	return func(o *options) {
		o.stdin = r
	}
}

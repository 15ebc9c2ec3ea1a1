package configwatcher

import "github.com/bft-labs/appendship/pkg/appendship"

// WithConfigWatcher returns an appendship Option that enables config file
// watching.
//
// Usage:
//
//	a, err := appendship.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Paths:    []string{"/etc/appendship/config.toml"},
//	        OnChange: func(string) { reload <- struct{}{} },
//	    }),
//	)
func WithConfigWatcher(cfg Config) appendship.Option {
	plugin := New(cfg)
	return appendship.WithPlugin(plugin)
}

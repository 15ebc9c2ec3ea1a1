// Package metrics exposes pipeline activity as Prometheus metrics.
//
// A [Registry] owns a private prometheus.Registry. Its [Registry.Pipeline]
// collectors implement pipeline.EventEmitter and provide a retry hook, so
// they can be plugged straight into a producer or sender:
//
//	reg := metrics.NewRegistry(metrics.DefaultConfig())
//	p, err := producer.New(transport, cfg,
//	    producer.WithEmitter(reg.Pipeline),
//	    producer.WithRetryHook(reg.Pipeline.OnRetry),
//	)
//	http.Handle("/metrics", reg.Handler())
//
// All metric names use the appendship namespace.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package metrics

// Package log provides the logging abstraction used by appendship components.
//
// Components accept a [Logger] and never import a logging library directly.
// A zerolog-backed adapter is provided for applications and a no-op logger
// for library defaults and tests.
//
// # Usage
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	p, err := producer.New(transport, cfg, producer.WithLogger(logger))
//
// Component loggers attach a fixed field to every message:
//
//	plog := log.With(logger, log.String("component", "producer"))
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log

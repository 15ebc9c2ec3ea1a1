package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "appendship"

// Config controls which collectors are registered.
type Config struct {
	Namespace               string
	IncludeGoCollector      bool
	IncludeProcessCollector bool
}

// DefaultConfig returns a Config with runtime collectors enabled.
func DefaultConfig() Config {
	return Config{
		Namespace:               DefaultNamespace,
		IncludeGoCollector:      true,
		IncludeProcessCollector: true,
	}
}

// Registry groups the appendship collectors.
type Registry struct {
	config       Config
	promRegistry *prometheus.Registry

	Pipeline *PipelineMetrics
	Agent    *AgentMetrics
}

// NewRegistry creates a registry and registers all collectors.
func NewRegistry(config Config) *Registry {
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}
	r := &Registry{
		config:       config,
		promRegistry: prometheus.NewRegistry(),
	}
	if config.IncludeGoCollector {
		r.promRegistry.MustRegister(collectors.NewGoCollector())
	}
	if config.IncludeProcessCollector {
		r.promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: config.Namespace,
		}))
	}

	r.Pipeline = newPipelineMetrics(r)
	r.Agent = newAgentMetrics(r)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// PrometheusRegistry returns the underlying registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.promRegistry
}

func (r *Registry) newCounter(subsystem, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.config.Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	r.promRegistry.MustRegister(c)
	return c
}

func (r *Registry) newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.config.Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	r.promRegistry.MustRegister(c)
	return c
}

func (r *Registry) newGauge(subsystem, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.config.Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	r.promRegistry.MustRegister(g)
	return g
}

func (r *Registry) newHistogram(subsystem, name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.config.Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
	r.promRegistry.MustRegister(h)
	return h
}

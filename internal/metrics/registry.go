package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application
type Registry struct {
	// Attribution run metrics
	RunsTotal             *prometheus.CounterVec
	RunDuration           prometheus.Histogram
	RecordsIngestedTotal  *prometheus.CounterVec
	RecordsDroppedTotal   *prometheus.CounterVec
	GraphHosts            prometheus.Gauge
	GraphEdges            prometheus.Gauge
	EdgesLabeledTotal     *prometheus.CounterVec
	PropagationIterations prometheus.Histogram
	AmbiguousEdgesTotal   prometheus.Counter
	OriginConflicts       prometheus.Gauge
	EdgesMergedTotal      prometheus.Counter
	GraphExportDuration   prometheus.Histogram

	// Actor tracing metrics
	TracesTotal              *prometheus.CounterVec
	TraceDuration            prometheus.Histogram
	ChainsReconstructedTotal prometheus.Counter
	PathsSkippedTotal        *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process wide registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initAttributionMetrics()
	r.initTraceMetrics()
	r.initHTTPMetrics()

	return r
}

// GetPrometheusRegistry exposes the underlying registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

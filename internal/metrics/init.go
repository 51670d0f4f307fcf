package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAttributionMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowattr_runs_total",
			Help: "Total number of attribution runs",
		},
		[]string{"status"},
	)

	r.RunDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowattr_run_duration_seconds",
			Help:    "Attribution run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	r.RecordsIngestedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowattr_records_ingested_total",
			Help: "Flow records read from a record store",
		},
		[]string{"source"},
	)

	r.RecordsDroppedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowattr_records_dropped_total",
			Help: "Flow records that did not become edges",
		},
		[]string{"reason"},
	)

	r.GraphHosts = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowattr_graph_hosts",
			Help: "Hosts in the last attributed graph",
		},
	)

	r.GraphEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowattr_graph_edges",
			Help: "Flow edges in the last attributed graph",
		},
	)

	r.EdgesLabeledTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowattr_edges_labeled_total",
			Help: "Edges that received an attribution label",
		},
		[]string{"kind"},
	)

	r.PropagationIterations = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowattr_propagation_iterations",
			Help:    "Breadth-first rounds per propagation",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	r.AmbiguousEdgesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowattr_ambiguous_edges_total",
			Help: "Edges reached by more than one label",
		},
	)

	r.OriginConflicts = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowattr_origin_conflicts",
			Help: "Edges claimed by several origins in the last audit",
		},
	)

	r.EdgesMergedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowattr_edges_merged_total",
			Help: "Unattributed edges folded into aggregates",
		},
	)

	r.GraphExportDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowattr_graph_export_duration_seconds",
			Help:    "Time spent writing a graph to the graph store",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
}

func (r *Registry) initTraceMetrics() {
	r.TracesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowattr_traces_total",
			Help: "Actor traces computed",
		},
		[]string{"status"},
	)

	r.TraceDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowattr_trace_duration_seconds",
			Help:    "Actor trace duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
	)

	r.ChainsReconstructedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowattr_chains_reconstructed_total",
			Help: "Complete flow chains reconstructed",
		},
	)

	r.PathsSkippedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowattr_paths_skipped_total",
			Help: "Candidate paths skipped during tracing",
		},
		[]string{"reason"},
	)
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowattr_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowattr_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

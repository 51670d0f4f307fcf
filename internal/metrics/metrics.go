package metrics

import (
	"time"
)

// Recording methods accept a nil registry so components can run without metrics.

// RunObservation is what an attribution run reports
type RunObservation struct {
	Failed     bool
	Duration   time.Duration
	Hosts      int
	Edges      int
	Seeded     int
	Labeled    int
	Iterations int
	Ambiguous  int
	Merged     int
}

// RecordRun records a finished attribution run
func (r *Registry) RecordRun(o RunObservation) {
	if r == nil {
		return
	}
	status := "completed"
	if o.Failed {
		status = "failed"
	}
	r.RunsTotal.WithLabelValues(status).Inc()
	r.RunDuration.Observe(o.Duration.Seconds())
	if o.Failed {
		return
	}
	r.GraphHosts.Set(float64(o.Hosts))
	r.GraphEdges.Set(float64(o.Edges))
	r.EdgesLabeledTotal.WithLabelValues("seeded").Add(float64(o.Seeded))
	r.EdgesLabeledTotal.WithLabelValues("propagated").Add(float64(o.Labeled))
	r.PropagationIterations.Observe(float64(o.Iterations))
	r.AmbiguousEdgesTotal.Add(float64(o.Ambiguous))
	r.EdgesMergedTotal.Add(float64(o.Merged))
}

// RecordIngest records the records read from one store
func (r *Registry) RecordIngest(source string, count int) {
	if r == nil {
		return
	}
	r.RecordsIngestedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordDropped records records dropped for a reason (filtered, invalid)
func (r *Registry) RecordDropped(reason string, count int) {
	if r == nil || count == 0 {
		return
	}
	r.RecordsDroppedTotal.WithLabelValues(reason).Add(float64(count))
}

// SetOriginConflicts records the outcome of an origin audit
func (r *Registry) SetOriginConflicts(n int) {
	if r == nil {
		return
	}
	r.OriginConflicts.Set(float64(n))
}

// RecordExport records a graph export
func (r *Registry) RecordExport(duration time.Duration) {
	if r == nil {
		return
	}
	r.GraphExportDuration.Observe(duration.Seconds())
}

// RecordTrace records an actor trace
func (r *Registry) RecordTrace(failed bool, duration time.Duration, chains int) {
	if r == nil {
		return
	}
	status := "completed"
	if failed {
		status = "failed"
	}
	r.TracesTotal.WithLabelValues(status).Inc()
	r.TraceDuration.Observe(duration.Seconds())
	r.ChainsReconstructedTotal.Add(float64(chains))
}

// RecordPathSkipped records a path skipped during tracing
func (r *Registry) RecordPathSkipped(reason string) {
	if r == nil {
		return
	}
	r.PathsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of an attribution run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary describes one batch attribution run
type RunSummary struct {
	ID          uuid.UUID `json:"id"`
	Status      RunStatus `json:"status"`
	Window      Timeframe `json:"window"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`

	// Ingestion
	Sources  []string `json:"sources"`
	Records  int      `json:"records"`
	Filtered int      `json:"filtered"`
	Skipped  int      `json:"skipped"`

	// Graph
	Hosts       int `json:"hosts"`
	Edges       int `json:"edges"`
	PrunedHosts int `json:"pruned_hosts"`
	MergedEdges int `json:"merged_edges"`

	// Propagation
	Seeded     int `json:"seeded"`
	Labeled    int `json:"labeled"`
	Iterations int `json:"iterations"`
	Visits     int `json:"visits"`
	Ambiguous  int `json:"ambiguous"`

	// Conflicts counts edges several origins would claim when propagated in
	// isolation. Only set when the audit ran.
	Conflicts *int `json:"conflicts,omitempty"`

	// LabelCounts maps each label to the number of edges carrying it
	LabelCounts map[string]int `json:"label_counts"`

	Exported bool `json:"exported"`
}

// NewRunSummary starts a summary for a run over window
func NewRunSummary(window Timeframe) *RunSummary {
	return &RunSummary{
		ID:          uuid.New(),
		Window:      window,
		StartedAt:   time.Now().UTC(),
		LabelCounts: make(map[string]int),
	}
}

// Complete stamps the summary with its outcome
func (r *RunSummary) Complete(err error) {
	r.CompletedAt = time.Now().UTC()
	r.DurationMS = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	if err != nil {
		r.Status = RunStatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = RunStatusCompleted
}

// RunHistoryEntry is the compact form kept in the run history list
type RunHistoryEntry struct {
	ID         uuid.UUID `json:"id"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Edges      int       `json:"edges"`
	Labeled    int       `json:"labeled"`
	Ambiguous  int       `json:"ambiguous"`
	Error      string    `json:"error,omitempty"`
}

// HistoryEntry compacts the summary
func (r *RunSummary) HistoryEntry() RunHistoryEntry {
	return RunHistoryEntry{
		ID:         r.ID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		DurationMS: r.DurationMS,
		Edges:      r.Edges,
		Labeled:    r.Seeded + r.Labeled,
		Ambiguous:  r.Ambiguous,
		Error:      r.Error,
	}
}

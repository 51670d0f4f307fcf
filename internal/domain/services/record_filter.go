package services

import (
	"path"

	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
)

// RecordFilter drops records produced by monitoring infrastructure and
// automation rather than by actors. Patterns use path.Match glob syntax.
type RecordFilter struct {
	processNames      []string
	executables       []string
	observerHostnames []string
	userAgents        []string
	observerGeoNames  []string
}

// NewRecordFilter creates a filter from configured exclusion patterns
func NewRecordFilter(cfg config.ExcludeConfig) *RecordFilter {
	return &RecordFilter{
		processNames:      cfg.ProcessNames,
		executables:       cfg.Executables,
		observerHostnames: cfg.ObserverHostnames,
		userAgents:        cfg.UserAgents,
		observerGeoNames:  cfg.ObserverGeoNames,
	}
}

// Excluded reports whether rec matches any exclusion pattern. Empty fields
// never match.
func (f *RecordFilter) Excluded(rec *models.FlowRecord) bool {
	return matchAny(f.observerHostnames, rec.ObserverHostname) ||
		matchAny(f.processNames, rec.ProcessName) ||
		matchAny(f.executables, rec.ProcessExecutable) ||
		matchAny(f.userAgents, rec.UserAgent) ||
		matchAny(f.observerGeoNames, rec.ObserverGeoName)
}

// Apply returns the records that pass the filter and how many were dropped
func (f *RecordFilter) Apply(records []models.FlowRecord) ([]models.FlowRecord, int) {
	if f == nil {
		return records, 0
	}
	kept := records[:0:0]
	for i := range records {
		if f.Excluded(&records[i]) {
			continue
		}
		kept = append(kept, records[i])
	}
	return kept, len(records) - len(kept)
}

func matchAny(patterns []string, value string) bool {
	if value == "" {
		return false
	}
	for _, p := range patterns {
		if p == value {
			return true
		}
		// a malformed pattern only matches literally
		if ok, err := path.Match(p, value); err == nil && ok {
			return true
		}
	}
	return false
}

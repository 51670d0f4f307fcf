package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/metrics"
	"flowattr-lab/pkg/logger"
)

// AttributionService runs batch attribution: it reads flow records from every
// configured store, builds one flow graph, propagates origin labels through
// it and persists the result.
type AttributionService struct {
	config     config.AttributionConfig
	sources    []FlowRecordStore
	filter     *RecordFilter
	correlator *attribution.Correlator
	namer      attribution.HostNamer
	exclude    func(string) bool
	metrics    *metrics.Registry
	logger     *logger.Logger

	graphs    GraphStore
	runs      RunRecorder
	cache     RunCache
	publisher EventPublisher

	mu        sync.RWMutex
	isRunning bool
	lastGraph *attribution.Graph
	lastRun   *models.RunSummary
}

// NewAttributionService creates a new AttributionService
func NewAttributionService(
	cfg config.AttributionConfig,
	sources []FlowRecordStore,
	filter *RecordFilter,
	reg *metrics.Registry,
	log *logger.Logger,
) (*AttributionService, error) {
	policy, err := attribution.ParseMatchPolicy(cfg.MatchPolicy)
	if err != nil {
		return nil, err
	}

	return &AttributionService{
		config:     cfg,
		sources:    sources,
		filter:     filter,
		correlator: attribution.NewCorrelator(policy),
		namer: attribution.PrefixNamer{
			AddressPrefix: cfg.Naming.AddressPrefix,
			NamePrefix:    cfg.Naming.NamePrefix,
		},
		exclude: attribution.ParseExclusions(cfg.ExcludePrefixes),
		metrics: reg,
		logger:  log.WithComponent("attribution"),
	}, nil
}

// SetGraphStore sets where attributed graphs are exported
func (s *AttributionService) SetGraphStore(store GraphStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs = store
}

// SetRunRecorder sets the durable run log
func (s *AttributionService) SetRunRecorder(recorder RunRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = recorder
}

// SetRunCache sets the cache serving the latest runs
func (s *AttributionService) SetRunCache(cache RunCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = cache
}

// SetEventPublisher sets the event publisher for run notifications
func (s *AttributionService) SetEventPublisher(publisher EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = publisher
	s.logger.Info().Msg("event publisher configured")
}

// Run performs one attribution run over window. The returned summary is
// complete even when the run failed.
func (s *AttributionService) Run(ctx context.Context, window models.Timeframe) (*models.RunSummary, error) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	summary := models.NewRunSummary(window)
	log := s.logger.WithRunID(summary.ID.String())
	log.Info().
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Int("sources", len(s.sources)).
		Msg("starting attribution run")

	g, err := s.attribute(ctx, window, summary, log)
	s.finish(ctx, summary, err, log)
	if err != nil {
		return summary, err
	}

	s.mu.Lock()
	s.lastGraph = g
	s.lastRun = summary
	s.mu.Unlock()

	return summary, nil
}

func (s *AttributionService) attribute(ctx context.Context, window models.Timeframe, summary *models.RunSummary, log *logger.Logger) (*attribution.Graph, error) {
	g, ingested, err := s.buildGraph(ctx, window, summary, log)
	if err != nil {
		return nil, err
	}
	for i, src := range s.sources {
		s.metrics.RecordIngest(src.Name(), ingested[i])
	}
	s.metrics.RecordDropped("filtered", summary.Filtered)
	s.metrics.RecordDropped("invalid", summary.Skipped)

	if s.config.PruneDetached {
		summary.PrunedHosts = attribution.PruneToLargestComponent(g)
		log.Debug().Int("removed", summary.PrunedHosts).Msg("pruned detached hosts")
	}

	stats := attribution.NewPropagator(s.correlator).Propagate(g, s.config.OriginPrefixes)
	summary.Seeded = stats.Seeded
	summary.Labeled = stats.Labeled
	summary.Iterations = stats.Iterations
	summary.Visits = stats.Visits
	summary.Ambiguous = stats.Ambiguous
	if stats.Ambiguous > 0 {
		log.Info().Int("ambiguous", stats.Ambiguous).Msg("edges reachable from several origins kept their first label")
	}

	if s.config.AuditOrigins {
		audit, err := attribution.AuditOrigins(ctx, g, s.correlator, s.config.OriginPrefixes, s.config.AuditWorkers)
		if err != nil {
			return nil, fmt.Errorf("failed to audit origins: %w", err)
		}
		conflicts := len(audit.Conflicts)
		summary.Conflicts = &conflicts
		s.metrics.SetOriginConflicts(conflicts)
	}

	if s.config.MergeUnattributed {
		summary.MergedEdges = attribution.MergeUnattributedEdges(g)
	}

	summary.Hosts = g.HostCount()
	summary.Edges = g.EdgeCount()
	for _, e := range g.Edges() {
		summary.LabelCounts[e.Label]++
	}

	s.mu.RLock()
	graphs := s.graphs
	s.mu.RUnlock()
	if graphs != nil {
		start := time.Now()
		if err := graphs.ExportGraph(ctx, summary.ID.String(), g); err != nil {
			return nil, fmt.Errorf("failed to export graph: %w", err)
		}
		s.metrics.RecordExport(time.Since(start))
		summary.Exported = true
	}

	return g, nil
}

type sourceGraph struct {
	graph    *attribution.Graph
	records  int
	filtered int
	build    attribution.BuildStats
}

// buildGraph reads every store concurrently, each into its own graph, then
// absorbs them in store order. It returns the records read per store and
// records no metrics, so read-only queries leave the ingest counters alone.
func (s *AttributionService) buildGraph(ctx context.Context, window models.Timeframe, summary *models.RunSummary, log *logger.Logger) (*attribution.Graph, []int, error) {
	if len(s.sources) == 0 {
		return nil, nil, ErrNoRecordStore
	}

	results := make([]sourceGraph, len(s.sources))
	eg, ctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		eg.Go(func() error {
			records, err := src.RecordsInWindow(ctx, window)
			if err != nil {
				return fmt.Errorf("failed to read records from %s: %w", src.Name(), err)
			}

			kept, filtered := s.filter.Apply(records)
			g, stats := attribution.BuildGraph(kept, attribution.BuildOptions{
				Namer: s.namer,
				OnSkip: func(rec models.FlowRecord, err error) {
					log.Debug().Err(err).Str("source", src.Name()).Str("src", rec.SourceIP).Str("dst", rec.DestinationIP).Msg("skipping flow record")
				},
			})
			results[i] = sourceGraph{graph: g, records: len(records), filtered: filtered, build: stats}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	g := attribution.NewGraph()
	ingested := make([]int, len(results))
	for i, r := range results {
		g.Absorb(r.graph)
		ingested[i] = r.records
		summary.Sources = append(summary.Sources, s.sources[i].Name())
		summary.Records += r.records
		summary.Filtered += r.filtered
		summary.Skipped += r.build.Skipped
	}

	if summary.Skipped > 0 {
		log.Warn().Int("skipped", summary.Skipped).Msg("invalid flow records skipped")
	}
	log.Info().
		Int("records", summary.Records).
		Int("filtered", summary.Filtered).
		Int("hosts", g.HostCount()).
		Int("edges", g.EdgeCount()).
		Msg("flow graph built")

	return g, ingested, nil
}

// finish stamps the summary and fans it out. Failures past this point are
// logged and never fail the run.
func (s *AttributionService) finish(ctx context.Context, summary *models.RunSummary, runErr error, log *logger.Logger) {
	summary.Complete(runErr)

	s.metrics.RecordRun(metrics.RunObservation{
		Failed:     runErr != nil,
		Duration:   time.Duration(summary.DurationMS) * time.Millisecond,
		Hosts:      summary.Hosts,
		Edges:      summary.Edges,
		Seeded:     summary.Seeded,
		Labeled:    summary.Labeled,
		Iterations: summary.Iterations,
		Ambiguous:  summary.Ambiguous,
		Merged:     summary.MergedEdges,
	})

	s.mu.RLock()
	runs, cache, publisher := s.runs, s.cache, s.publisher
	s.mu.RUnlock()

	if runs != nil {
		if err := runs.RecordRun(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("failed to record run")
		}
	}
	if cache != nil {
		if err := cache.SaveRun(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("failed to cache run")
		}
	}
	if publisher != nil && runErr == nil {
		if err := publisher.PublishRunCompleted(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("failed to publish run completed event")
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Int64("duration_ms", summary.DurationMS).Msg("attribution run failed")
		return
	}
	log.Info().
		Int("edges", summary.Edges).
		Int("seeded", summary.Seeded).
		Int("labeled", summary.Labeled).
		Int("iterations", summary.Iterations).
		Int("merged", summary.MergedEdges).
		Int64("duration_ms", summary.DurationMS).
		Msg("attribution run completed")
}

// IsRunning reports whether a run is active
func (s *AttributionService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastGraph returns the graph of the last successful run
func (s *AttributionService) LastGraph() *attribution.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGraph
}

// LastRun returns the latest run summary, from the cache when one is set
func (s *AttributionService) LastRun(ctx context.Context) (*models.RunSummary, error) {
	s.mu.RLock()
	cache, last := s.cache, s.lastRun
	s.mu.RUnlock()

	if cache != nil {
		summary, err := cache.LastRun(ctx)
		if err != nil {
			return nil, err
		}
		if summary != nil {
			return summary, nil
		}
	}
	return last, nil
}

// RunHistory returns the most recent runs, newest first
func (s *AttributionService) RunHistory(ctx context.Context, limit int) ([]models.RunHistoryEntry, error) {
	s.mu.RLock()
	cache, last := s.cache, s.lastRun
	s.mu.RUnlock()

	if cache != nil {
		return cache.RunHistory(ctx, limit)
	}
	if last == nil {
		return []models.RunHistoryEntry{}, nil
	}
	return []models.RunHistoryEntry{last.HistoryEntry()}, nil
}

// Paths enumerates the bounded simple paths from start to end. A zero window
// queries the graph of the last run; otherwise a fresh graph is built from
// the records inside window.
func (s *AttributionService) Paths(ctx context.Context, window models.Timeframe, start, end string) ([][]string, error) {
	var g *attribution.Graph
	if window.Start.IsZero() && window.End.IsZero() {
		g = s.LastGraph()
		if g == nil {
			return nil, ErrNoGraph
		}
	} else {
		var err error
		g, _, err = s.buildGraph(ctx, window, models.NewRunSummary(window), s.logger)
		if err != nil {
			return nil, err
		}
	}

	paths := attribution.FindAllPaths(g, start, end, attribution.PathOptions{
		Exclude:   s.exclude,
		MaxLength: s.config.MaxPathLength,
		MaxPaths:  s.config.MaxPaths,
	})
	if paths == nil {
		paths = [][]string{}
	}
	return paths, nil
}

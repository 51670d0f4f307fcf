package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
)

var t0 = time.Date(2022, 10, 4, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func record(src, dst string, sport, dport int, sec int) models.FlowRecord {
	return models.FlowRecord{
		SourceIP:        src,
		DestinationIP:   dst,
		SourcePort:      attribution.Port(sport),
		DestinationPort: attribution.Port(dport),
		Transport:       "tcp",
		Start:           at(sec),
	}
}

func testAttributionConfig() config.AttributionConfig {
	return config.AttributionConfig{
		OriginPrefixes:    []string{"w1-s"},
		RootHost:          "10.0.0.2",
		Naming:            config.NamingConfig{AddressPrefix: "192.168.0.", NamePrefix: "w1-s"},
		MatchPolicy:       "strict",
		MaxPathLength:     8,
		MaxPaths:          1000,
		MaxHopCandidates:  10000,
		SessionMergeGap:   DefaultSessionMergeGap,
		MergeUnattributed: true,
		AuditWorkers:      2,
		Window:            time.Hour,
		ServicePorts:      config.DefaultServicePorts,
	}
}

type fakeRecordStore struct {
	name    string
	records []models.FlowRecord
	err     error
}

func (f *fakeRecordStore) Name() string { return f.name }

func (f *fakeRecordStore) RecordsInWindow(_ context.Context, window models.Timeframe) ([]models.FlowRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.FlowRecord
	for _, r := range f.records {
		if window.Contains(r.Start) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) RecordsBetween(ctx context.Context, src, dst string, window models.Timeframe) ([]models.FlowRecord, error) {
	all, err := f.RecordsInWindow(ctx, window)
	if err != nil {
		return nil, err
	}
	var out []models.FlowRecord
	for _, r := range all {
		if r.SourceIP == src && r.DestinationIP == dst {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeConntrack struct {
	pivots  []models.PivotRecord
	targets []string
	calls   int
}

func (f *fakeConntrack) Pivots(_ context.Context, _, actorIP, _ string, window models.Timeframe) ([]models.PivotRecord, error) {
	f.calls++
	var out []models.PivotRecord
	for _, p := range f.pivots {
		if p.ActorIP == actorIP && window.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeConntrack) TargetHosts(_ context.Context, _, _, _ string, _ models.Timeframe) ([]string, error) {
	return f.targets, nil
}

type fakeSessionEvents struct {
	events []models.SessionEvent
}

func (f *fakeSessionEvents) SessionEvents(_ context.Context, _, actor string, window models.Timeframe) ([]models.SessionEvent, error) {
	var out []models.SessionEvent
	for _, e := range f.events {
		if e.Actor != actor {
			continue
		}
		if window.Valid() && !window.Contains(e.Timestamp) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeSessionEvents) ConnectedActors(_ context.Context, _ string, window models.Timeframe) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, e := range f.events {
		if window.Contains(e.Timestamp) && !seen[e.Actor] {
			seen[e.Actor] = true
			out = append(out, e.Actor)
		}
	}
	return out, nil
}

type fakeActors map[string]*models.Actor

func (f fakeActors) GetActor(_ context.Context, name string) (*models.Actor, error) {
	return f[name], nil
}

func (f fakeActors) ListActors(_ context.Context) ([]*models.Actor, error) {
	out := make([]*models.Actor, 0, len(f))
	for _, a := range f {
		out = append(out, a)
	}
	return out, nil
}

type fakeGraphStore struct {
	exported map[string]*attribution.Graph
	err      error
}

func (f *fakeGraphStore) ExportGraph(_ context.Context, runID string, g *attribution.Graph) error {
	if f.err != nil {
		return f.err
	}
	if f.exported == nil {
		f.exported = make(map[string]*attribution.Graph)
	}
	f.exported[runID] = g.Clone()
	return nil
}

func (f *fakeGraphStore) ImportGraph(_ context.Context) (*attribution.Graph, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGraphStore) Stats(_ context.Context) (*models.GraphStats, error) {
	return &models.GraphStats{}, nil
}

type fakeRunRecorder struct {
	runs []*models.RunSummary
}

func (f *fakeRunRecorder) RecordRun(_ context.Context, s *models.RunSummary) error {
	f.runs = append(f.runs, s)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	runs   []*models.RunSummary
	traces map[string][]byte
}

func (f *fakeCache) SaveRun(_ context.Context, s *models.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append([]*models.RunSummary{s}, f.runs...)
	return nil
}

func (f *fakeCache) LastRun(_ context.Context) (*models.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return nil, nil
	}
	return f.runs[0], nil
}

func (f *fakeCache) RunHistory(_ context.Context, limit int) ([]models.RunHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RunHistoryEntry
	for i, r := range f.runs {
		if limit > 0 && i >= limit {
			break
		}
		out = append(out, r.HistoryEntry())
	}
	return out, nil
}

func (f *fakeCache) GetTrace(_ context.Context, key string, dest any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.traces[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (f *fakeCache) SetTrace(_ context.Context, key string, trace any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(trace)
	if err != nil {
		return err
	}
	if f.traces == nil {
		f.traces = make(map[string][]byte)
	}
	f.traces[key] = data
	return nil
}

type fakePublisher struct {
	runs   []*models.RunSummary
	chains [][]attribution.FlowPart
}

func (f *fakePublisher) PublishRunCompleted(_ context.Context, s *models.RunSummary) error {
	f.runs = append(f.runs, s)
	return nil
}

func (f *fakePublisher) PublishChainReconstructed(_ context.Context, _ string, _ models.Timeframe, chain []attribution.FlowPart) error {
	f.chains = append(f.chains, chain)
	return nil
}

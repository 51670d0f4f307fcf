package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/internal/infrastructure/fixture"
	"flowattr-lab/internal/metrics"
	"flowattr-lab/pkg/logger"
)

var t0 = time.Date(2022, 10, 4, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func testConfig() config.AttributionConfig {
	return config.AttributionConfig{
		OriginPrefixes:    []string{"w1-s"},
		RootHost:          "10.0.0.2",
		Naming:            config.NamingConfig{AddressPrefix: "192.168.0.", NamePrefix: "w1-s"},
		MatchPolicy:       "strict",
		MaxPathLength:     8,
		MaxPaths:          100,
		MaxHopCandidates:  1000,
		SessionMergeGap:   services.DefaultSessionMergeGap,
		MergeUnattributed: true,
		AuditWorkers:      1,
		Window:            time.Hour,
		ServicePorts:      config.DefaultServicePorts,
	}
}

func testStore() *fixture.Store {
	flow := func(src, dst string, sport, dport, sec int) models.FlowRecord {
		return models.FlowRecord{
			SourceIP:        src,
			DestinationIP:   dst,
			SourcePort:      attribution.Port(sport),
			DestinationPort: attribution.Port(dport),
			Transport:       "tcp",
			Start:           at(sec),
		}
	}
	return fixture.NewStore(fixture.Document{
		Flows: []models.FlowRecord{
			flow("192.168.0.5", "10.0.0.2", 4000, 22, 10),
			flow("10.0.0.2", "10.0.0.3", 4000, 22, 20),
		},
		Sessions: []models.SessionEvent{
			{Actor: "alice", World: "w1", Type: models.SessionConnected, Timestamp: at(0)},
			{Actor: "alice", World: "w1", Type: models.SessionDisconnected, Timestamp: at(600)},
		},
		Actors: []models.Actor{{Name: "alice", World: "w1", VPNIP: "172.16.0.5"}},
	})
}

type testEnv struct {
	handlers *Handlers
	service  *services.AttributionService
	router   chi.Router
}

func newTestEnv(t *testing.T, graphs services.GraphStore) *testEnv {
	t.Helper()

	cfg := testConfig()
	store := testStore()
	log := logger.NewNop()
	reg := metrics.NewRegistry()

	svc, err := services.NewAttributionService(cfg, []services.FlowRecordStore{store}, nil, reg, log)
	require.NoError(t, err)
	tracer := services.NewFlowTracer(cfg, store, store, store,
		services.NewSessionBuilder(store, cfg.SessionMergeGap, log), nil, reg, log)

	h := NewHandlers(Dependencies{
		Config:      cfg,
		Version:     "test",
		Attribution: svc,
		Tracer:      tracer,
		Actors:      store,
		GraphStore:  graphs,
		Checks: map[string]HealthChecker{
			"postgres": HealthFunc(func(context.Context) error { return nil }),
		},
		Logger: log,
	})

	r := chi.NewRouter()
	r.Get("/health", h.Health.Check)
	r.Get("/ready", h.Health.Ready)
	r.Post("/runs", h.Runs.Trigger)
	r.Get("/runs/last", h.Runs.Last)
	r.Get("/runs/history", h.Runs.History)
	r.Get("/paths", h.Paths.Find)
	r.Get("/actors", h.Actors.List)
	r.Get("/actors/{name}/trace", h.Actors.Trace)
	r.Get("/graph/stats", h.Graph.GetStats)
	r.Get("/events/ws", h.Events.HandleWebSocket)
	r.Get("/events/stats", h.Events.GetStats)

	return &testEnv{handlers: h, service: svc, router: r}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)

	rec = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	resp = decode[HealthResponse](t, rec)
	assert.Equal(t, map[string]string{"postgres": "healthy"}, resp.Checks)
}

func TestReady_Unhealthy(t *testing.T) {
	h := NewHealthHandler("", map[string]HealthChecker{
		"redis": HealthFunc(func(context.Context) error { return errors.New("connection refused") }),
	}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "not ready", resp.Status)
	assert.Equal(t, "dev", resp.Version)
	assert.Contains(t, resp.Checks["redis"], "connection refused")
}

func TestRuns_TriggerThenQuery(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/runs/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := `{"start":"2022-10-04T12:00:00Z","end":"2022-10-04T13:00:00Z"}`
	rec = env.do(t, http.MethodPost, "/runs", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[models.RunSummary](t, rec)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.Seeded)
	assert.Equal(t, t0, summary.Window.Start)

	rec = env.do(t, http.MethodGet, "/runs/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, summary.ID, decode[models.RunSummary](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/runs/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Data  []models.RunHistoryEntry `json:"data"`
		Total int                      `json:"total"`
		Limit int                      `json:"limit"`
	}](t, rec)
	assert.Equal(t, 1, history.Total)
	assert.Equal(t, 5, history.Limit)
	require.Len(t, history.Data, 1)
	assert.Equal(t, summary.ID, history.Data[0].ID)
}

func TestRuns_TriggerDefaultWindow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[models.RunSummary](t, rec)
	assert.Equal(t, time.Hour, summary.Window.Duration())
	assert.Zero(t, summary.Records)
}

func TestRuns_TriggerBadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"start":`},
		{"start without end", `{"start":"2022-10-04T12:00:00Z"}`},
		{"end before start", `{"start":"2022-10-04T13:00:00Z","end":"2022-10-04T12:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPaths(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/paths?from=w1-s5&to=10.0.0.3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no run yet")

	rec = env.do(t, http.MethodGet, "/paths?from=w1-s5&to=10.0.0.3&start=2022-10-04T12:00:00Z&end=2022-10-04T13:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PathsResponse](t, rec)
	assert.Equal(t, [][]string{{"w1-s5", "10.0.0.2", "10.0.0.3"}}, resp.Paths)
	assert.Equal(t, 1, resp.Count)

	_, err := env.service.Run(context.Background(), models.NewTimeframe(t0, at(3600)))
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/paths?from=10.0.0.3&to=w1-s5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[PathsResponse](t, rec)
	assert.Empty(t, resp.Paths)
	assert.NotNil(t, resp.Paths)
}

func TestPaths_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, target := range []string{
		"/paths?to=10.0.0.3",
		"/paths?from=w1-s5",
		"/paths?from=w1-s5&to=10.0.0.3&start=yesterday",
		"/paths?from=w1-s5&to=10.0.0.3&start=2022-10-04T13:00:00Z&end=2022-10-04T12:00:00Z",
	} {
		rec := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestActors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/actors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data  []models.Actor `json:"data"`
		Total int            `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "alice", list.Data[0].Name)

	rec = env.do(t, http.MethodGet, "/actors/alice/trace?start=2022-10-04T11:00:00Z&end=2022-10-04T14:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trace := decode[services.ActorTrace](t, rec)
	assert.Equal(t, "alice", trace.Actor.Name)
	assert.Len(t, trace.Sessions, 1)

	rec = env.do(t, http.MethodGet, "/actors/mallory/trace", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/actors/alice/trace?end=not-a-time", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubGraphStore struct {
	services.GraphStore
	stats *models.GraphStats
}

func (s *stubGraphStore) Stats(context.Context) (*models.GraphStats, error) {
	return s.stats, nil
}

func TestGraphStats(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/graph/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := env.service.Run(context.Background(), models.NewTimeframe(t0, at(3600)))
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/graph/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.GraphStats](t, rec)
	assert.Equal(t, int64(3), stats.TotalNodes)
	assert.Equal(t, int64(2), stats.TotalRelationships)
	assert.Equal(t, int64(2), stats.AttributedRelationships)
	assert.Equal(t, map[string]int64{"w1-s5": 2}, stats.RelationsByLabel)

	stored := newTestEnv(t, &stubGraphStore{stats: &models.GraphStats{TotalNodes: 42}})
	rec = stored.do(t, http.MethodGet, "/graph/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), decode[models.GraphStats](t, rec).TotalNodes)
}

func TestEvents_Unavailable(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/events/ws", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/events/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"websocket_clients": 0, "event_bus_subscribers": 0}, decode[map[string]int](t, rec))
}

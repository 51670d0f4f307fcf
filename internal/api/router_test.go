package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowattr-lab/internal/api/handlers"
	apimiddleware "flowattr-lab/internal/api/middleware"
	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/internal/infrastructure/fixture"
	"flowattr-lab/internal/metrics"
	"flowattr-lab/pkg/logger"
)

type fakeLimits struct {
	allowed bool
	keys    []string
}

func (f *fakeLimits) CheckRateLimit(_ context.Context, key string, limit int64, _ time.Duration) (bool, int64, time.Time, error) {
	f.keys = append(f.keys, key)
	remaining := limit - 1
	if !f.allowed {
		remaining = 0
	}
	return f.allowed, remaining, time.Now().Add(time.Minute), nil
}

func newTestRouter(t *testing.T, cfg config.Config, limits *fakeLimits, reg *metrics.Registry) http.Handler {
	t.Helper()

	log := logger.NewNop()
	store := fixture.NewStore(fixture.Document{})
	attrCfg := config.AttributionConfig{MatchPolicy: "strict", Window: time.Hour}

	svc, err := services.NewAttributionService(attrCfg, []services.FlowRecordStore{store}, nil, reg, log)
	require.NoError(t, err)

	h := handlers.NewHandlers(handlers.Dependencies{
		Config:      attrCfg,
		Attribution: svc,
		Actors:      store,
		Logger:      log,
	})
	var rl apimiddleware.RateLimitStore
	if limits != nil {
		rl = limits
	}
	return NewRouter(cfg, h, rl, reg, log).Setup()
}

func get(h http.Handler, target, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Auth(t *testing.T) {
	cfg := config.Config{Auth: config.AuthConfig{APIKeys: []string{"k1", "k2"}}}
	h := newTestRouter(t, cfg, nil, metrics.NewRegistry())

	assert.Equal(t, http.StatusOK, get(h, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/actors", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/actors", "nope").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/actors", "k2").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/actors", nil)
	req.Header.Set("Authorization", "Basic k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_NoKeysConfigured(t *testing.T) {
	h := newTestRouter(t, config.Config{}, nil, metrics.NewRegistry())

	assert.Equal(t, http.StatusOK, get(h, "/api/v1/actors", "").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/api/v1/runs/last", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/api/v1/actors/alice/trace", "").Code)
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := config.Config{
		Auth:      config.AuthConfig{APIKeys: []string{"k1"}},
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 10},
	}

	limits := &fakeLimits{allowed: true}
	h := newTestRouter(t, cfg, limits, metrics.NewRegistry())
	rec := get(h, "/api/v1/actors", "k1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"key:k1"}, limits.keys)

	// public routes are never limited
	assert.Equal(t, http.StatusOK, get(h, "/health", "").Code)
	assert.Len(t, limits.keys, 1)

	blocked := newTestRouter(t, cfg, &fakeLimits{allowed: false}, metrics.NewRegistry())
	rec = get(blocked, "/api/v1/actors", "k1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRouter_Metrics(t *testing.T) {
	reg := metrics.NewRegistry()
	cfg := config.Config{Metrics: config.MetricsConfig{Enabled: true}}
	h := newTestRouter(t, cfg, nil, reg)

	assert.Equal(t, http.StatusOK, get(h, "/health", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/actors", "").Code)

	rec := get(h, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowattr_http_requests_total")
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
}

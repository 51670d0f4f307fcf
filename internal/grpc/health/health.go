// Package health exposes the grpc.health.v1 service, reporting NOT_SERVING
// while any backing store fails its health check.
package health

import (
	"context"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"flowattr-lab/pkg/logger"
)

// ServiceName is the service reported besides the overall "" status
const ServiceName = "flowattr.v1.AttributionService"

// DefaultInterval is how often dependencies are probed
const DefaultInterval = 10 * time.Second

// Checker is a dependency the monitor probes
type Checker interface {
	Health(ctx context.Context) error
}

// Monitor keeps a gRPC health server in sync with its dependencies
type Monitor struct {
	server   *health.Server
	checks   map[string]Checker
	interval time.Duration
	logger   *logger.Logger
}

// NewMonitor creates a monitor over checks. Statuses start as SERVING.
func NewMonitor(checks map[string]Checker, interval time.Duration, log *logger.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   log.WithComponent("grpc-health"),
	}
	m.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	return m
}

// Register registers the gRPC health check service
func (m *Monitor) Register(grpcServer *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcServer, m.server)
}

// Server returns the underlying health server
func (m *Monitor) Server() *health.Server {
	return m.server
}

// Run probes the dependencies every interval until ctx ends, then marks
// the service as shutting down
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check probes every dependency once and updates the serving status
func (m *Monitor) Check(ctx context.Context) bool {
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, m.interval/2)
		err := m.checks[name].Health(cctx)
		cancel()
		if err != nil {
			m.logger.Warn().Err(err).Str("dependency", name).Msg("dependency unhealthy")
			healthy = false
		}
	}

	if healthy {
		m.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		m.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

func (m *Monitor) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)
}

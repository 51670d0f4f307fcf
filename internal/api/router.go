package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"flowattr-lab/internal/api/handlers"
	apimiddleware "flowattr-lab/internal/api/middleware"
	"flowattr-lab/internal/config"
	"flowattr-lab/internal/metrics"
	"flowattr-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	limits   apimiddleware.RateLimitStore
	metrics  *metrics.Registry
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limits may be nil, which turns
// rate limiting off.
func NewRouter(cfg config.Config, h *handlers.Handlers, limits apimiddleware.RateLimitStore, reg *metrics.Registry, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limits:   limits,
		metrics:  reg,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger, r.metrics))
	router.Use(middleware.Recoverer)

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)

		if r.config.Metrics.Enabled && r.metrics != nil {
			path := r.config.Metrics.Path
			if path == "" {
				path = "/metrics"
			}
			pub.Handle(path, r.metrics.Handler())
		}
	})

	if len(r.config.Auth.APIKeys) == 0 {
		r.logger.Warn().Msg("no API keys configured, /api/v1 is unauthenticated")
	}

	// API v1 routes (authenticated)
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(apimiddleware.APIKeyAuth(r.config.Auth.APIKeys))
		if r.config.RateLimit.Enabled && r.limits != nil {
			api.Use(apimiddleware.RateLimiter(r.limits, r.config.RateLimit, r.logger))
		}

		// The event stream outlives any request timeout
		api.Get("/events/ws", r.handlers.Events.HandleWebSocket)

		api.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(r.requestTimeout()))

			timed.Route("/runs", func(runs chi.Router) {
				runs.Post("/", r.handlers.Runs.Trigger)
				runs.Get("/last", r.handlers.Runs.Last)
				runs.Get("/history", r.handlers.Runs.History)
			})

			timed.Get("/paths", r.handlers.Paths.Find)

			timed.Route("/actors", func(actors chi.Router) {
				actors.Get("/", r.handlers.Actors.List)
				actors.Get("/{name}/trace", r.handlers.Actors.Trace)
			})

			timed.Get("/graph/stats", r.handlers.Graph.GetStats)
			timed.Get("/events/stats", r.handlers.Events.GetStats)
		})
	})

	return router
}

// requestTimeout bounds request handling below the server write timeout
func (r *Router) requestTimeout() time.Duration {
	if t := r.config.Server.WriteTimeout; t > 0 {
		return t
	}
	return 60 * time.Second
}

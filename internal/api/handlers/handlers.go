package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/internal/streaming"
	"flowattr-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health *HealthHandler
	Runs   *RunsHandler
	Paths  *PathsHandler
	Actors *ActorsHandler
	Graph  *GraphHandler
	Events *StreamingHandler
}

// Dependencies holds dependencies for handlers. Everything but Attribution
// and Logger may be nil; the matching endpoints then answer 503.
type Dependencies struct {
	Config      config.AttributionConfig
	Version     string
	Attribution *services.AttributionService
	Tracer      *services.FlowTracer
	Actors      services.ActorStore
	GraphStore  services.GraphStore
	Hub         *streaming.WebSocketHub
	EventBus    *streaming.EventBus
	Checks      map[string]HealthChecker
	Logger      *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.Checks, deps.Logger),
		Runs:   NewRunsHandler(deps.Attribution, deps.Config.Window, deps.Logger),
		Paths:  NewPathsHandler(deps.Attribution, deps.Logger),
		Actors: NewActorsHandler(deps.Actors, deps.Tracer, deps.Logger),
		Graph:  NewGraphHandler(deps.Attribution, deps.GraphStore, deps.Logger),
		Events: NewStreamingHandler(deps.Hub, deps.EventBus, deps.Logger),
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// parseTimeQuery reads an optional RFC 3339 timestamp from the query string
func parseTimeQuery(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// parseWindowQuery reads the optional start and end query parameters
func parseWindowQuery(r *http.Request) (models.Timeframe, error) {
	start, err := parseTimeQuery(r, "start")
	if err != nil {
		return models.Timeframe{}, err
	}
	end, err := parseTimeQuery(r, "end")
	if err != nil {
		return models.Timeframe{}, err
	}
	return models.Timeframe{Start: start, End: end}, nil
}

func parseIntQuery(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/pkg/logger"
)

// ActorsHandler handles actor endpoints
type ActorsHandler struct {
	actors services.ActorStore
	tracer *services.FlowTracer
	logger *logger.Logger
}

// NewActorsHandler creates a new ActorsHandler
func NewActorsHandler(actors services.ActorStore, tracer *services.FlowTracer, log *logger.Logger) *ActorsHandler {
	return &ActorsHandler{
		actors: actors,
		tracer: tracer,
		logger: log.WithComponent("actors"),
	}
}

// List handles GET /api/v1/actors
func (h *ActorsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.actors == nil {
		respondError(w, http.StatusServiceUnavailable, "actor store not available")
		return
	}

	actors, err := h.actors.ListActors(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list actors")
		respondError(w, http.StatusInternalServerError, "failed to list actors")
		return
	}
	if actors == nil {
		actors = []*models.Actor{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  actors,
		"total": len(actors),
	})
}

// Trace handles GET /api/v1/actors/{name}/trace[?start=&end=]. A missing
// bound extends the timeframe to the epoch or to now.
func (h *ActorsHandler) Trace(w http.ResponseWriter, r *http.Request) {
	if h.tracer == nil {
		respondError(w, http.StatusServiceUnavailable, "flow tracing not available")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "actor name is required")
		return
	}

	window, err := parseWindowQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "start and end must be RFC 3339 timestamps")
		return
	}
	timeframe := models.NewTimeframe(window.Start, window.End)
	if !timeframe.Valid() {
		respondError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	trace, err := h.tracer.TraceActor(r.Context(), name, timeframe)
	switch {
	case errors.Is(err, services.ErrActorNotFound):
		respondError(w, http.StatusNotFound, "actor not found")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("actor", name).Msg("failed to trace actor")
		respondError(w, http.StatusInternalServerError, "failed to trace actor")
		return
	}

	respondJSON(w, http.StatusOK, trace)
}

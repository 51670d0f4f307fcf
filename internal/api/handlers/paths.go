package handlers

import (
	"errors"
	"net/http"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/pkg/logger"
)

// PathsHandler answers path queries over the flow graph
type PathsHandler struct {
	service *services.AttributionService
	logger  *logger.Logger
}

// NewPathsHandler creates a new PathsHandler
func NewPathsHandler(service *services.AttributionService, log *logger.Logger) *PathsHandler {
	return &PathsHandler{
		service: service,
		logger:  log.WithComponent("paths-handler"),
	}
}

// PathsQuery holds the query parameters of GET /api/v1/paths
type PathsQuery struct {
	From string `validate:"required"`
	To   string `validate:"required"`
}

// PathsResponse lists the simple paths found between two hosts
type PathsResponse struct {
	From   string           `json:"from"`
	To     string           `json:"to"`
	Window models.Timeframe `json:"window"`
	Paths  [][]string       `json:"paths"`
	Count  int              `json:"count"`
}

// Find handles GET /api/v1/paths?from=&to=[&start=&end=]. Without a window
// the graph of the last run is searched.
func (h *PathsHandler) Find(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "attribution service not available")
		return
	}

	q := PathsQuery{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	if err := models.ValidateStruct(q); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	window, err := parseWindowQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "start and end must be RFC 3339 timestamps")
		return
	}
	if !window.Start.IsZero() || !window.End.IsZero() {
		window = models.NewTimeframe(window.Start, window.End)
		if !window.Valid() {
			respondError(w, http.StatusBadRequest, "end must be after start")
			return
		}
	}

	paths, err := h.service.Paths(r.Context(), window, q.From, q.To)
	switch {
	case errors.Is(err, services.ErrNoGraph):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Str("from", q.From).Str("to", q.To).Msg("failed to find paths")
		respondError(w, http.StatusInternalServerError, "failed to find paths")
		return
	}

	respondJSON(w, http.StatusOK, PathsResponse{
		From:   q.From,
		To:     q.To,
		Window: window,
		Paths:  paths,
		Count:  len(paths),
	})
}

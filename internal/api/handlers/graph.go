package handlers

import (
	"net/http"
	"time"

	"flowattr-lab/internal/attribution"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/pkg/logger"
)

// GraphHandler handles graph-related HTTP requests
type GraphHandler struct {
	service *services.AttributionService
	store   services.GraphStore
	logger  *logger.Logger
}

// NewGraphHandler creates a new graph handler. store may be nil, in which
// case stats are computed from the in-memory graph of the last run.
func NewGraphHandler(service *services.AttributionService, store services.GraphStore, log *logger.Logger) *GraphHandler {
	return &GraphHandler{
		service: service,
		store:   store,
		logger:  log.WithComponent("graph-handler"),
	}
}

// GetStats handles GET /api/v1/graph/stats
func (h *GraphHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		stats, err := h.store.Stats(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to get graph stats")
			respondError(w, http.StatusInternalServerError, "failed to get graph stats")
			return
		}
		respondJSON(w, http.StatusOK, stats)
		return
	}

	var g *attribution.Graph
	if h.service != nil {
		g = h.service.LastGraph()
	}
	if g == nil {
		respondError(w, http.StatusNotFound, services.ErrNoGraph.Error())
		return
	}
	respondJSON(w, http.StatusOK, graphStats(g))
}

// graphStats summarizes an in-memory graph the way the graph store does
func graphStats(g *attribution.Graph) *models.GraphStats {
	stats := &models.GraphStats{
		TotalNodes:         int64(g.HostCount()),
		TotalRelationships: int64(g.EdgeCount()),
		RelationsByLabel:   make(map[string]int64),
		LastUpdated:        time.Now().UTC(),
	}
	for _, e := range g.Edges() {
		label := e.Label
		if label == "" {
			label = attribution.Unattributed
		}
		stats.RelationsByLabel[label]++
		if e.Attributed() {
			stats.AttributedRelationships++
		}
	}
	return stats
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/pkg/logger"
)

// RunsHandler triggers attribution runs and reports on past ones
type RunsHandler struct {
	service *services.AttributionService
	window  time.Duration
	logger  *logger.Logger
}

// NewRunsHandler creates a new RunsHandler. window is the default lookback
// of a run triggered without an explicit window.
func NewRunsHandler(service *services.AttributionService, window time.Duration, log *logger.Logger) *RunsHandler {
	if window <= 0 {
		window = time.Hour
	}
	return &RunsHandler{
		service: service,
		window:  window,
		logger:  log.WithComponent("runs-handler"),
	}
}

// RunRequest is the optional body of POST /api/v1/runs
type RunRequest struct {
	Start *time.Time `json:"start" validate:"required_with=End"`
	End   *time.Time `json:"end" validate:"required_with=Start"`
}

// window resolves the requested timeframe, defaulting to [now-window, now)
func (req RunRequest) window(now time.Time, lookback time.Duration) (models.Timeframe, error) {
	if req.Start == nil && req.End == nil {
		return models.Timeframe{Start: now.Add(-lookback), End: now}, nil
	}
	if err := models.ValidateStruct(req); err != nil {
		return models.Timeframe{}, err
	}
	tf := models.Timeframe{Start: req.Start.UTC(), End: req.End.UTC()}
	if !tf.Valid() {
		return models.Timeframe{}, errors.New("end must be after start")
	}
	return tf, nil
}

// Trigger handles POST /api/v1/runs
func (h *RunsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "attribution service not available")
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	window, err := req.window(time.Now().UTC(), h.window)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.service.Run(r.Context(), window)
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error().Err(err).Msg("attribution run failed")
		respondJSON(w, http.StatusInternalServerError, summary)
	default:
		respondJSON(w, http.StatusOK, summary)
	}
}

// Last handles GET /api/v1/runs/last
func (h *RunsHandler) Last(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "attribution service not available")
		return
	}

	summary, err := h.service.LastRun(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get last run")
		respondError(w, http.StatusInternalServerError, "failed to get last run")
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "no run recorded yet")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// History handles GET /api/v1/runs/history
func (h *RunsHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		respondError(w, http.StatusServiceUnavailable, "attribution service not available")
		return
	}

	limit := parseIntQuery(r, "limit", 20)
	history, err := h.service.RunHistory(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get run history")
		respondError(w, http.StatusInternalServerError, "failed to get run history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  history,
		"total": len(history),
		"limit": limit,
	})
}

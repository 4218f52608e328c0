package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/reporting"
)

// HandleFrontierChart handles GET /api/optimization/runs/{id}/frontier.png
func (h *Handler) HandleFrontierChart(w http.ResponseWriter, r *http.Request) {
	result, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	png, err := reporting.RenderFrontierChart(result.Frontier, "Efficient frontier")
	if errors.Is(err, reporting.ErrEmptyFrontier) {
		h.writeError(w, http.StatusNotFound, "Run has no frontier points")
		return
	}
	h.writePNG(w, result.RunID, png, err)
}

// HandleDensityChart handles GET /api/optimization/runs/{id}/density.png
func (h *Handler) HandleDensityChart(w http.ResponseWriter, r *http.Request) {
	result, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	png, err := reporting.RenderDensityChart(result.Density, result.Risk, "Portfolio return density")
	h.writePNG(w, result.RunID, png, err)
}

// HandleAllocationChart handles GET /api/optimization/runs/{id}/allocation.png
func (h *Handler) HandleAllocationChart(w http.ResponseWriter, r *http.Request) {
	result, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	png, err := reporting.RenderAllocationChart(result, "Portfolio allocation")
	h.writePNG(w, result.RunID, png, err)
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*optimization.Result, bool) {
	id := chi.URLParam(r, "id")
	result, err := h.runs.Get(id)
	if errors.Is(err, optimization.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "Run not found: "+id)
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		h.writeError(w, http.StatusInternalServerError, "Failed to load run")
		return nil, false
	}
	return result, true
}

func (h *Handler) writePNG(w http.ResponseWriter, runID string, png []byte, err error) {
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to render chart")
		h.writeError(w, http.StatusInternalServerError, "Failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

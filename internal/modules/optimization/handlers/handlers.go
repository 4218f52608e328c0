// Package handlers provides HTTP handlers for optimization runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/config"
	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/modules/universe"
)

// RunExecutor executes a run configuration. A nil series means the returns
// are built from stored prices.
type RunExecutor interface {
	Execute(ctx context.Context, cfg *config.RunConfig, series *optimization.ReturnSeries) (*optimization.Result, error)
}

// RunStore reads and deletes stored runs
type RunStore interface {
	Get(runID string) (*optimization.Result, error)
	List(limit int) ([]optimization.RunSummary, error)
	Delete(runID string) error
}

// PriceSyncer downloads prices into the history store
type PriceSyncer interface {
	SyncPrices(ctx context.Context, symbols []string, start, end time.Time) (*universe.SyncReport, error)
}

// Handler handles optimization HTTP requests
type Handler struct {
	runner RunExecutor
	runs   RunStore
	syncer PriceSyncer
	log    zerolog.Logger
}

// NewHandler creates a new optimization handler. syncer may be nil, in which
// case POST /prices/sync answers 503.
func NewHandler(runner RunExecutor, runs RunStore, syncer PriceSyncer, log zerolog.Logger) *Handler {
	return &Handler{
		runner: runner,
		runs:   runs,
		syncer: syncer,
		log:    log.With().Str("handler", "optimization").Logger(),
	}
}

// SeriesPayload is an inline table of periodic returns or prices. Null cells
// are gaps; rows containing one are dropped.
type SeriesPayload struct {
	Dates []string     `json:"dates,omitempty"`
	Rows  [][]*float64 `json:"rows"`
}

// RunRequest is the body of POST /api/optimization/runs.
type RunRequest struct {
	Config  json.RawMessage `json:"config"`
	Returns *SeriesPayload  `json:"returns,omitempty"`
	Prices  *SeriesPayload  `json:"prices,omitempty"`
}

// SyncRequest is the body of POST /api/prices/sync.
type SyncRequest struct {
	Symbols   []string `json:"symbols"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// HandleCreateRun handles POST /api/optimization/runs
func (h *Handler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Config) == 0 {
		h.writeError(w, http.StatusBadRequest, "Missing config")
		return
	}
	if req.Returns != nil && req.Prices != nil {
		h.writeError(w, http.StatusBadRequest, "Supply either returns or prices, not both")
		return
	}

	cfg, err := config.ParseRunConfig(req.Config)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	series, err := buildSeries(cfg.Assets, req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	result, err := h.runner.Execute(r.Context(), cfg, series)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, result)
}

// HandleListRuns handles GET /api/optimization/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	h.writeData(w, http.StatusOK, runs)
}

// HandleGetRun handles GET /api/optimization/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.runs.Get(id)
	if errors.Is(err, optimization.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "Run not found: "+id)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		h.writeError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// HandleDeleteRun handles DELETE /api/optimization/runs/{id}
func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.runs.Delete(id)
	if errors.Is(err, optimization.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "Run not found: "+id)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to delete run")
		h.writeError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSyncPrices handles POST /api/prices/sync
func (h *Handler) HandleSyncPrices(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Price sync is not configured")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Symbols) == 0 {
		h.writeError(w, http.StatusBadRequest, "No symbols provided")
		return
	}
	start, err := time.Parse(config.DateLayout, req.StartDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(config.DateLayout, req.EndDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}

	report, err := h.syncer.SyncPrices(r.Context(), req.Symbols, start, end)
	if err != nil {
		h.log.Error().Err(err).Strs("symbols", req.Symbols).Msg("Price sync failed")
		h.writeError(w, http.StatusBadGateway, "Price sync failed: "+err.Error())
		return
	}
	h.writeData(w, http.StatusOK, report)
}

func buildSeries(assets []string, req RunRequest) (*optimization.ReturnSeries, error) {
	payload := req.Returns
	if payload == nil {
		payload = req.Prices
	}
	if payload == nil {
		return nil, nil
	}

	u, err := optimization.NewAssetUniverse(assets)
	if err != nil {
		return nil, err
	}

	var dates []time.Time
	if len(payload.Dates) > 0 {
		if len(payload.Dates) != len(payload.Rows) {
			return nil, &optimization.ConfigurationError{Field: "returns", Reason: "dates and rows have different lengths"}
		}
		dates = make([]time.Time, len(payload.Dates))
		for i, s := range payload.Dates {
			d, err := time.Parse(config.DateLayout, s)
			if err != nil {
				return nil, &optimization.ConfigurationError{Field: "returns", Reason: "invalid date " + s}
			}
			dates[i] = d
		}
	}

	rows := make([][]float64, len(payload.Rows))
	for i, row := range payload.Rows {
		rows[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				rows[i][j] = math.NaN()
				continue
			}
			rows[i][j] = *v
		}
	}

	var series optimization.ReturnSeries
	if req.Prices != nil {
		series, err = optimization.ReturnsFromPrices(u, dates, rows)
	} else {
		series, err = optimization.NewReturnSeries(u, dates, rows)
	}
	if err != nil {
		return nil, err
	}
	return &series, nil
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		cfgErr       *optimization.ConfigurationError
		insufficient *optimization.InsufficientDataError
		singular     *optimization.SingularMatrixError
		infeasible   *optimization.InfeasibleError
		degenerate   *optimization.DegenerateDistributionError
		convergence  *optimization.ConvergenceError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &insufficient):
		return http.StatusBadRequest
	case errors.As(err, &singular), errors.As(err, &infeasible), errors.As(err, &degenerate),
		errors.As(err, &convergence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Optimization run failed")
		h.writeError(w, status, "Optimization run failed")
		return
	}
	h.log.Warn().Err(err).Int("status", status).Msg("Optimization run rejected")
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/greenledger/cbio-forecast/internal/audit"
	"github.com/greenledger/cbio-forecast/internal/contracts"
	"github.com/greenledger/cbio-forecast/internal/forecast"
	"github.com/greenledger/cbio-forecast/pkg/logger"
)

// ForecastService is the pipeline surface the handler drives
type ForecastService interface {
	TrainAndSave(ctx context.Context) (*contracts.TrainResult, error)
	Predict(ctx context.Context, daysAhead int) (*contracts.PredictionResult, error)
	DefaultDays() int
	MaxDays() int
}

// RunLister reads the training history
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]audit.TrainingRun, error)
}

// defaultRunLimit caps the history returned when no limit is given
const defaultRunLimit = 20

// ForecastHandler handles forecast API endpoints
// ⭐ SSOT: forecast endpoints are served only by this struct
type ForecastHandler struct {
	service ForecastService
	runs    RunLister
	logger  *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(service ForecastService, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		service: service,
		logger:  log,
	}
}

// WithRunHistory enables the training history endpoint
func (h *ForecastHandler) WithRunHistory(runs RunLister) *ForecastHandler {
	h.runs = runs
	return h
}

// Train retrains the model and returns the evaluation report
// POST /api/forecast/train
func (h *ForecastHandler) Train(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.TrainAndSave(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Training request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Predict forecasts the next N calendar days
// GET /api/forecast/predict?days=N
//
// N defaults to DefaultDays. A value that is not an integer in [1, MaxDays]
// gets 400; so does ErrInvalidDays from the service.
func (h *ForecastHandler) Predict(w http.ResponseWriter, r *http.Request) {
	days := h.service.DefaultDays()
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.service.MaxDays() {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("days must be an integer between 1 and %d", h.service.MaxDays()))
			return
		}
		days = n
	}

	result, err := h.service.Predict(r.Context(), days)
	if err != nil {
		if errors.Is(err, forecast.ErrInvalidDays) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).WithField("days", days).Error("Prediction request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// insufficient data is reported in the body, not the status
	respondJSON(w, http.StatusOK, result)
}

// Runs lists recent training runs
// GET /api/forecast/runs?limit=N
func (h *ForecastHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "training history needs DATABASE_URL")
		return
	}

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list training runs")
		respondError(w, http.StatusInternalServerError, "failed to list training runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

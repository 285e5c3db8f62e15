package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"

	"github.com/greenledger/cbio-forecast/internal/api/handlers"
	"github.com/greenledger/cbio-forecast/internal/contracts"
	"github.com/greenledger/cbio-forecast/pkg/logger"
	"github.com/greenledger/cbio-forecast/pkg/metrics"
)

type panickyService struct{}

func (panickyService) TrainAndSave(context.Context) (*contracts.TrainResult, error) {
	panic("boom")
}

func (panickyService) Predict(context.Context, int) (*contracts.PredictionResult, error) {
	return &contracts.PredictionResult{}, nil
}

func (panickyService) DefaultDays() int { return 30 }
func (panickyService) MaxDays() int     { return 365 }

func newTestRouter(metricsHandler http.Handler) http.Handler {
	log := logger.Nop()
	return NewRouter(
		handlers.NewForecastHandler(panickyService{}, log),
		handlers.NewHealthHandler(nil),
		metricsHandler,
		log,
	)
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).PredictionServed("ok")
	router := newTestRouter(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/forecast/predict").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(router, http.MethodGet, "/api/forecast/train").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/unknown").Code)

	rec := serve(router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cbio_predictions_total")
}

func TestRouter_MetricsDisabled(t *testing.T) {
	router := newTestRouter(nil)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/metrics").Code)
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	router := newTestRouter(nil)

	rec := serve(router, http.MethodPost, "/api/forecast/train")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

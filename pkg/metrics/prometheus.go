package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline metrics to Prometheus.
// A nil *Recorder is valid and records nothing.
// ⭐ SSOT: every metric name is declared here
type Recorder struct {
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	lastTestMAE      prometheus.Gauge
	lastTestR2       prometheus.Gauge
	predictions      *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
}

// New registers the recorder's collectors with reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		trainingRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cbio_training_runs_total",
				Help: "Total number of training runs by status",
			},
			[]string{"status"},
		),
		trainingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cbio_training_duration_seconds",
				Help:    "Duration of training runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		lastTestMAE: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cbio_model_test_mae",
				Help: "Test-window MAE of the last trained model",
			},
		),
		lastTestR2: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cbio_model_test_r2",
				Help: "Test-window R² of the last trained model",
			},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cbio_predictions_total",
				Help: "Total number of prediction requests by outcome",
			},
			[]string{"outcome"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cbio_market_data_fetch_duration_seconds",
				Help:    "Duration of market data fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"ticker", "status"},
		),
	}
}

// TrainingFinished records one training run
func (r *Recorder) TrainingFinished(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.trainingRuns.WithLabelValues(status).Inc()
	r.trainingDuration.Observe(d.Seconds())
}

// ModelEvaluated records the test metrics of the freshly trained model
func (r *Recorder) ModelEvaluated(testMAE, testR2 float64) {
	if r == nil {
		return
	}
	r.lastTestMAE.Set(testMAE)
	r.lastTestR2.Set(testR2)
}

// PredictionServed records one prediction request
func (r *Recorder) PredictionServed(outcome string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(outcome).Inc()
}

// MarketDataFetched records one market data fetch
func (r *Recorder) MarketDataFetched(ticker string, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.fetchDuration.WithLabelValues(ticker, status).Observe(d.Seconds())
}

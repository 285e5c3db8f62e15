package contracts

// TrainStatusSuccess is the only status a completed training run reports
const TrainStatusSuccess = "success"

// TrainResult is the evaluation report of one training run.
// It is returned to the caller and never persisted.
type TrainResult struct {
	Status    string        `json:"status"`
	RunID     string        `json:"run_id"`
	Metrics   TrainMetrics  `json:"metrics"`
	Analysis  string        `json:"analysis"`
	ChartData TestChartData `json:"chart_data"`
}

// TrainMetrics are the rounded evaluation metrics
type TrainMetrics struct {
	TestMAE  float64 `json:"test_mae"`
	TestRMSE float64 `json:"test_rmse"`
	TestMAPE float64 `json:"test_mape"` // percent
	TestR2   float64 `json:"test_r2"`
	TrainMAE float64 `json:"train_mae"`
}

// TestChartData holds parallel arrays over the test window
type TestChartData struct {
	TestDates       []string  `json:"test_dates"` // YYYY-MM-DD
	ActualPrices    []float64 `json:"actual_prices"`
	PredictedPrices []float64 `json:"predicted_prices"`
}

// PricePoint is one predicted day
type PricePoint struct {
	Date           string  `json:"date"` // YYYY-MM-DD
	PredictedPrice float64 `json:"predicted_price"`
}

// PredictionResult carries either predictions or an error message, never both
type PredictionResult struct {
	Predictions []PricePoint `json:"predictions,omitempty"`
	Error       string       `json:"error,omitempty"`
}

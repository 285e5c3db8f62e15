package forecast

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics are unrounded evaluation results
type Metrics struct {
	TestMAE  float64
	TestRMSE float64
	TestMAPE float64
	TestR2   float64
	TrainMAE float64
}

// MAE is the mean absolute error
func MAE(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	return floats.Distance(predicted, actual, 1) / float64(len(actual))
}

// RMSE is the root mean squared error
func RMSE(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	return floats.Distance(predicted, actual, 2) / math.Sqrt(float64(len(actual)))
}

// MAPE is MAE / mean(actual) × 100; 0 when the actual mean is 0
func MAPE(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	mean := stat.Mean(actual, nil)
	if mean == 0 {
		return 0
	}
	return MAE(predicted, actual) / mean * 100
}

// R2 is the coefficient of determination.
// For constant actuals it is 1 on a perfect fit and 0 otherwise.
func R2(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	if floats.Max(actual) == floats.Min(actual) {
		if floats.Equal(predicted, actual) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

// Evaluate computes test metrics plus the train MAE used for overfit detection
func Evaluate(testPred, testActual, trainPred, trainActual []float64) (Metrics, error) {
	if len(testPred) != len(testActual) || len(trainPred) != len(trainActual) {
		return Metrics{}, fmt.Errorf("prediction and actual lengths differ")
	}
	return Metrics{
		TestMAE:  MAE(testPred, testActual),
		TestRMSE: RMSE(testPred, testActual),
		TestMAPE: MAPE(testPred, testActual),
		TestR2:   R2(testPred, testActual),
		TrainMAE: MAE(trainPred, trainActual),
	}, nil
}

const (
	analysisPrefix = "Model trained successfully. "

	fitHigh     = "High R² indicates a good fit to the data. "
	fitModerate = "Moderate R², moderate fit. "
	fitLow      = "Low R², low fit, consider improving the model. "

	mapeLow  = "Low MAPE indicates accurate predictions. "
	mapeHigh = "High MAPE, less accurate predictions. "

	balanceOverfit  = "Possible overfitting detected."
	balanceUnderfit = "Possible underfitting."
	balanceOK       = "Model is well balanced."
)

// Analysis concatenates one sentence on fit, one on error size and one on train/test balance.
// The three checks are independent; every combination is reported.
func Analysis(m Metrics) string {
	var b strings.Builder
	b.WriteString(analysisPrefix)

	switch {
	case m.TestR2 > 0.7:
		b.WriteString(fitHigh)
	case m.TestR2 > 0.5:
		b.WriteString(fitModerate)
	default:
		b.WriteString(fitLow)
	}

	if m.TestMAPE < 10 {
		b.WriteString(mapeLow)
	} else {
		b.WriteString(mapeHigh)
	}

	switch {
	case m.TrainMAE*1.5 < m.TestMAE:
		b.WriteString(balanceOverfit)
	case m.TestMAE*1.5 < m.TrainMAE:
		b.WriteString(balanceUnderfit)
	default:
		b.WriteString(balanceOK)
	}
	return b.String()
}

// round rounds half away from zero to the given decimal places
func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func roundAll(values []float64, places int32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = round(v, places)
	}
	return out
}

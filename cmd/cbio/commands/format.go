package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/greenledger/cbio-forecast/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// every command prints through these helpers
// ═══════════════════════════════════════════════════════════

const (
	rule     = "═══════════════════════════════════════════════════════════"
	thinRule = "───────────────────────────────────────────────────────────"
)

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printHeader prints a formatted job header
func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, thinRule)
}

// printTrainResult renders the evaluation report
func printTrainResult(w io.Writer, r *contracts.TrainResult) {
	printHeader(w, "Training finished")
	fmt.Fprintf(w, "  Run ID    : %s\n", r.RunID)
	fmt.Fprintf(w, "  Test rows : %d\n", len(r.ChartData.TestDates))
	fmt.Fprintln(w, thinRule)
	fmt.Fprintf(w, "  Test MAE  : %.2f\n", r.Metrics.TestMAE)
	fmt.Fprintf(w, "  Test RMSE : %.2f\n", r.Metrics.TestRMSE)
	fmt.Fprintf(w, "  Test MAPE : %.2f%%\n", r.Metrics.TestMAPE)
	fmt.Fprintf(w, "  Test R²   : %.4f\n", r.Metrics.TestR2)
	fmt.Fprintf(w, "  Train MAE : %.2f\n", r.Metrics.TrainMAE)
	fmt.Fprintln(w, thinRule)
	fmt.Fprintf(w, "  %s\n", r.Analysis)
	fmt.Fprintln(w, rule)
}

// printPrediction renders predictions or the soft error
func printPrediction(w io.Writer, r *contracts.PredictionResult) {
	if r.Error != "" {
		fmt.Fprintf(w, "⚠️  %s\n", r.Error)
		return
	}

	printHeader(w, fmt.Sprintf("Forecast (%d days)", len(r.Predictions)))
	for _, p := range r.Predictions {
		fmt.Fprintf(w, "  %s  %10.2f\n", p.Date, p.PredictedPrice)
	}
	fmt.Fprintln(w, rule)
}

package commands

import (
	"github.com/spf13/cobra"
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast the next N calendar days",
	Long: `Loads the saved model and forecasts one price per calendar day after
the latest observed target date.

--days must be in [1, pipeline.max_days]; 0 means the configured default.
Negative or larger values fail with "days to predict out of range".

Example:
  go run ./cmd/cbio predict
  go run ./cmd/cbio predict --days 10 --json`,
	RunE: runPredict,
}

var (
	predictDays int
	predictJSON bool
)

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().IntVar(&predictDays, "days", 0, "days ahead (default from pipeline config)")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the result as JSON")
}

func runPredict(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	days := predictDays
	if days == 0 {
		days = a.service.DefaultDays()
	}

	result, err := a.service.Predict(cmd.Context(), days)
	if err != nil {
		return err
	}

	if predictJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printPrediction(cmd.OutOrStdout(), result)
	return nil
}

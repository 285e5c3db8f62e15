package commands

import (
	"github.com/spf13/cobra"
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and save a new model",
	Long: `Loads every source, fits the model on all but the last test window
of rows, writes the model and feature-list artifacts and prints the
evaluation on the held-out window.

Example:
  go run ./cmd/cbio train
  go run ./cmd/cbio train --json`,
	RunE: runTrain,
}

var trainJSON bool

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().BoolVar(&trainJSON, "json", false, "print the report as JSON")
}

func runTrain(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.service.TrainAndSave(cmd.Context())
	if err != nil {
		return err
	}

	if trainJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printTrainResult(cmd.OutOrStdout(), result)
	return nil
}

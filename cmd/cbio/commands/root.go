package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	pipelineConfig string
	verbose        bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cbio",
	Short: "CBIO price forecasting",
	Long: `CBIO price forecasting CLI

Trains a gradient-boosted model on the CBIO price history, the ethanol
price series and daily macro closes, and forecasts the coming days.

Usage:
  go run ./cmd/cbio [command]

Examples:
  go run ./cmd/cbio train
  go run ./cmd/cbio predict --days 30 --json
  go run ./cmd/cbio api --port 8089
  go run ./cmd/cbio scheduler`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pipelineConfig, "pipeline-config", "", "pipeline YAML file (overrides PIPELINE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

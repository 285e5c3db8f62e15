package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenledger/cbio-forecast/internal/api"
	"github.com/greenledger/cbio-forecast/internal/api/handlers"
	"github.com/greenledger/cbio-forecast/internal/scheduler"
	"github.com/greenledger/cbio-forecast/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the HTTP API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                      - Health check
  POST /api/forecast/train          - Train and save a model
  GET  /api/forecast/predict?days=N - Forecast N days (default 30)
  GET  /api/forecast/runs?limit=N   - Training history (needs DATABASE_URL)
  GET  /metrics                     - Prometheus metrics

days must be an integer in [1, pipeline.max_days]. Zero, negative or larger
values are rejected with 400 Bad Request; they are never clamped.

Example:
  go run ./cmd/cbio api
  go run ./cmd/cbio api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	forecastHandler := handlers.NewForecastHandler(a.service, a.log)
	var dbCheck handlers.DatabaseChecker
	if a.db != nil {
		dbCheck = a.db
		forecastHandler.WithRunHistory(a.runs)
	}

	router := api.NewRouter(
		forecastHandler,
		handlers.NewHealthHandler(dbCheck),
		a.metrics,
		a.log,
	)
	server := api.New(a.cfg, a.log, router)

	// SCHEDULER_ENABLED runs retraining inside the API process
	if a.cfg.Scheduler.Enabled {
		sched := scheduler.New(a.log, 1, 5*time.Minute)
		if err := sched.AddJob(jobs.NewRetrainJob(a.service, a.cfg.Scheduler.RetrainCron, a.log)); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Server running on http://localhost:%s\n", a.cfg.Port)

	if err := server.Run(ctx); err != nil {
		return err
	}

	a.log.Info("Server stopped")
	return nil
}

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenledger/cbio-forecast/internal/scheduler"
	"github.com/greenledger/cbio-forecast/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the retraining scheduler",
	Long: `Starts the scheduler daemon with the retraining job.

The schedule comes from RETRAIN_CRON (six fields, seconds first).
Default: "0 0 19 * * 1-5", weekdays at 7 PM.

Example:
  go run ./cmd/cbio scheduler
  go run ./cmd/cbio scheduler --run-now`,
	RunE: runScheduler,
}

var (
	schedulerRunNow  bool
	schedulerRetries int
)

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().BoolVar(&schedulerRunNow, "run-now", false, "train once before waiting for the schedule")
	schedulerCmd.Flags().IntVar(&schedulerRetries, "retries", 1, "retries of a failed training run")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sched := scheduler.New(a.log, schedulerRetries, 5*time.Minute)
	job := jobs.NewRetrainJob(a.service, a.cfg.Scheduler.RetrainCron, a.log)
	if err := sched.AddJob(job); err != nil {
		return err
	}

	if schedulerRunNow {
		if result, err := sched.RunJob(job.Name()); err != nil || !result.Success {
			a.log.WithField("error", result.Error).Warn("Initial training failed")
		}
	}

	sched.Start()
	defer sched.Stop()

	if next, err := sched.NextRun(job.Name()); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Scheduler running, next retrain at %s\n", next.Format(time.RFC3339))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return nil
}

package jobs

import (
	"context"
	"fmt"

	"github.com/greenledger/cbio-forecast/internal/contracts"
	"github.com/greenledger/cbio-forecast/pkg/logger"
)

// Trainer is the training entry point the job calls
type Trainer interface {
	TrainAndSave(ctx context.Context) (*contracts.TrainResult, error)
}

// RetrainJob refits the model on fresh data.
// Default schedule: 7 PM on weekdays, after the target series is updated.
type RetrainJob struct {
	trainer  Trainer
	schedule string
	logger   *logger.Logger
}

// NewRetrainJob creates a new retrain job
func NewRetrainJob(trainer Trainer, schedule string, log *logger.Logger) *RetrainJob {
	return &RetrainJob{
		trainer:  trainer,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *RetrainJob) Name() string {
	return "forecast_retrain"
}

// Schedule returns the cron schedule (with seconds)
func (j *RetrainJob) Schedule() string {
	return j.schedule
}

// Run trains and persists a new model
func (j *RetrainJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled retraining")

	result, err := j.trainer.TrainAndSave(ctx)
	if err != nil {
		return fmt.Errorf("retrain: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":    result.RunID,
		"test_mae":  result.Metrics.TestMAE,
		"test_mape": result.Metrics.TestMAPE,
		"test_r2":   result.Metrics.TestR2,
	}).Info("Scheduled retraining finished")

	return nil
}

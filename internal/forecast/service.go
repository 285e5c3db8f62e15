package forecast

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenledger/cbio-forecast/internal/contracts"
	"github.com/greenledger/cbio-forecast/pkg/metrics"
)

// trainingLockName is the cross-process lock guarding the artifact pair
const trainingLockName = "forecast:training"

// Locker serialises training runs across processes
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// RunRecorder persists finished training reports
type RunRecorder interface {
	SaveRun(ctx context.Context, result *contracts.TrainResult, duration time.Duration) error
}

// Service exposes the two pipeline entry points
// ⭐ SSOT: API, CLI and scheduler all go through this facade
type Service struct {
	trainer   *Trainer
	predictor *Predictor
	cfg       *PipelineConfig
	locker    Locker
	runs      RunRecorder
	lockTTL   time.Duration
	metrics   *metrics.Recorder
	log       zerolog.Logger
}

// NewService creates a new service; rec may be nil
func NewService(trainer *Trainer, predictor *Predictor, cfg *PipelineConfig, locker Locker, lockTTL time.Duration, rec *metrics.Recorder, log zerolog.Logger) *Service {
	return &Service{
		trainer:   trainer,
		predictor: predictor,
		cfg:       cfg,
		locker:    locker,
		lockTTL:   lockTTL,
		metrics:   rec,
		log:       log.With().Str("component", "forecast.service").Logger(),
	}
}

// RecordRunsTo makes the service persist every successful training report.
// A failed write is logged; the trained model stays in place.
func (s *Service) RecordRunsTo(r RunRecorder) *Service {
	s.runs = r
	return s
}

// DefaultDays is the prediction horizon used when the caller gives none
func (s *Service) DefaultDays() int {
	return s.cfg.Prediction.DefaultDays
}

// MaxDays is the largest accepted prediction horizon
func (s *Service) MaxDays() int {
	return s.cfg.Prediction.MaxDays
}

// TrainAndSave runs training under the training lock
func (s *Service) TrainAndSave(ctx context.Context) (*contracts.TrainResult, error) {
	start := time.Now()

	release, err := s.locker.Acquire(ctx, trainingLockName, s.lockTTL)
	if err != nil {
		s.metrics.TrainingFinished("locked", time.Since(start))
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("Failed to release training lock")
		}
	}()

	result, err := s.trainer.Train(ctx)
	if err != nil {
		s.metrics.TrainingFinished("error", time.Since(start))
		s.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Training failed")
		return nil, err
	}

	elapsed := time.Since(start)
	s.metrics.TrainingFinished(contracts.TrainStatusSuccess, elapsed)
	s.metrics.ModelEvaluated(result.Metrics.TestMAE, result.Metrics.TestR2)

	if s.runs != nil {
		if err := s.runs.SaveRun(context.WithoutCancel(ctx), result, elapsed); err != nil {
			s.log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to record training run")
		}
	}
	return result, nil
}

// Predict forecasts daysAhead calendar days
func (s *Service) Predict(ctx context.Context, daysAhead int) (*contracts.PredictionResult, error) {
	result, err := s.predictor.Predict(ctx, daysAhead)
	switch {
	case err != nil:
		s.metrics.PredictionServed("error")
		s.log.Error().Err(err).Int("days", daysAhead).Msg("Prediction failed")
		return nil, err
	case result.Error != "":
		s.metrics.PredictionServed("insufficient_data")
	default:
		s.metrics.PredictionServed("ok")
	}
	return result, nil
}

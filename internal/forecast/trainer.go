package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greenledger/cbio-forecast/internal/contracts"
	"github.com/greenledger/cbio-forecast/internal/features"
	"github.com/greenledger/cbio-forecast/internal/loader"
	"github.com/greenledger/cbio-forecast/internal/series"
)

// SeriesLoader is the loading surface the orchestrators need
type SeriesLoader interface {
	LoadTarget(ctx context.Context, source string) (*series.Frame, error)
	LoadSecondary(ctx context.Context, source, fallback string) (*series.Frame, error)
	LoadMacro(ctx context.Context, specs []loader.MacroSpec, start, end time.Time) ([]*series.Frame, error)
}

// Sources names the three tabular inputs
type Sources struct {
	Target            string
	Secondary         string
	SecondaryFallback string
}

// Trainer runs the training pipeline end to end
type Trainer struct {
	cfg     *PipelineConfig
	sources Sources
	loader  SeriesLoader
	store   *ArtifactStore
	log     zerolog.Logger
}

// NewTrainer creates a new trainer
func NewTrainer(cfg *PipelineConfig, sources Sources, ld SeriesLoader, store *ArtifactStore, log zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:     cfg,
		sources: sources,
		loader:  ld,
		store:   store,
		log:     log.With().Str("component", "forecast.trainer").Logger(),
	}
}

// dataset loads every source over the target's date range and prepares feature rows
func (t *Trainer) dataset(ctx context.Context) (*features.Set, error) {
	target, err := t.loader.LoadTarget(ctx, t.sources.Target)
	if err != nil {
		return nil, err
	}
	first, last := target.FirstDate(), target.LastDate()

	secondary, err := t.loader.LoadSecondary(ctx, t.sources.Secondary, t.sources.SecondaryFallback)
	if err != nil {
		return nil, err
	}
	macro, err := t.loader.LoadMacro(ctx, t.cfg.MacroTickers, first, last)
	if err != nil {
		return nil, err
	}

	frames := append([]*series.Frame{target, secondary.Clip(first, last)}, macro...)
	merged, err := series.Merge(frames...)
	if err != nil {
		return nil, err
	}
	merged = merged.FillForward().FillBackward()
	t.log.Debug().Int("rows", merged.Len()).Strs("columns", merged.Columns()).Msg("Sources merged")

	set, err := features.PrepareFeatures(merged, t.cfg.TargetColumn, t.cfg.Lags)
	if err != nil {
		return nil, err
	}
	t.log.Debug().Int("rows", set.Len()).Int("features", len(set.Columns)).Msg("Features prepared")
	return set, nil
}

// Train fits, persists and evaluates a new model
func (t *Trainer) Train(ctx context.Context) (*contracts.TrainResult, error) {
	runID := uuid.NewString()
	log := t.log.With().Str("run_id", runID).Logger()
	log.Info().Msg("Training started")

	set, err := t.dataset(ctx)
	if err != nil {
		return nil, err
	}
	if set.Len() <= t.cfg.TestWindow {
		return nil, fmt.Errorf("%w: have %d, test window is %d", ErrNotEnoughRows, set.Len(), t.cfg.TestWindow)
	}

	train, test, err := set.Split(t.cfg.TestWindow)
	if err != nil {
		return nil, err
	}
	columns := set.Columns

	log.Info().
		Int("train_rows", train.Len()).
		Int("test_rows", test.Len()).
		Int("features", len(columns)).
		Msg("Fitting model")

	model := NewModel(t.cfg.Model)
	if err := model.Train(train, columns); err != nil {
		return nil, err
	}
	log.Debug().
		Strs("features", model.Features()).
		Interface("split_counts", model.SplitCounts()).
		Msg("Model fitted")
	if err := t.store.Save(model, columns, runID); err != nil {
		return nil, err
	}

	testPred, err := model.Predict(test, columns)
	if err != nil {
		return nil, err
	}
	trainPred, err := model.Predict(train, columns)
	if err != nil {
		return nil, err
	}

	m, err := Evaluate(testPred, test.Targets(), trainPred, train.Targets())
	if err != nil {
		return nil, err
	}
	analysis := Analysis(m)

	log.Info().
		Float64("test_mae", m.TestMAE).
		Float64("test_rmse", m.TestRMSE).
		Float64("test_mape", m.TestMAPE).
		Float64("test_r2", m.TestR2).
		Float64("train_mae", m.TrainMAE).
		Str("analysis", analysis).
		Msg("Training finished")

	return buildTrainResult(runID, m, analysis, test, testPred), nil
}

func buildTrainResult(runID string, m Metrics, analysis string, test *features.Set, testPred []float64) *contracts.TrainResult {
	dates := make([]string, test.Len())
	for i, d := range test.Dates() {
		dates[i] = d.Format(series.DateLayout)
	}

	return &contracts.TrainResult{
		Status: contracts.TrainStatusSuccess,
		RunID:  runID,
		Metrics: contracts.TrainMetrics{
			TestMAE:  round(m.TestMAE, 2),
			TestRMSE: round(m.TestRMSE, 2),
			TestMAPE: round(m.TestMAPE, 2),
			TestR2:   round(m.TestR2, 4),
			TrainMAE: round(m.TrainMAE, 2),
		},
		Analysis: analysis,
		ChartData: contracts.TestChartData{
			TestDates:       dates,
			ActualPrices:    roundAll(test.Targets(), 2),
			PredictedPrices: roundAll(testPred, 2),
		},
	}
}

package forecast

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenledger/cbio-forecast/internal/contracts"
	"github.com/greenledger/cbio-forecast/internal/features"
	"github.com/greenledger/cbio-forecast/internal/series"
)

// Predictor forecasts target prices for the calendar days after the latest observation
type Predictor struct {
	cfg     *PipelineConfig
	sources Sources
	loader  SeriesLoader
	store   *ArtifactStore
	log     zerolog.Logger
}

// NewPredictor creates a new predictor
func NewPredictor(cfg *PipelineConfig, sources Sources, ld SeriesLoader, store *ArtifactStore, log zerolog.Logger) *Predictor {
	return &Predictor{
		cfg:     cfg,
		sources: sources,
		loader:  ld,
		store:   store,
		log:     log.With().Str("component", "forecast.predictor").Logger(),
	}
}

// Predict returns one price per future day that has every feature defined.
// When none survive the result carries an error message instead of predictions.
// daysAhead outside [1, MaxDays] returns ErrInvalidDays.
func (p *Predictor) Predict(ctx context.Context, daysAhead int) (*contracts.PredictionResult, error) {
	if daysAhead < 1 || daysAhead > p.cfg.Prediction.MaxDays {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidDays, daysAhead, p.cfg.Prediction.MaxDays)
	}

	model, columns, err := p.store.Load()
	if err != nil {
		return nil, err
	}

	target, err := p.loader.LoadTarget(ctx, p.sources.Target)
	if err != nil {
		return nil, err
	}
	latest := target.LastDate()
	recentStart := latest.AddDate(0, 0, -(p.cfg.MaxLag() + p.cfg.Prediction.HistoryPadding))

	future := make([]time.Time, daysAhead)
	for i := range future {
		future[i] = latest.AddDate(0, 0, i+1)
	}
	lastFuture := future[len(future)-1]

	secondary, err := p.loader.LoadSecondary(ctx, p.sources.Secondary, p.sources.SecondaryFallback)
	if err != nil {
		return nil, err
	}
	macro, err := p.loader.LoadMacro(ctx, p.cfg.MacroTickers, recentStart, latest.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	window, err := target.Clip(recentStart, time.Time{}).AppendEmpty(future)
	if err != nil {
		return nil, err
	}
	frames := append([]*series.Frame{window, secondary.Clip(recentStart, lastFuture)}, macro...)
	merged, err := series.Merge(frames...)
	if err != nil {
		return nil, err
	}

	// forward fill only: future rows have nothing to back-fill from
	set, err := features.PrepareFeatures(merged.FillForward(), p.cfg.TargetColumn, p.cfg.Lags)
	if err != nil {
		return nil, err
	}

	// a column mismatch is fatal even when no future row would survive
	if !slices.Equal(columns, set.Columns) {
		return nil, &ModelError{
			Op:  "predict",
			Err: fmt.Errorf("%w: persisted %v, prepared %v", ErrFeatureMismatch, columns, set.Columns),
		}
	}

	wanted := make(map[time.Time]bool, len(future))
	for _, d := range future {
		wanted[d] = true
	}
	rows := set.Filter(func(r features.Row) bool { return wanted[r.Date] })

	if rows.Len() == 0 {
		p.log.Warn().
			Int("days", daysAhead).
			Str("latest", latest.Format(series.DateLayout)).
			Msg("No future row has every feature defined")
		return &contracts.PredictionResult{Error: ErrInsufficientData.Error()}, nil
	}

	prices, err := model.Predict(rows, columns)
	if err != nil {
		return nil, err
	}

	result := &contracts.PredictionResult{Predictions: make([]contracts.PricePoint, rows.Len())}
	for i, r := range rows.Rows {
		result.Predictions[i] = contracts.PricePoint{
			Date:           r.Date.Format(series.DateLayout),
			PredictedPrice: round(prices[i], 2),
		}
	}

	p.log.Debug().
		Int("requested", daysAhead).
		Int("predicted", len(result.Predictions)).
		Msg("Predictions generated")
	return result, nil
}

package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/cbio-forecast/internal/loader"
	"github.com/greenledger/cbio-forecast/internal/series"
)

func trainedPipeline(t *testing.T) *testPipeline {
	t.Helper()
	p := newTestPipeline(t, 300)
	_, err := p.trainer.Train(context.Background())
	require.NoError(t, err)
	return p
}

func TestPredictor_Predict(t *testing.T) {
	p := trainedPipeline(t)
	latest := p.loader.target.LastDate()

	result, err := p.predictor.Predict(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, result.Error)
	require.Len(t, result.Predictions, 10)

	for i, pt := range result.Predictions {
		assert.Equal(t, latest.AddDate(0, 0, i+1).Format(series.DateLayout), pt.Date)
		assert.Greater(t, pt.PredictedPrice, 0.0)
		assert.Equal(t, round(pt.PredictedPrice, 2), pt.PredictedPrice)
	}
}

func TestPredictor_NoArtifacts(t *testing.T) {
	p := newTestPipeline(t, 300)

	_, err := p.predictor.Predict(context.Background(), 10)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestPredictor_InsufficientHistoryIsSoftError(t *testing.T) {
	p := trainedPipeline(t)

	// secondary stops long before the recent window
	p.loader.secondary = p.loader.secondary.Clip(time.Time{}, origin.AddDate(0, 0, 200))

	result, err := p.predictor.Predict(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.Predictions)
}

func TestPredictor_FeatureMismatch(t *testing.T) {
	p := trainedPipeline(t)

	renamed := testPipelineConfig()
	renamed.MacroTickers = []loader.MacroSpec{
		{Ticker: "BRL=X", Column: "Dolar"},
		{Ticker: "BZ=F", Column: "Brent"},
	}
	predictor := NewPredictor(renamed, Sources{}, p.loader, p.store, zerolog.Nop())

	_, err := predictor.Predict(context.Background(), 5)
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestPredictor_FeatureMismatchWinsOverInsufficientData(t *testing.T) {
	p := trainedPipeline(t)
	p.loader.secondary = p.loader.secondary.Clip(time.Time{}, origin.AddDate(0, 0, 200))

	renamed := testPipelineConfig()
	renamed.MacroTickers = []loader.MacroSpec{
		{Ticker: "BRL=X", Column: "Dolar"},
		{Ticker: "BZ=F", Column: "Brent"},
	}
	predictor := NewPredictor(renamed, Sources{}, p.loader, p.store, zerolog.Nop())

	result, err := predictor.Predict(context.Background(), 10)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestPredictor_DaysOutOfRange(t *testing.T) {
	p := trainedPipeline(t)

	for _, days := range []int{0, -1, p.cfg.Prediction.MaxDays + 1} {
		_, err := p.predictor.Predict(context.Background(), days)
		assert.ErrorIs(t, err, ErrInvalidDays, "days=%d", days)
	}
}

func TestPredictor_ShortHistoryDropsEarlyFutureRows(t *testing.T) {
	p := trainedPipeline(t)

	// a business-day target: weekends removed, so the recent window holds fewer than 21 rows
	var idx []int
	for i, d := range p.loader.target.Dates() {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			idx = append(idx, i)
		}
	}
	p.loader.target = p.loader.target.Rows(idx)
	p.loader.secondary = p.loader.secondary.Rows(idx)

	result, err := p.predictor.Predict(context.Background(), 30)
	require.NoError(t, err)
	require.Empty(t, result.Error)

	// every surviving row is a requested future date, ascending, none beyond the horizon
	latest := p.loader.target.LastDate()
	last := latest
	for _, pt := range result.Predictions {
		d, err := time.Parse(series.DateLayout, pt.Date)
		require.NoError(t, err)
		assert.True(t, d.After(last))
		assert.False(t, d.After(latest.AddDate(0, 0, 30)))
		last = d
	}
	assert.LessOrEqual(t, len(result.Predictions), 30)
}

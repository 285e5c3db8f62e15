package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/cbio-forecast/internal/contracts"
	"github.com/greenledger/cbio-forecast/internal/series"
)

func TestTrainer_Train(t *testing.T) {
	p := newTestPipeline(t, 300)

	result, err := p.trainer.Train(context.Background())
	require.NoError(t, err)

	assert.Equal(t, contracts.TrainStatusSuccess, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, strings.HasPrefix(result.Analysis, analysisPrefix))

	chart := result.ChartData
	require.Len(t, chart.TestDates, p.cfg.TestWindow)
	require.Len(t, chart.ActualPrices, p.cfg.TestWindow)
	require.Len(t, chart.PredictedPrices, p.cfg.TestWindow)
	assert.Equal(t, origin.AddDate(0, 0, 299).Format(series.DateLayout), chart.TestDates[len(chart.TestDates)-1])
	for i := 1; i < len(chart.TestDates); i++ {
		assert.Less(t, chart.TestDates[i-1], chart.TestDates[i])
	}
}

func TestTrainer_ReloadReproducesReportedPredictions(t *testing.T) {
	p := newTestPipeline(t, 300)
	ctx := context.Background()

	result, err := p.trainer.Train(ctx)
	require.NoError(t, err)

	model, columns, err := p.store.Load()
	require.NoError(t, err)

	set, err := p.trainer.dataset(ctx)
	require.NoError(t, err)
	_, test, err := set.Split(p.cfg.TestWindow)
	require.NoError(t, err)

	pred, err := model.Predict(test, columns)
	require.NoError(t, err)
	assert.Equal(t, result.ChartData.PredictedPrices, roundAll(pred, 2))

	// MAPE is MAE / mean(actual) × 100 on the test window
	actual := test.Targets()
	var sum float64
	for _, v := range actual {
		sum += v
	}
	mape := MAE(pred, actual) / (sum / float64(len(actual))) * 100
	assert.InDelta(t, round(mape, 2), result.Metrics.TestMAPE, 1e-9)
	assert.InDelta(t, round(MAE(pred, actual), 2), result.Metrics.TestMAE, 1e-9)
}

func TestTrainer_FeatureColumns(t *testing.T) {
	p := newTestPipeline(t, 300)

	_, err := p.trainer.Train(context.Background())
	require.NoError(t, err)

	_, columns, err := p.store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Preco_Etanol", "Dolar", "Petroleo", "Lag_1", "Lag_5", "Lag_21"}, columns)
}

func TestTrainer_Deterministic(t *testing.T) {
	a, err := newTestPipeline(t, 260).trainer.Train(context.Background())
	require.NoError(t, err)
	b, err := newTestPipeline(t, 260).trainer.Train(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, a.ChartData, b.ChartData)
	assert.Equal(t, a.Analysis, b.Analysis)
}

func TestTrainer_NotEnoughRows(t *testing.T) {
	// 141 days - 21 lag rows = 120 rows, equal to the test window
	p := newTestPipeline(t, 141)

	_, err := p.trainer.Train(context.Background())
	assert.ErrorIs(t, err, ErrNotEnoughRows)

	_, _, err = p.store.Load()
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestTrainer_LoadErrorPropagates(t *testing.T) {
	p := newTestPipeline(t, 300)
	p.loader.targetErr = &DataLoadError{Source: "cbio.csv", Err: errors.New("boom")}

	_, err := p.trainer.Train(context.Background())
	var loadErr *DataLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "cbio.csv", loadErr.Source)
}

func TestTrainer_SplitCoversProcessedRange(t *testing.T) {
	// 221 days - 21 lag rows = 200 feature rows
	p := newTestPipeline(t, 221)
	set, err := p.trainer.dataset(context.Background())
	require.NoError(t, err)
	require.Equal(t, 200, set.Len())

	train, test, err := set.Split(p.cfg.TestWindow)
	require.NoError(t, err)
	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 120, test.Len())

	all := append(train.Dates(), test.Dates()...)
	assert.Equal(t, set.Dates(), all)
	assert.True(t, train.Dates()[79].Before(test.Dates()[0]))
}

func TestTrainer_BlankCellsAreFilled(t *testing.T) {
	p := newTestPipeline(t, 300)
	p.loader.target = dailyFrame("Preco_CBIO", 300, func(i int) float64 {
		if i == 100 {
			return math.NaN()
		}
		return targetPrice(i)
	})
	p.loader.secondary = dailyFrame("Preco_Etanol", 300, func(i int) float64 {
		if i == 150 {
			return math.NaN()
		}
		return 2.5
	})

	set, err := p.trainer.dataset(context.Background())
	require.NoError(t, err)

	gap := origin.AddDate(0, 0, 100)
	var found bool
	for i, r := range set.Rows {
		if !r.Date.Equal(gap) {
			continue
		}
		found = true
		assert.Equal(t, targetPrice(99), r.Target, "gap takes the previous price")
		next := set.Rows[i+1]
		assert.Equal(t, targetPrice(99), next.Values[slices.Index(set.Columns, "Lag_1")])
	}
	assert.True(t, found, "the gap row is kept")

	for _, r := range set.Rows {
		assert.Equal(t, 2.5, r.Values[slices.Index(set.Columns, "Preco_Etanol")])
	}
	assert.Equal(t, 300-p.cfg.MaxLag(), set.Len())

	_, err = p.trainer.Train(context.Background())
	assert.NoError(t, err)
}

func TestTrainer_LogsFittedModel(t *testing.T) {
	p := newTestPipeline(t, 300)
	var buf bytes.Buffer
	trainer := NewTrainer(p.cfg, Sources{}, p.loader, p.store, zerolog.New(&buf).Level(zerolog.DebugLevel))

	_, err := trainer.Train(context.Background())
	require.NoError(t, err)

	var fitted map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		if event["message"] == "Model fitted" {
			fitted = event
		}
	}
	require.NotNil(t, fitted)
	assert.Len(t, fitted["features"], 6)
	assert.NotEmpty(t, fitted["split_counts"])
}

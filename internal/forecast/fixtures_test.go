package forecast

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenledger/cbio-forecast/internal/loader"
	"github.com/greenledger/cbio-forecast/internal/series"
)

var origin = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func targetPrice(i int) float64 {
	return 80 + 0.05*float64(i) + 4*math.Sin(float64(i)/9)
}

func dailyFrame(column string, n int, value func(int) float64) *series.Frame {
	points := make([]series.Point, n)
	for i := range points {
		points[i] = series.Point{Date: origin.AddDate(0, 0, i), Value: value(i)}
	}
	return series.FromPoints(column, points)
}

// fakeLoader serves synthetic daily series; macro closes skip weekends
type fakeLoader struct {
	target    *series.Frame
	secondary *series.Frame
	targetErr error
}

func newFakeLoader(days int) *fakeLoader {
	return &fakeLoader{
		target:    dailyFrame("Preco_CBIO", days, targetPrice),
		secondary: dailyFrame("Preco_Etanol", days, func(i int) float64 { return 2.5 + 0.3*math.Cos(float64(i)/15) }),
	}
}

func (f *fakeLoader) LoadTarget(context.Context, string) (*series.Frame, error) {
	if f.targetErr != nil {
		return nil, f.targetErr
	}
	return f.target, nil
}

func (f *fakeLoader) LoadSecondary(context.Context, string, string) (*series.Frame, error) {
	return f.secondary, nil
}

func (f *fakeLoader) LoadMacro(_ context.Context, specs []loader.MacroSpec, start, end time.Time) ([]*series.Frame, error) {
	var frames []*series.Frame
	for k, spec := range specs {
		var points []series.Point
		for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
			if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
				continue
			}
			i := int(d.Sub(origin).Hours() / 24)
			points = append(points, series.Point{Date: d, Value: float64(5*(k+1)) + math.Sin(float64(i)/7)})
		}
		if len(points) == 0 {
			return nil, &loader.DataLoadError{Source: "market:" + spec.Ticker, Err: loader.ErrNoData}
		}
		frames = append(frames, series.FromPoints(spec.Column, points).FillForward().FillBackward())
	}
	return frames, nil
}

func testPipelineConfig() *PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.Model.NEstimators = 60
	cfg.Model.LearningRate = 0.1
	cfg.Model.MaxDepth = 3
	return cfg
}

func testStore(t *testing.T) *ArtifactStore {
	t.Helper()
	dir := t.TempDir()
	return NewArtifactStore(filepath.Join(dir, "cbio_prediction_model.json"), filepath.Join(dir, "model_features.json"))
}

type testPipeline struct {
	cfg       *PipelineConfig
	loader    *fakeLoader
	store     *ArtifactStore
	trainer   *Trainer
	predictor *Predictor
}

func newTestPipeline(t *testing.T, days int) *testPipeline {
	t.Helper()
	cfg := testPipelineConfig()
	ld := newFakeLoader(days)
	store := testStore(t)
	return &testPipeline{
		cfg:       cfg,
		loader:    ld,
		store:     store,
		trainer:   NewTrainer(cfg, Sources{}, ld, store, zerolog.Nop()),
		predictor: NewPredictor(cfg, Sources{}, ld, store, zerolog.Nop()),
	}
}

// stubLocker grants or refuses the lock and counts releases
type stubLocker struct {
	err      error
	released int
}

func (l *stubLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

var errLocked = errors.New("locked")

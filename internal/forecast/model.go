package forecast

import (
	"fmt"
	"slices"

	"github.com/greenledger/cbio-forecast/internal/features"
	"github.com/greenledger/cbio-forecast/internal/gbm"
)

// Model wraps the boosted tree regressor with the feature contract of this pipeline
type Model struct {
	params   gbm.Params
	ensemble *gbm.Ensemble
}

// NewModel creates an unfit model
func NewModel(params gbm.Params) *Model {
	return &Model{params: params}
}

// modelFromEnsemble wraps a loaded ensemble
func modelFromEnsemble(e *gbm.Ensemble) *Model {
	return &Model{params: e.Params, ensemble: e}
}

// Fitted reports whether Train (or a load) has produced an ensemble
func (m *Model) Fitted() bool {
	return m.ensemble != nil
}

// Features returns the fitted feature columns in order
func (m *Model) Features() []string {
	if m.ensemble == nil {
		return nil
	}
	return slices.Clone(m.ensemble.Features)
}

// SplitCounts reports how often each feature splits a node; nil before fitting
func (m *Model) SplitCounts() map[string]int {
	if m.ensemble == nil {
		return nil
	}
	return m.ensemble.SplitCounts()
}

// Train fits on the given rows using columns as the feature matrix
func (m *Model) Train(rows *features.Set, columns []string) error {
	if rows == nil || rows.Len() == 0 {
		return &ModelError{Op: "train", Err: gbm.ErrEmptyTrainingSet}
	}
	X, err := rows.Matrix(columns)
	if err != nil {
		return &ModelError{Op: "train", Err: err}
	}

	ensemble, err := gbm.Fit(X, rows.Targets(), columns, m.params)
	if err != nil {
		return &ModelError{Op: "train", Err: err}
	}
	m.ensemble = ensemble
	return nil
}

// Predict scores rows. columns must equal the fitted feature list, names and order.
func (m *Model) Predict(rows *features.Set, columns []string) ([]float64, error) {
	if m.ensemble == nil {
		return nil, &ModelError{Op: "predict", Err: ErrModelNotTrained}
	}
	if !slices.Equal(columns, m.ensemble.Features) {
		return nil, &ModelError{
			Op:  "predict",
			Err: fmt.Errorf("%w: got %v, fitted %v", ErrFeatureMismatch, columns, m.ensemble.Features),
		}
	}
	X, err := rows.Matrix(columns)
	if err != nil {
		return nil, &ModelError{Op: "predict", Err: err}
	}

	out, err := m.ensemble.Predict(X)
	if err != nil {
		return nil, &ModelError{Op: "predict", Err: err}
	}
	return out, nil
}

package forecast

import (
	"errors"
	"fmt"

	"github.com/greenledger/cbio-forecast/internal/loader"
)

// DataLoadError is raised by the loaders; re-exported for callers of this package
type DataLoadError = loader.DataLoadError

var (
	// ErrModelNotFound means no training run has produced artifacts yet
	ErrModelNotFound = errors.New("model not found, run training first")
	// ErrModelNotTrained means predict was called on an unfit model
	ErrModelNotTrained = errors.New("model not trained")
	// ErrFeatureMismatch means the prepared columns differ from the fitted ones
	ErrFeatureMismatch = errors.New("feature columns do not match the trained model")
	// ErrInsufficientData is reported inside PredictionResult, never returned
	ErrInsufficientData = errors.New("insufficient data to predict, check the data sources")
	// ErrNotEnoughRows means the prepared dataset cannot fill the test window
	ErrNotEnoughRows = errors.New("not enough feature rows for the test window")
	// ErrInvalidDays means the requested horizon is <= 0 or above MaxDays; it is never clamped
	ErrInvalidDays = errors.New("days to predict out of range")
)

// ModelError reports a failure to fit, use or persist the model
type ModelError struct {
	Op  string
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Op, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

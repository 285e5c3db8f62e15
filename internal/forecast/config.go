package forecast

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/greenledger/cbio-forecast/internal/features"
	"github.com/greenledger/cbio-forecast/internal/gbm"
	"github.com/greenledger/cbio-forecast/internal/loader"
)

// PipelineConfig holds the fixed knobs of training and prediction
// ⭐ SSOT: lag offsets, tickers, test window and model params are defined here
type PipelineConfig struct {
	TargetColumn    string             `yaml:"target_column" json:"target_column" validate:"required"`
	SecondaryColumn string             `yaml:"secondary_column" json:"secondary_column" validate:"required,nefield=TargetColumn"`
	Lags            []int              `yaml:"lags" json:"lags" validate:"required,min=1,unique,dive,min=1"`
	MacroTickers    []loader.MacroSpec `yaml:"macro_tickers" json:"macro_tickers" validate:"required,min=1,dive"`
	TestWindow      int                `yaml:"test_window" json:"test_window" validate:"min=1"`
	Model           gbm.Params         `yaml:"model" json:"model"`
	Prediction      PredictionConfig   `yaml:"prediction" json:"prediction"`
}

// PredictionConfig bounds prediction requests
type PredictionConfig struct {
	DefaultDays int `yaml:"default_days" json:"default_days" validate:"min=1,ltefield=MaxDays"`
	MaxDays     int `yaml:"max_days" json:"max_days" validate:"min=1"`
	// extra calendar days of history loaded on top of the largest lag
	HistoryPadding int `yaml:"history_padding" json:"history_padding" validate:"min=0"`
}

// DefaultPipelineConfig returns the production configuration
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		TargetColumn:    "Preco_CBIO",
		SecondaryColumn: "Preco_Etanol",
		Lags:            []int{1, 5, 21},
		MacroTickers: []loader.MacroSpec{
			{Ticker: "BRL=X", Column: "Dolar"},
			{Ticker: "BZ=F", Column: "Petroleo"},
		},
		TestWindow: 120,
		Model:      gbm.DefaultParams(),
		Prediction: PredictionConfig{
			DefaultDays:    30,
			MaxDays:        365,
			HistoryPadding: 5,
		},
	}
}

var validate = validator.New()

// Validate checks field rules and that every frame column name is unique
func (c *PipelineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}

	seen := map[string]bool{c.TargetColumn: true, c.SecondaryColumn: true}
	for _, m := range c.MacroTickers {
		if seen[m.Column] {
			return fmt.Errorf("invalid pipeline config: duplicate column %q", m.Column)
		}
		seen[m.Column] = true
	}
	for name := range seen {
		if strings.HasPrefix(name, "Lag_") {
			return fmt.Errorf("invalid pipeline config: column %q collides with lag features", name)
		}
	}
	return nil
}

// MaxLag returns the largest configured lag offset
func (c *PipelineConfig) MaxLag() int {
	return features.MaxLag(c.Lags)
}

// LoadPipelineConfig reads a YAML file over the defaults.
// An empty path returns the defaults. Unknown fields fail the load.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

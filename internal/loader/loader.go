package loader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenledger/cbio-forecast/internal/series"
)

// ErrNoData is wrapped by DataLoadError when a source yields no rows
var ErrNoData = errors.New("no data")

// DataLoadError reports a source that could not be read or parsed
type DataLoadError struct {
	Source string
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}

// MacroProvider fetches daily closes for a ticker over [start, end)
type MacroProvider interface {
	FetchCloses(ctx context.Context, ticker string, start, end time.Time) ([]series.Point, error)
}

// MacroSpec maps a market ticker to a frame column
type MacroSpec struct {
	Ticker string `yaml:"ticker" json:"ticker" validate:"required"`
	Column string `yaml:"column" json:"column" validate:"required"`
}

// Columns names the loaded target and secondary columns
type Columns struct {
	Target    string
	Secondary string
}

// fallbackSkipLines is the preamble of the raw secondary export
const fallbackSkipLines = 3

// Loader turns the configured sources into Frames
type Loader struct {
	tables  TableReader
	macro   MacroProvider
	columns Columns
	log     zerolog.Logger
}

// New creates a new loader
func New(tables TableReader, macro MacroProvider, columns Columns, log zerolog.Logger) *Loader {
	return &Loader{
		tables:  tables,
		macro:   macro,
		columns: columns,
		log:     log.With().Str("component", "loader").Logger(),
	}
}

// LoadTarget reads date + price. Dates must parse; blank prices are kept as missing.
func (l *Loader) LoadTarget(ctx context.Context, source string) (*series.Frame, error) {
	t, err := l.tables.ReadTable(ctx, source, ReadOptions{})
	if err != nil {
		return nil, &DataLoadError{Source: source, Err: err}
	}
	points, err := strictPoints(t)
	if err != nil {
		return nil, &DataLoadError{Source: source, Err: err}
	}

	frame := series.FromPoints(l.columns.Target, points)
	l.log.Debug().Str("source", source).Int("rows", frame.Len()).Msg("Target series loaded")
	return frame, nil
}

// LoadSecondary reads the secondary commodity series.
// Any failure on the primary source switches to the raw fallback export when one is given.
func (l *Loader) LoadSecondary(ctx context.Context, source, fallback string) (*series.Frame, error) {
	frame, err := l.loadSecondaryPrimary(ctx, source)
	if err == nil {
		return frame, nil
	}
	if fallback == "" {
		return nil, err
	}

	l.log.Warn().Err(err).Str("fallback", fallback).Msg("Secondary source failed, using fallback")
	return l.loadSecondaryFallback(ctx, fallback)
}

func (l *Loader) loadSecondaryPrimary(ctx context.Context, source string) (*series.Frame, error) {
	t, err := l.tables.ReadTable(ctx, source, ReadOptions{})
	if err != nil {
		return nil, &DataLoadError{Source: source, Err: err}
	}
	points, err := strictPoints(t)
	if err != nil {
		return nil, &DataLoadError{Source: source, Err: err}
	}

	frame := series.FromPoints(l.columns.Secondary, points)
	l.log.Debug().Str("source", source).Int("rows", frame.Len()).Msg("Secondary series loaded")
	return frame, nil
}

// loadSecondaryFallback parses the raw export: Latin-1 text with a three line preamble,
// day-first dates and decimal commas. Rows whose date or price does not parse are skipped.
func (l *Loader) loadSecondaryFallback(ctx context.Context, source string) (*series.Frame, error) {
	t, err := l.tables.ReadTable(ctx, source, ReadOptions{SkipLines: fallbackSkipLines, Latin1: true})
	if err != nil {
		return nil, &DataLoadError{Source: source, Err: err}
	}
	if len(t.Header) < 2 {
		return nil, &DataLoadError{Source: source, Err: fmt.Errorf("need 2 columns, got %d", len(t.Header))}
	}

	var points []series.Point
	skipped := 0
	for _, row := range t.Rows {
		if len(row) < 2 {
			skipped++
			continue
		}
		date, err := parseDayFirst(row[0])
		if err != nil {
			skipped++
			continue
		}
		value, err := parseDecimal(row[1])
		if err != nil {
			skipped++
			continue
		}
		points = append(points, series.Point{Date: date, Value: value})
	}
	if len(points) == 0 {
		return nil, &DataLoadError{Source: source, Err: ErrNoData}
	}

	frame := series.FromPoints(l.columns.Secondary, points).ResampleDaily()
	l.log.Debug().
		Str("source", source).
		Int("rows", frame.Len()).
		Int("skipped", skipped).
		Msg("Secondary fallback loaded")
	return frame, nil
}

// LoadMacro fetches one frame per spec over [start, end), each forward then backward filled
func (l *Loader) LoadMacro(ctx context.Context, specs []MacroSpec, start, end time.Time) ([]*series.Frame, error) {
	frames := make([]*series.Frame, 0, len(specs))
	for _, spec := range specs {
		source := "market:" + spec.Ticker
		points, err := l.macro.FetchCloses(ctx, spec.Ticker, start, end)
		if err != nil {
			return nil, &DataLoadError{Source: source, Err: err}
		}
		if len(points) == 0 {
			return nil, &DataLoadError{Source: source, Err: ErrNoData}
		}

		frame := series.FromPoints(spec.Column, points).FillForward().FillBackward()
		frames = append(frames, frame)
		l.log.Debug().
			Str("ticker", spec.Ticker).
			Str("column", spec.Column).
			Int("rows", frame.Len()).
			Msg("Macro series loaded")
	}
	return frames, nil
}

// strictPoints reads column 0 as ISO dates and column 1 as prices.
// A blank price becomes NaN; any other unparseable cell fails the source.
func strictPoints(t *Table) ([]series.Point, error) {
	if len(t.Header) < 2 {
		return nil, fmt.Errorf("need at least 2 columns, got %d", len(t.Header))
	}
	if len(t.Rows) == 0 {
		return nil, ErrNoData
	}

	points := make([]series.Point, 0, len(t.Rows))
	defined := 0
	for i, row := range t.Rows {
		line := i + 2 // header is line 1
		if len(row) < 2 {
			return nil, fmt.Errorf("line %d: need 2 cells, got %d", line, len(row))
		}
		date, err := parseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cell := strings.TrimSpace(row[1])
		if cell == "" {
			// blank cells stay in the index and are filled after the merge
			points = append(points, series.Point{Date: date, Value: math.NaN()})
			continue
		}
		value, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q", line, row[1])
		}
		points = append(points, series.Point{Date: date, Value: value})
		defined++
	}
	if defined == 0 {
		return nil, ErrNoData
	}
	return points, nil
}

var isoLayouts = []string{
	series.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

var dayFirstLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
}

func parseDate(s string) (time.Time, error) {
	return parseWith(s, isoLayouts)
}

func parseDayFirst(s string) (time.Time, error) {
	if t, err := parseWith(s, dayFirstLayouts); err == nil {
		return t, nil
	}
	return parseWith(s, isoLayouts)
}

func parseWith(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return series.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseDecimal accepts "1234.56", "1234,56" and "1.234,56"
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

package features

import (
	"fmt"
	"math"
	"time"

	"github.com/greenledger/cbio-forecast/internal/series"
)

// LagColumn names the lag feature for offset k
func LagColumn(k int) string {
	return fmt.Sprintf("Lag_%d", k)
}

// MaxLag returns the largest offset, 0 for none
func MaxLag(lags []int) int {
	m := 0
	for _, k := range lags {
		if k > m {
			m = k
		}
	}
	return m
}

// Row is one date's record: the target value plus every feature value.
// Values is aligned with Set.Columns.
type Row struct {
	Date   time.Time
	Target float64
	Values []float64
}

// Set is an ordered sequence of complete feature rows
type Set struct {
	Target  string
	Columns []string // every non-target column, frame order
	Rows    []Row
}

// Len returns the number of rows
func (s *Set) Len() int {
	return len(s.Rows)
}

// Targets returns the target column
func (s *Set) Targets() []float64 {
	out := make([]float64, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r.Target
	}
	return out
}

// Dates returns the row dates
func (s *Set) Dates() []time.Time {
	out := make([]time.Time, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r.Date
	}
	return out
}

// Split is a trailing holdout: test holds the last testSize rows, train everything before
func (s *Set) Split(testSize int) (train, test *Set, err error) {
	if testSize <= 0 {
		return nil, nil, fmt.Errorf("test size must be positive, got %d", testSize)
	}
	if testSize >= len(s.Rows) {
		return nil, nil, fmt.Errorf("need more than %d rows to hold out %d, have %d", testSize, testSize, len(s.Rows))
	}
	cut := len(s.Rows) - testSize
	train = &Set{Target: s.Target, Columns: s.Columns, Rows: s.Rows[:cut]}
	test = &Set{Target: s.Target, Columns: s.Columns, Rows: s.Rows[cut:]}
	return train, test, nil
}

// Filter keeps the rows for which keep returns true
func (s *Set) Filter(keep func(Row) bool) *Set {
	out := &Set{Target: s.Target, Columns: s.Columns}
	for _, r := range s.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Matrix selects the named columns, in the given order, for every row
func (s *Set) Matrix(columns []string) ([][]float64, error) {
	pos := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		pos[c] = i
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		p, ok := pos[c]
		if !ok {
			return nil, fmt.Errorf("feature column %q not present", c)
		}
		idx[i] = p
	}

	X := make([][]float64, len(s.Rows))
	for r, row := range s.Rows {
		x := make([]float64, len(idx))
		for i, p := range idx {
			x[i] = row.Values[p]
		}
		X[r] = x
	}
	return X, nil
}

// BuildLagFeatures adds Lag_k = target value k rows earlier, for every k in lags.
// Offsets count rows, not calendar days.
func BuildLagFeatures(frame *series.Frame, target string, lags []int) (*series.Frame, error) {
	values, ok := frame.Column(target)
	if !ok {
		return nil, fmt.Errorf("target column %q not found", target)
	}

	out := frame
	for _, k := range lags {
		if k <= 0 {
			return nil, fmt.Errorf("lag offset must be positive, got %d", k)
		}
		lagged := make([]float64, len(values))
		for i := range lagged {
			if i < k {
				lagged[i] = math.NaN()
				continue
			}
			lagged[i] = values[i-k]
		}

		var err error
		out, err = out.WithColumn(LagColumn(k), lagged)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PrepareFeatures applies lag features then drops every row with an undefined cell
func PrepareFeatures(frame *series.Frame, target string, lags []int) (*Set, error) {
	lagged, err := BuildLagFeatures(frame, target, lags)
	if err != nil {
		return nil, err
	}

	set := &Set{Target: target}
	for _, c := range lagged.Columns() {
		if c != target {
			set.Columns = append(set.Columns, c)
		}
	}

	for i := 0; i < lagged.Len(); i++ {
		if !lagged.RowComplete(i) {
			continue
		}
		row := Row{
			Date:   lagged.Date(i),
			Target: lagged.Value(target, i),
			Values: make([]float64, len(set.Columns)),
		}
		for j, c := range set.Columns {
			row.Values[j] = lagged.Value(c, i)
		}
		set.Rows = append(set.Rows, row)
	}
	return set, nil
}

package series

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	gseries "github.com/go-gota/gota/series"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// Point is a single dated observation
type Point struct {
	Date  time.Time
	Value float64
}

// Frame is a date-indexed table of float columns.
// ⭐ SSOT: every pipeline stage passes data around as a Frame
//
// Dates are UTC midnights, strictly increasing. Missing cells are NaN.
// Frames are treated as values: methods return new frames and never mutate the receiver.
type Frame struct {
	dates   []time.Time
	columns []string
	data    [][]float64 // data[col][row]
}

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Missing reports whether v is an undefined cell
func Missing(v float64) bool {
	return math.IsNaN(v)
}

// FromPoints builds a single-column frame.
// Points are stably sorted by date; for duplicate dates the last one in input order wins.
func FromPoints(column string, points []Point) *Frame {
	sorted := make([]Point, len(points))
	for i, p := range points {
		sorted[i] = Point{Date: Day(p.Date), Value: p.Value}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	f := &Frame{columns: []string{column}, data: [][]float64{nil}}
	for _, p := range sorted {
		n := len(f.dates)
		if n > 0 && f.dates[n-1].Equal(p.Date) {
			f.data[0][n-1] = p.Value
			continue
		}
		f.dates = append(f.dates, p.Date)
		f.data[0] = append(f.data[0], p.Value)
	}
	return f
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.dates)
}

// Columns returns the column names in order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Dates returns a copy of the date index
func (f *Frame) Dates() []time.Time {
	return append([]time.Time(nil), f.dates...)
}

// Date returns the date of row i
func (f *Frame) Date(i int) time.Time {
	return f.dates[i]
}

// FirstDate returns the earliest date; zero time for an empty frame
func (f *Frame) FirstDate() time.Time {
	if len(f.dates) == 0 {
		return time.Time{}
	}
	return f.dates[0]
}

// LastDate returns the latest date; zero time for an empty frame
func (f *Frame) LastDate() time.Time {
	if len(f.dates) == 0 {
		return time.Time{}
	}
	return f.dates[len(f.dates)-1]
}

func (f *Frame) columnIndex(name string) int {
	for i, c := range f.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the frame carries the named column
func (f *Frame) HasColumn(name string) bool {
	return f.columnIndex(name) >= 0
}

// Column returns a copy of a column's values
func (f *Frame) Column(name string) ([]float64, bool) {
	idx := f.columnIndex(name)
	if idx < 0 {
		return nil, false
	}
	return append([]float64(nil), f.data[idx]...), true
}

// Value returns the cell at (column, row)
func (f *Frame) Value(column string, row int) float64 {
	idx := f.columnIndex(column)
	if idx < 0 {
		return math.NaN()
	}
	return f.data[idx][row]
}

// RowComplete reports whether every cell in row i is defined
func (f *Frame) RowComplete(i int) bool {
	for c := range f.columns {
		if Missing(f.data[c][i]) {
			return false
		}
	}
	return true
}

func (f *Frame) clone() *Frame {
	out := &Frame{
		dates:   append([]time.Time(nil), f.dates...),
		columns: append([]string(nil), f.columns...),
		data:    make([][]float64, len(f.data)),
	}
	for i := range f.data {
		out.data[i] = append([]float64(nil), f.data[i]...)
	}
	return out
}

// WithColumn returns a copy with an extra column appended
func (f *Frame) WithColumn(name string, values []float64) (*Frame, error) {
	if f.HasColumn(name) {
		return nil, fmt.Errorf("column %q already exists", name)
	}
	if len(values) != f.Len() {
		return nil, fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.Len())
	}
	out := f.clone()
	out.columns = append(out.columns, name)
	out.data = append(out.data, append([]float64(nil), values...))
	return out, nil
}

// Rename returns a copy with column from renamed to to
func (f *Frame) Rename(from, to string) (*Frame, error) {
	idx := f.columnIndex(from)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", from)
	}
	if from != to && f.HasColumn(to) {
		return nil, fmt.Errorf("column %q already exists", to)
	}
	out := f.clone()
	out.columns[idx] = to
	return out, nil
}

// Rows returns a frame restricted to the given row indexes, in the given order
func (f *Frame) Rows(idx []int) *Frame {
	out := &Frame{
		dates:   make([]time.Time, 0, len(idx)),
		columns: append([]string(nil), f.columns...),
		data:    make([][]float64, len(f.columns)),
	}
	for _, i := range idx {
		out.dates = append(out.dates, f.dates[i])
		for c := range f.columns {
			out.data[c] = append(out.data[c], f.data[c][i])
		}
	}
	return out
}

// Clip keeps rows with from <= date <= to. A zero bound is open.
func (f *Frame) Clip(from, to time.Time) *Frame {
	var idx []int
	for i, d := range f.dates {
		if !from.IsZero() && d.Before(Day(from)) {
			continue
		}
		if !to.IsZero() && d.After(Day(to)) {
			continue
		}
		idx = append(idx, i)
	}
	return f.Rows(idx)
}

// AppendEmpty returns a copy extended with all-NaN rows for dates after the last row
func (f *Frame) AppendEmpty(dates []time.Time) (*Frame, error) {
	out := f.clone()
	for _, d := range dates {
		d = Day(d)
		if n := len(out.dates); n > 0 && !d.After(out.dates[n-1]) {
			return nil, fmt.Errorf("appended date %s is not after %s", d.Format(DateLayout), out.dates[n-1].Format(DateLayout))
		}
		out.dates = append(out.dates, d)
		for c := range out.data {
			out.data[c] = append(out.data[c], math.NaN())
		}
	}
	return out, nil
}

// FillForward propagates the last defined value of every column downwards
func (f *Frame) FillForward() *Frame {
	return f.fill(func(values []float64) {
		last := math.NaN()
		for i, v := range values {
			if Missing(v) {
				values[i] = last
				continue
			}
			last = v
		}
	})
}

// FillBackward propagates the next defined value of every column upwards
func (f *Frame) FillBackward() *Frame {
	return f.fill(func(values []float64) {
		next := math.NaN()
		for i := len(values) - 1; i >= 0; i-- {
			if Missing(values[i]) {
				values[i] = next
				continue
			}
			next = values[i]
		}
	})
}

// fill applies fn to a copy of every column through the frame's dataframe form
func (f *Frame) fill(fn func([]float64)) *Frame {
	out := &Frame{
		dates:   append([]time.Time(nil), f.dates...),
		columns: append([]string(nil), f.columns...),
	}
	if len(f.columns) == 0 {
		return out
	}

	df := f.valueFrame().Capply(func(s gseries.Series) gseries.Series {
		values := s.Float()
		fn(values)
		return gseries.New(values, gseries.Float, s.Name)
	})
	for _, name := range f.columns {
		out.data = append(out.data, df.Col(name).Float())
	}
	return out
}

// ResampleDaily returns one row per calendar day between the first and last date.
// Days without an observation carry the previous row's values.
func (f *Frame) ResampleDaily() *Frame {
	out := &Frame{
		columns: append([]string(nil), f.columns...),
		data:    make([][]float64, len(f.columns)),
	}
	if f.Len() == 0 {
		return out
	}

	src := 0
	for d := f.FirstDate(); !d.After(f.LastDate()); d = d.AddDate(0, 0, 1) {
		for src+1 < f.Len() && !f.dates[src+1].After(d) {
			src++
		}
		out.dates = append(out.dates, d)
		for c := range f.columns {
			out.data[c] = append(out.data[c], f.data[c][src])
		}
	}
	return out
}

// Merge outer-joins frames on their date index.
// The result covers the union of all dates in ascending order; cells a frame
// does not cover are NaN. Column names must be unique across frames.
func Merge(frames ...*Frame) (*Frame, error) {
	seen := map[string]bool{}
	var joined *dataframe.DataFrame

	for _, fr := range frames {
		if fr == nil {
			continue
		}
		for _, c := range fr.columns {
			if c == dateKey {
				return nil, fmt.Errorf("column name %q is reserved for the merge key", c)
			}
			if seen[c] {
				return nil, fmt.Errorf("duplicate column %q in merge", c)
			}
			seen[c] = true
		}

		df := fr.dataFrame()
		if joined == nil {
			joined = &df
			continue
		}
		next := joined.OuterJoin(df, dateKey)
		if next.Err != nil {
			return nil, fmt.Errorf("merge: %w", next.Err)
		}
		joined = &next
	}

	if joined == nil {
		return &Frame{}, nil
	}
	sorted := joined.Arrange(dataframe.Sort(dateKey))
	if sorted.Err != nil {
		return nil, fmt.Errorf("merge: %w", sorted.Err)
	}
	return fromDataFrame(sorted)
}

// dateKey is the join column of the dataframe form; ISO dates sort chronologically as text
const dateKey = "date"

// dataFrame converts the frame to a gota dataframe keyed by dateKey
func (f *Frame) dataFrame() dataframe.DataFrame {
	keys := make([]string, len(f.dates))
	for i, d := range f.dates {
		keys[i] = d.Format(DateLayout)
	}
	return dataframe.New(append([]gseries.Series{gseries.New(keys, gseries.String, dateKey)}, f.valueSeries()...)...)
}

// valueFrame is the dataframe form without the date key
func (f *Frame) valueFrame() dataframe.DataFrame {
	return dataframe.New(f.valueSeries()...)
}

func (f *Frame) valueSeries() []gseries.Series {
	cols := make([]gseries.Series, 0, len(f.columns))
	for c, name := range f.columns {
		cols = append(cols, gseries.New(f.data[c], gseries.Float, name))
	}
	return cols
}

// fromDataFrame converts back; every column except dateKey becomes a float column
func fromDataFrame(df dataframe.DataFrame) (*Frame, error) {
	if df.Err != nil {
		return nil, df.Err
	}

	keys := df.Col(dateKey)
	if keys.Err != nil {
		return nil, keys.Err
	}
	out := &Frame{dates: make([]time.Time, 0, df.Nrow())}
	for _, k := range keys.Records() {
		d, err := time.Parse(DateLayout, k)
		if err != nil {
			return nil, fmt.Errorf("invalid date key %q: %w", k, err)
		}
		out.dates = append(out.dates, d)
	}

	for _, name := range df.Names() {
		if name == dateKey {
			continue
		}
		out.columns = append(out.columns, name)
		out.data = append(out.data, df.Col(name).Float())
	}
	return out, nil
}

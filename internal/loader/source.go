package loader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/greenledger/cbio-forecast/internal/series"
	"github.com/greenledger/cbio-forecast/pkg/database"
)

// PostgresPrefix marks a source that names a database table
const PostgresPrefix = "postgres:"

// Table is raw tabular data: a header row plus string cells
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadOptions tweak how a raw file is read
type ReadOptions struct {
	SkipLines int  // lines (or sheet rows) dropped before the header
	Latin1    bool // decode CSV bytes as ISO-8859-1
}

// TableReader reads a named source into a Table
type TableReader interface {
	ReadTable(ctx context.Context, source string, opts ReadOptions) (*Table, error)
}

// Sources dispatches a source string to the matching reader:
// "postgres:<table>" reads a table, "*.xlsx" the first sheet of a workbook, anything else a CSV file.
// ⭐ SSOT: source strings are interpreted here only
type Sources struct {
	CSV      CSVReader
	XLSX     XLSXReader
	Postgres *PostgresReader // nil when no database is configured
}

// NewSources creates the default dispatcher; db may be nil
func NewSources(db database.Querier) *Sources {
	s := &Sources{}
	if db != nil {
		s.Postgres = &PostgresReader{DB: db}
	}
	return s
}

// ReadTable implements TableReader
func (s *Sources) ReadTable(ctx context.Context, source string, opts ReadOptions) (*Table, error) {
	switch {
	case strings.HasPrefix(source, PostgresPrefix):
		if s.Postgres == nil {
			return nil, fmt.Errorf("source %s needs DATABASE_URL", source)
		}
		return s.Postgres.ReadTable(ctx, strings.TrimPrefix(source, PostgresPrefix), opts)
	case strings.EqualFold(extension(source), ".xlsx"):
		return s.XLSX.ReadTable(ctx, source, opts)
	default:
		return s.CSV.ReadTable(ctx, source, opts)
	}
}

func extension(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

// CSVReader reads comma separated files
type CSVReader struct{}

// ReadTable implements TableReader
func (CSVReader) ReadTable(_ context.Context, path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if opts.Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(f)
	}
	br := bufio.NewReader(r)
	for i := 0; i < opts.SkipLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s: fewer than %d lines", path, opts.SkipLines)
			}
			return nil, err
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return toTable(records)
}

// XLSXReader reads the first sheet of an Excel workbook
type XLSXReader struct{}

// ReadTable implements TableReader
func (XLSXReader) ReadTable(_ context.Context, path string, opts ReadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if opts.SkipLines > len(rows) {
		return nil, fmt.Errorf("%s: fewer than %d rows", path, opts.SkipLines)
	}
	return toTable(rows[opts.SkipLines:])
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresReader reads a whole table ordered by its first column
type PostgresReader struct {
	DB database.Querier
}

// ReadTable implements TableReader. ref is "table" or "schema.table".
func (p *PostgresReader) ReadTable(ctx context.Context, ref string, _ ReadOptions) (*Table, error) {
	parts := strings.Split(ref, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table reference %q", ref)
	}
	for _, part := range parts {
		if !identPattern.MatchString(part) {
			return nil, fmt.Errorf("invalid table reference %q", ref)
		}
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1", pgx.Identifier(parts).Sanitize())
	rows, err := p.DB.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ref, err)
	}
	defer rows.Close()

	t := &Table{}
	for _, fd := range rows.FieldDescriptions() {
		t.Header = append(t.Header, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", ref, err)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatCell(v)
		}
		t.Rows = append(t.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return t, nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.Format(series.DateLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return strconv.FormatFloat(f.Float64, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func toTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	t := &Table{Header: records[0]}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

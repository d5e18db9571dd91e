package dataset

import (
	"fmt"

	"github.com/couchcryptid/mapviz/internal/domain"
)

// TableOptions selects the key and value columns of a tabular file.
type TableOptions struct {
	KeyColumn    string
	ValueColumns []string
	SkipRows     int
	DropColumns  []string
	// TimestampColumn, when set, is read from the first data row.
	TimestampColumn string
}

// Table is a parsed tabular dataset.
type Table struct {
	Columns   []string
	Records   []domain.DataRecord
	Timestamp string
}

// ReadTable reads a CSV or XLSX file into DataRecords. Cells that do not
// parse as numbers become missing values; rows with an empty key are skipped.
func ReadTable(path string, opts TableOptions) (*Table, error) {
	s, err := readSheet(path, opts.SkipRows, opts.DropColumns)
	if err != nil {
		return nil, err
	}
	if !s.has(opts.KeyColumn) {
		return nil, &domain.LoadError{Path: path, Err: fmt.Errorf("missing key column %q", opts.KeyColumn)}
	}
	for _, c := range opts.ValueColumns {
		if !s.has(c) {
			return nil, &domain.LoadError{Path: path, Err: fmt.Errorf("missing value column %q", c)}
		}
	}
	if opts.TimestampColumn != "" && !s.has(opts.TimestampColumn) {
		return nil, &domain.LoadError{Path: path, Err: fmt.Errorf("missing timestamp column %q", opts.TimestampColumn)}
	}

	t := &Table{Records: make([]domain.DataRecord, 0, len(s.rows))}
	for _, h := range s.header {
		if s.has(h) {
			t.Columns = append(t.Columns, h)
		}
	}
	for i := range s.rows {
		key := s.cell(i, opts.KeyColumn)
		if key == "" {
			continue
		}
		if t.Timestamp == "" && opts.TimestampColumn != "" {
			t.Timestamp = s.cell(i, opts.TimestampColumn)
		}
		values := make(map[string]domain.Value, len(opts.ValueColumns))
		for _, c := range opts.ValueColumns {
			values[c] = domain.ParseValue(s.cell(i, c))
		}
		t.Records = append(t.Records, domain.DataRecord{Key: key, Values: values})
	}
	return t, nil
}

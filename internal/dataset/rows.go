// Package dataset reads tabular inputs (CSV and XLSX) into domain records.
package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/mapviz/internal/domain"
)

const utf8BOM = "\ufeff"

// sheet is a header plus data rows with cells addressed by column name.
type sheet struct {
	header []string
	index  map[string]int
	rows   [][]string
}

func (s *sheet) has(column string) bool {
	_, ok := s.index[column]
	return ok
}

// cell returns the value of column in row i, or "" when the row is short.
func (s *sheet) cell(i int, column string) string {
	c, ok := s.index[column]
	if !ok || c >= len(s.rows[i]) {
		return ""
	}
	return strings.TrimSpace(s.rows[i][c])
}

// readSheet reads a CSV or XLSX file, skipping skipRows preamble rows before
// the header and removing dropColumns.
func readSheet(path string, skipRows int, dropColumns []string) (*sheet, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
		rows = rows[min(skipRows, len(rows)):]
	default:
		rows, err = readCSV(path, skipRows)
	}
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.LoadError{Path: path, Err: errors.New("no header row")}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
	}

	s := &sheet{header: header, index: make(map[string]int, len(header)), rows: rows[1:]}
	drop := make(map[string]bool, len(dropColumns))
	for _, c := range dropColumns {
		drop[c] = true
	}
	for i, h := range header {
		if h == "" || drop[h] {
			continue
		}
		if _, dup := s.index[h]; !dup {
			s.index[h] = i
		}
	}
	return s, nil
}

// readCSV skips skipLines physical lines (blank ones included) and parses
// the rest as CSV.
func readCSV(path string, skipLines int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for i := 0; i < skipLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

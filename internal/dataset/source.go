package dataset

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
)

// Table is a decoded tabular source: trimmed column headers plus rows of
// string cells aligned to those headers.
type Table struct {
	Columns []string
	Rows    [][]string
}

// DecodeCSV reads a CSV stream into a Table. Headers are trimmed; short rows
// are padded with empty cells.
func DecodeCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.Validation("invalid csv source").WithCause(err)
	}
	if len(records) == 0 {
		return nil, apperr.Validation("csv source has no header row")
	}

	columns := make([]string, len(records[0]))
	for i, name := range records[0] {
		columns[i] = strings.TrimSpace(name)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]string, len(columns))
		for i := range columns {
			if i < len(record) {
				row[i] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

// columnIndex builds a case-insensitive header index, rejecting headers that
// collide only by case.
func (t *Table) columnIndex() (map[string]int, error) {
	index := make(map[string]int, len(t.Columns))
	byLower := make(map[string]string, len(t.Columns))
	for i, name := range t.Columns {
		key := strings.ToLower(name)
		if prev, ok := byLower[key]; ok && prev != name {
			return nil, apperr.Validation(
				"duplicate columns differing only by case: %q and %q; rename them in the source", prev, name)
		}
		byLower[key] = name
		index[key] = i
	}
	return index, nil
}

// Resolve returns the exact header present in the table for a requested
// column name, matching case-insensitively. An empty name falls back to
// fallback before resolution.
func (t *Table) Resolve(name, fallback string) (string, error) {
	target := strings.TrimSpace(name)
	if target == "" {
		target = strings.TrimSpace(fallback)
	}
	if target == "" {
		return "", apperr.Validation("required column not specified")
	}

	index, err := t.columnIndex()
	if err != nil {
		return "", err
	}
	i, ok := index[strings.ToLower(target)]
	if !ok {
		available := append([]string(nil), t.Columns...)
		sort.Strings(available)
		return "", apperr.Validation("column %q does not exist in the source; available: %s",
			target, strings.Join(available, ", "))
	}
	return t.Columns[i], nil
}

// Values returns the trimmed cells of one column, row-ordered.
func (t *Table) Values(column string) []string {
	index, err := t.columnIndex()
	if err != nil {
		return nil
	}
	i, ok := index[strings.ToLower(column)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, strings.TrimSpace(row[i]))
	}
	return out
}

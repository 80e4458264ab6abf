package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
)

// UnionColumns merges the column sets of all rows preserving first-seen
// order, so entries filled against older structures still contribute their
// columns.
func UnionColumns(rows []*Row) []string {
	var columns []string
	seen := map[string]bool{}
	for _, row := range rows {
		for _, column := range row.Columns() {
			if !seen[column] {
				seen[column] = true
				columns = append(columns, column)
			}
		}
	}
	return columns
}

// RenderCSV writes the rows as CSV with a header line over the column union.
func RenderCSV(w io.Writer, rows []*Row) error {
	columns := UnionColumns(rows)
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, column := range columns {
			record[i] = cell(row.Get(column))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// RenderZip writes a zip archive holding the main rows and the group rows as
// two CSV files named after the export base name.
func RenderZip(w io.Writer, result *Result) error {
	archive := zip.NewWriter(w)
	base := result.FileBaseName()

	main, err := archive.Create(base + ".csv")
	if err != nil {
		return err
	}
	if err := RenderCSV(main, result.Rows); err != nil {
		return err
	}

	if result.HasGroups() {
		groups, err := archive.Create(base + "_grupos.csv")
		if err != nil {
			return err
		}
		if err := RenderCSV(groups, result.Groups); err != nil {
			return err
		}
	}
	return archive.Close()
}

// JSONPayload shapes the export for the JSON format.
func (r *Result) JSONPayload() map[string]any {
	rows := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, row.Map())
	}
	payload := map[string]any{
		"form_id":   r.FormID,
		"form_name": r.FormName,
		"rows":      rows,
	}
	if r.HasGroups() {
		groups := make([]map[string]any, 0, len(r.Groups))
		for _, row := range r.Groups {
			groups = append(groups, row.Map())
		}
		payload["groups"] = groups
	}
	return payload
}

func cell(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

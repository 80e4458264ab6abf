package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/csuvg/PG-2025-21169/internal/form"
)

const timeLayout = "2006-01-02 15:04:05"

// Metadata columns leading every main row, in order.
var metaColumns = []string{
	"ID_Respuesta", "Nombre Formulario", "Usuario", "Status", "Llenado", "Actualizado",
}

// Row is an ordered set of column/value pairs. Insertion order is the render
// order.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: map[string]any{}}
}

// Set stores a value, appending the column on first sight.
func (r *Row) Set(column string, value any) {
	if _, seen := r.values[column]; !seen {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Columns returns the column names in insertion order.
func (r *Row) Columns() []string { return r.columns }

// Get returns the value of a column, nil when absent.
func (r *Row) Get(column string) any { return r.values[column] }

// Map returns the row as a plain map for JSON rendering.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// FlattenEntry converts one response into a flat row: metadata columns then
// one column per non-group field, keyed by the field label. Values come from
// fill_json under the page id and field internal name.
func FlattenEntry(entry *form.Entry, fieldCatalog []FieldMeta) *Row {
	row := NewRow()
	row.Set("ID_Respuesta", entry.ID)
	row.Set("Nombre Formulario", entry.FormName)
	row.Set("Usuario", entry.UserID)
	row.Set("Status", entry.Status)
	row.Set("Llenado", formatTime(entry.FilledAtLocal))
	row.Set("Actualizado", formatTime(&entry.UpdatedAt))

	fill := map[string]any(entry.FillJSON)
	for _, meta := range normalFields(fieldCatalog) {
		label := strings.TrimSpace(meta.Label)
		if label == "" {
			label = meta.InternalName
		}
		if label == "" {
			label = meta.FieldID
		}

		var value any
		if meta.PageID != "" && meta.InternalName != "" {
			if page, ok := fill[meta.PageID].(map[string]any); ok {
				value = page[meta.InternalName]
			}
		}
		row.Set(label, NormalizeValue(value, meta.Class))
	}
	return row
}

// FlattenGroups extracts one row per group instance of a response. Each row
// carries the response id, the group label and the member values resolved by
// the group's field structure, falling back to the raw record keys when the
// group has no registered structure.
func FlattenGroups(entry *form.Entry, fieldCatalog []FieldMeta) []*Row {
	fill := map[string]any(entry.FillJSON)
	var rows []*Row

	for _, meta := range fieldCatalog {
		if !meta.IsGroup() {
			continue
		}
		groupLabel := meta.Label
		if groupLabel == "" {
			groupLabel = meta.InternalName
		}

		records := groupRecords(fill, meta.InternalName)
		for _, record := range records {
			row := NewRow()
			row.Set("ID_Respuesta", entry.ID)
			row.Set("Nombre_Grupo", groupLabel)

			if len(meta.GroupFields) == 0 {
				for key, value := range record {
					row.Set(titleFromKey(key), value)
				}
			} else {
				for _, member := range meta.GroupFields {
					label := member.Label
					if label == "" {
						label = member.InternalName
					}
					row.Set(label, NormalizeValue(record[member.InternalName], member.Class))
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// groupRecords finds the instance list of a group by scanning every page of
// fill_json for the group's internal name.
func groupRecords(fill map[string]any, groupName string) []map[string]any {
	if groupName == "" {
		return nil
	}
	for _, rawPage := range fill {
		page, ok := rawPage.(map[string]any)
		if !ok {
			continue
		}
		rawList, ok := page[groupName].([]any)
		if !ok {
			continue
		}
		records := make([]map[string]any, 0, len(rawList))
		for _, rawRecord := range rawList {
			if record, isMap := rawRecord.(map[string]any); isMap {
				records = append(records, record)
			}
		}
		return records
	}
	return nil
}

// NormalizeValue coerces a raw answer by field class: booleans accept the
// usual truthy tokens, dataset answers reduce to their label.
func NormalizeValue(value any, class string) any {
	switch class {
	case "boolean":
		if value == nil {
			return nil
		}
		if s, ok := value.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "1", "true", "t", "yes", "si", "sí":
				return true
			default:
				return false
			}
		}
		return truthy(value)
	case "dataset":
		switch v := value.(type) {
		case map[string]any:
			for _, key := range []string{"label", "label_text", "value", "id"} {
				if picked, ok := v[key]; ok && picked != nil && picked != "" {
					return picked
				}
			}
			return nil
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					parts = append(parts, fmt.Sprint(m["label"]))
					continue
				}
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, ", ")
		}
	}
	return value
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Local().Format(timeLayout)
}

// titleFromKey turns a raw record key into a readable column header.
func titleFromKey(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, word := range words {
		runes := []rune(word)
		words[i] = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
	return strings.Join(words, " ")
}

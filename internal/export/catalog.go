// Package export flattens collected responses into tabular rows. The field
// catalog is rebuilt from each entry's frozen form_json so historical entries
// render against the structure they were filled with; group member metadata
// is the one live lookup, resolved from the database at export time.
package export

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/catalog"
)

// GroupFieldMeta describes one member field of a group.
type GroupFieldMeta struct {
	FieldID      string
	InternalName string
	Label        string
	Class        string
	Type         string
}

// FieldMeta describes one field of the frozen structure.
type FieldMeta struct {
	PageID       string
	FieldID      string
	InternalName string
	Label        string
	Class        string
	Type         string
	Required     bool
	Sequence     int
	GroupID      string
	GroupFields  []GroupFieldMeta
}

// IsGroup reports whether the field is a group container.
func (m FieldMeta) IsGroup() bool { return m.Class == "group" }

// BuildFieldCatalog walks the frozen form_json page list and returns the
// field catalog sorted by sequence. Group fields get their member metadata
// resolved from the database.
func BuildFieldCatalog(ctx context.Context, db *gorm.DB, formJSON map[string]any) []FieldMeta {
	out := []FieldMeta{}
	pages, _ := formJSON["paginas"].([]any)
	for _, rawPage := range pages {
		page, ok := rawPage.(map[string]any)
		if !ok {
			continue
		}
		pageID := stringAt(page, "id_pagina")
		fields, _ := page["campos"].([]any)
		for _, rawField := range fields {
			field, ok := rawField.(map[string]any)
			if !ok {
				continue
			}
			meta := FieldMeta{
				PageID:       pageID,
				FieldID:      stringAt(field, "id_campo"),
				InternalName: stringAt(field, "nombre_interno"),
				Label:        stringAt(field, "etiqueta"),
				Class:        strings.ToLower(stringAt(field, "clase")),
				Type:         strings.ToLower(stringAt(field, "tipo")),
				Required:     truthy(field["requerido"]),
				Sequence:     intAt(field, "sequence"),
			}
			if meta.InternalName == "" {
				// Older snapshots use the live-structure key.
				meta.InternalName = stringAt(field, "nombre_campo")
			}
			if meta.IsGroup() {
				meta.GroupID = groupIDFromConfig(field["config"])
				if meta.GroupID != "" {
					meta.GroupFields = groupFieldsFromDB(ctx, db, meta.GroupID)
				}
			}
			out = append(out, meta)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// groupIDFromConfig digs id_group out of a field config that may be a map or
// a JSON-encoded string.
func groupIDFromConfig(raw any) string {
	cfg, ok := raw.(map[string]any)
	if !ok {
		if s, isString := raw.(string); isString {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				cfg = decoded
			}
		}
	}
	if cfg == nil {
		return ""
	}
	return stringAt(cfg, "id_group")
}

// groupFieldsFromDB resolves the member field metadata of a group. Lookup
// failures degrade to an empty member list so an export never fails on a
// deleted group.
func groupFieldsFromDB(ctx context.Context, db *gorm.DB, groupID string) []GroupFieldMeta {
	var fields []catalog.Field
	err := db.WithContext(ctx).
		Joins("JOIN formularios_campo_grupo cg ON cg.id_campo = formularios_campo.id_campo").
		Where("cg.id_grupo = ?", groupID).
		Find(&fields).Error
	if err != nil {
		return nil
	}
	out := make([]GroupFieldMeta, 0, len(fields))
	for _, field := range fields {
		out = append(out, GroupFieldMeta{
			FieldID:      field.ID,
			InternalName: field.InternalName,
			Label:        field.Label,
			Class:        strings.ToLower(field.Class),
			Type:         strings.ToLower(field.Type),
		})
	}
	return out
}

// normalFields returns the catalog without group containers.
func normalFields(fieldCatalog []FieldMeta) []FieldMeta {
	out := make([]FieldMeta, 0, len(fieldCatalog))
	for _, meta := range fieldCatalog {
		if !meta.IsGroup() {
			out = append(out, meta)
		}
	}
	return out
}

// hasGroups reports whether any catalog entry is a group container.
func hasGroups(fieldCatalog []FieldMeta) bool {
	for _, meta := range fieldCatalog {
		if meta.IsGroup() {
			return true
		}
	}
	return false
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intAt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	}
	return false
}

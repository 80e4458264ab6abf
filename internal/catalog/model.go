// Package catalog owns field definitions and grouped-field membership: the
// registered field classes, the shared Campo rows, and the Grupo containers
// that model repeatable sub-forms.
package catalog

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FieldClass is a registered UI class a field may be created with. The table
// is seeded at startup and consulted on every field creation.
type FieldClass struct {
	Class     string `json:"clase" gorm:"column:clase;primaryKey;size:30"`
	Structure string `json:"estructura" gorm:"column:estructura"`
}

// TableName keeps the legacy schema name.
func (FieldClass) TableName() string { return "formularios_clase_campo" }

// Field is a single input definition. Fields are shared: one Field may belong
// to a group and be linked into one page version at the same time.
type Field struct {
	ID           string            `json:"id_campo" gorm:"column:id_campo;primaryKey;size:36"`
	Type         string            `json:"tipo" gorm:"column:tipo;size:20"`
	Class        string            `json:"clase" gorm:"column:clase;size:30"`
	InternalName string            `json:"nombre_campo" gorm:"column:nombre_campo;size:64"`
	Label        string            `json:"etiqueta" gorm:"column:etiqueta;size:100"`
	Help         string            `json:"ayuda" gorm:"column:ayuda;size:255"`
	Config       datatypes.JSONMap `json:"config" gorm:"column:config"`
	Required     *bool             `json:"requerido" gorm:"column:requerido"`
}

// TableName keeps the legacy schema name.
func (Field) TableName() string { return "formularios_campo" }

// BeforeCreate ensures that a UUID is present for new records.
func (f *Field) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// ConfigMap returns the field configuration as a plain map, never nil.
func (f *Field) ConfigMap() map[string]any {
	if f.Config == nil {
		return map[string]any{}
	}
	return map[string]any(f.Config)
}

// Group is a named container keyed one-to-one to a field of class "group".
type Group struct {
	ID      string `json:"id_grupo" gorm:"column:id_grupo;primaryKey;size:36"`
	FieldID string `json:"id_campo_group" gorm:"column:id_campo_group;uniqueIndex;size:36"`
	Name    string `json:"nombre" gorm:"column:nombre;size:150"`
}

// TableName keeps the legacy schema name.
func (Group) TableName() string { return "formularios_grupo" }

// BeforeCreate ensures that a UUID is present for new records.
func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// GroupMember grants a field membership in a group. Group wiring is
// orthogonal to page versioning so these rows never trigger version bumps.
type GroupMember struct {
	GroupID string `json:"id_grupo" gorm:"column:id_grupo;primaryKey;size:36"`
	FieldID string `json:"id_campo" gorm:"column:id_campo;primaryKey;size:36"`
}

// TableName keeps the legacy schema name.
func (GroupMember) TableName() string { return "formularios_campo_grupo" }

// DefaultClasses lists the field classes seeded into a fresh installation.
func DefaultClasses() []FieldClass {
	classes := []string{
		"string", "text", "list", "hour", "group", "date",
		"number", "calc", "boolean", "firm", "dataset",
	}
	out := make([]FieldClass, 0, len(classes))
	for _, class := range classes {
		out = append(out, FieldClass{Class: class})
	}
	return out
}

// Package versioning owns the versioned document model: immutable form and
// page version markers, the live page-to-version pointers, and the
// propagation engine that keeps them consistent across structural edits.
package versioning

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FormVersion is an opaque, timestamped version marker for a form. Rows are
// immutable: never mutated, only superseded by newer rows.
type FormVersion struct {
	ID        string    `json:"id_index_version" gorm:"column:id_index_version;primaryKey;size:36"`
	CreatedAt time.Time `json:"fecha_creacion" gorm:"column:fecha_creacion;autoCreateTime"`
}

// TableName keeps the legacy schema name.
func (FormVersion) TableName() string { return "formularios_formularioindexversion" }

// BeforeCreate ensures that a UUID is present for new records.
func (v *FormVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// FormVersionLink is the one-to-one historical record binding a FormVersion
// to its form. Created atomically with the version, never updated.
type FormVersionLink struct {
	VersionID string `json:"id_index_version" gorm:"column:id_index_version;primaryKey;size:36"`
	FormID    string `json:"id_formulario" gorm:"column:id_formulario;size:36;index"`
}

// TableName keeps the legacy schema name.
func (FormVersionLink) TableName() string { return "formularios_formularios_index_version" }

// Page is a named, ordered slot within a form. Its identity is stable across
// versions; only its field set changes via new PageVersions.
type Page struct {
	ID          string `json:"id_pagina" gorm:"column:id_pagina;primaryKey;size:36"`
	Sequence    int    `json:"secuencia" gorm:"column:secuencia;default:1"`
	Name        string `json:"nombre" gorm:"column:nombre;size:120"`
	Description string `json:"descripcion" gorm:"column:descripcion"`
}

// TableName keeps the legacy schema name.
func (Page) TableName() string { return "formularios_pagina" }

// BeforeCreate ensures that a UUID is present for new records.
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PagePointer is the live pointer mapping a page to the FormVersion currently
// owning it. Exactly one row exists per page, maintained by upsert.
type PagePointer struct {
	PageID    string `json:"id_pagina" gorm:"column:id_pagina;primaryKey;size:36"`
	VersionID string `json:"id_index_version" gorm:"column:id_index_version;size:36;index"`
}

// TableName keeps the legacy schema name.
func (PagePointer) TableName() string { return "formularios_pagina_index_version" }

// PageVersion is an immutable snapshot marker for a page's field set.
// "Current" is the most recent row by creation time.
type PageVersion struct {
	ID        string    `json:"id_pagina_version" gorm:"column:id_pagina_version;primaryKey;size:32"`
	CreatedAt time.Time `json:"fecha_creacion" gorm:"column:fecha_creacion;index:idx_pv_pagina_fecha,priority:2"`
	PageID    string    `json:"id_pagina" gorm:"column:id_pagina;size:36;index:idx_pv_pagina_fecha,priority:1"`
}

// TableName keeps the legacy schema name.
func (PageVersion) TableName() string { return "formularios_pagina_version" }

// PageField links a field to a page version with an ordering sequence. The
// field id is the primary key: a field belongs to at most one page version at
// any instant, which is why snapshots move membership rows instead of
// copying them.
type PageField struct {
	FieldID       string `json:"id_campo" gorm:"column:id_campo;primaryKey;size:36"`
	PageVersionID string `json:"id_pagina_version" gorm:"column:id_pagina_version;size:32;index"`
	Sequence      *int   `json:"sequence" gorm:"column:sequence"`
}

// TableName keeps the legacy schema name.
func (PageField) TableName() string { return "formularios_pagina_campo" }

// NewPageVersionID returns a 32-char dashless uuid, the legacy page version
// id format.
func NewPageVersionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Package dataset owns uploaded tabular sources and the materialized
// allowed-value catalogs of dataset-class fields.
package dataset

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Source file types.
const (
	FileTypeCSV   = "csv"
	FileTypeExcel = "excel"
)

// Source is the metadata of an uploaded tabular file. The bytes themselves
// live behind the blob collaborator.
type Source struct {
	ID          string         `json:"id" gorm:"column:id;primaryKey;size:36"`
	Name        string         `json:"nombre" gorm:"column:nombre;size:200"`
	Description string         `json:"descripcion" gorm:"column:descripcion"`
	FileName    string         `json:"archivo_nombre" gorm:"column:archivo_nombre;size:255"`
	BlobName    string         `json:"blob_name" gorm:"column:blob_name;size:500"`
	BlobURL     string         `json:"blob_url" gorm:"column:blob_url;size:1000"`
	FileType    string         `json:"tipo_archivo" gorm:"column:tipo_archivo;size:10"`
	Columns     datatypes.JSON `json:"columnas" gorm:"column:columnas"`
	Preview     datatypes.JSON `json:"preview_data" gorm:"column:preview_data"`
	UploadedAt  time.Time      `json:"fecha_subida" gorm:"column:fecha_subida;autoCreateTime"`
	Active      bool           `json:"activo" gorm:"column:activo;default:true"`
	CreatedBy   string         `json:"creado_por" gorm:"column:creado_por;size:150"`
}

// TableName keeps the legacy schema name.
func (Source) TableName() string { return "formularios_fuente_datos" }

// BeforeCreate ensures that a UUID is present for new records.
func (s *Source) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Value is one materialized allowed value of a dataset-class field. Values
// are rebuilt wholesale whenever the source changes; they carry no versions.
type Value struct {
	ID        string            `json:"id" gorm:"column:id;primaryKey;size:36"`
	FieldID   string            `json:"campo_id" gorm:"column:campo_id;size:36;index;uniqueIndex:uq_fdv_campo_key,priority:1"`
	SourceID  string            `json:"fuente_id" gorm:"column:fuente_id;size:36;index"`
	Column    string            `json:"columna" gorm:"column:columna;size:200"`
	Key       *string           `json:"key_text" gorm:"column:key_text;uniqueIndex:uq_fdv_campo_key,priority:2"`
	Label     string            `json:"label_text" gorm:"column:label_text;index:idx_fdv_campo_label"`
	Raw       datatypes.JSONMap `json:"valor_raw" gorm:"column:valor_raw"`
	Extras    datatypes.JSONMap `json:"extras" gorm:"column:extras"`
	CreatedAt time.Time         `json:"creado_en" gorm:"column:creado_en;autoCreateTime"`
}

// TableName keeps the legacy schema name.
func (Value) TableName() string { return "formularios_fuente_datos_valor" }

// BeforeCreate ensures that a UUID is present for new records.
func (v *Value) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// Item is a key/label pair served to form renderers.
type Item struct {
	Key   *string `json:"key"`
	Label string  `json:"label"`
}

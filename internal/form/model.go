// Package form owns the form lifecycle: creation, partial update under the
// suspend lock, duplication, cascade deletion and the published-structure
// read path.
package form

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Form states.
const (
	StateIngresado  = "Ingresado"
	StateActivo     = "Activo"
	StateSuspendido = "Suspendido"
	StatePruebas    = "Pruebas"
	StateAnulado    = "Anulado"
)

// Delivery modes.
const (
	EnvioOnlineOffline = "En Linea/fuera Linea"
	EnvioOnline        = "En Linea"
	EnvioGuardar       = "Guardar"
)

// States lists the valid form states.
func States() []string {
	return []string{StateIngresado, StateActivo, StateSuspendido, StatePruebas, StateAnulado}
}

// DeliveryModes lists the valid delivery modes.
func DeliveryModes() []string {
	return []string{EnvioOnlineOffline, EnvioOnline, EnvioGuardar}
}

// Category groups forms for administration.
type Category struct {
	ID          string `json:"id" gorm:"column:id;primaryKey;size:36"`
	Name        string `json:"nombre" gorm:"column:nombre;size:100"`
	Description string `json:"descripcion" gorm:"column:descripcion"`
}

// TableName keeps the legacy schema name.
func (Category) TableName() string { return "formularios_categoria" }

// BeforeCreate ensures that a UUID is present for new records.
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Form is a published document template composed of ordered pages.
type Form struct {
	ID            string     `json:"id" gorm:"column:id;primaryKey;size:36"`
	CategoryID    *string    `json:"categoria_id" gorm:"column:categoria_id;size:36"`
	Name          string     `json:"nombre" gorm:"column:nombre;size:100"`
	Description   string     `json:"descripcion" gorm:"column:descripcion"`
	AllowPhotos   bool       `json:"permitir_fotos" gorm:"column:permitir_fotos"`
	AllowGPS      bool       `json:"permitir_gps" gorm:"column:permitir_gps"`
	AvailableFrom time.Time  `json:"disponible_desde_fecha" gorm:"column:disponible_desde_fecha"`
	AvailableTo   time.Time  `json:"disponible_hasta_fecha" gorm:"column:disponible_hasta_fecha"`
	Periodicity   *int       `json:"periodicidad" gorm:"column:periodicidad"`
	State         string     `json:"estado" gorm:"column:estado;size:20"`
	DeliveryMode  string     `json:"forma_envio" gorm:"column:forma_envio;size:30"`
	Public        bool       `json:"es_publico" gorm:"column:es_publico"`
	AutoSend      bool       `json:"auto_envio" gorm:"column:auto_envio"`
}

// TableName keeps the legacy schema name.
func (Form) TableName() string { return "formularios_formulario" }

// BeforeCreate ensures that a UUID is present for new records.
func (f *Form) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// Suspended reports whether the form is in the locked state.
func (f *Form) Suspended() bool { return f.State == StateSuspendido }

// Entry is a filled response. It is populated by the capture collaborator and
// read-only to this core: form_json freezes the field catalog at fill time,
// fill_json holds the answers keyed by page id and field internal name.
type Entry struct {
	ID            string            `json:"id" gorm:"column:id;primaryKey;size:36"`
	UserID        string            `json:"id_usuario" gorm:"column:id_usuario_id;size:150"`
	FormID        string            `json:"form_id" gorm:"column:form_id;size:36;index"`
	VersionID     string            `json:"index_version_id" gorm:"column:index_version_id;size:36"`
	FormName      string            `json:"form_name" gorm:"column:form_name;size:200"`
	FilledAtLocal *time.Time        `json:"filled_at_local" gorm:"column:filled_at_local"`
	Status        string            `json:"status" gorm:"column:status;size:50"`
	FillJSON      datatypes.JSONMap `json:"fill_json" gorm:"column:fill_json"`
	FormJSON      datatypes.JSONMap `json:"form_json" gorm:"column:form_json"`
	CreatedAt     time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

// TableName keeps the legacy schema name.
func (Entry) TableName() string { return "formularios_entry" }

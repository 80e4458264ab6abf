package form

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/dataset"
	"github.com/csuvg/PG-2025-21169/internal/versioning"
)

// Service implements form lifecycle operations on top of the versioning
// engine.
type Service struct {
	db     *gorm.DB
	engine *versioning.Engine
}

// NewService builds a form service.
func NewService(db *gorm.DB, engine *versioning.Engine) *Service {
	return &Service{db: db, engine: engine}
}

// CreateInput carries the attributes of a new form.
type CreateInput struct {
	CategoryID    *string   `json:"categoria_id"`
	Name          string    `json:"nombre"`
	Description   string    `json:"descripcion"`
	AllowPhotos   bool      `json:"permitir_fotos"`
	AllowGPS      bool      `json:"permitir_gps"`
	AvailableFrom time.Time `json:"disponible_desde_fecha"`
	AvailableTo   time.Time `json:"disponible_hasta_fecha"`
	Periodicity   *int      `json:"periodicidad"`
	State         string    `json:"estado"`
	DeliveryMode  string    `json:"forma_envio"`
	Public        bool      `json:"es_publico"`
	AutoSend      bool      `json:"auto_envio"`
}

// List returns all forms, optionally filtered by a case-insensitive name
// search.
func (s *Service) List(ctx context.Context, search string) ([]Form, error) {
	query := s.db.WithContext(ctx).Model(&Form{}).Order("nombre")
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(nombre) LIKE LOWER(?)", like)
	}

	var forms []Form
	if err := query.Find(&forms).Error; err != nil {
		return nil, err
	}
	return forms, nil
}

// Find returns a form by id.
func (s *Service) Find(ctx context.Context, id string) (*Form, error) {
	var entity Form
	if err := s.db.WithContext(ctx).First(&entity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("form", id)
		}
		return nil, err
	}
	return &entity, nil
}

// Create validates and persists a new form. No version is created yet: the
// first version appears when the first page is added.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Form, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("form name is required").WithField("nombre", "required")
	}
	state := in.State
	if state == "" {
		state = StateIngresado
	}
	if !validChoice(state, States()) {
		return nil, apperr.Validation("invalid state %q", state).WithField("estado", "invalid choice")
	}
	mode := in.DeliveryMode
	if mode == "" {
		mode = EnvioOnlineOffline
	}
	if !validChoice(mode, DeliveryModes()) {
		return nil, apperr.Validation("invalid delivery mode %q", mode).WithField("forma_envio", "invalid choice")
	}
	if err := checkDates(in.AvailableFrom, in.AvailableTo); err != nil {
		return nil, err
	}

	entity := &Form{
		CategoryID:    in.CategoryID,
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		AllowPhotos:   in.AllowPhotos,
		AllowGPS:      in.AllowGPS,
		AvailableFrom: in.AvailableFrom,
		AvailableTo:   in.AvailableTo,
		Periodicity:   in.Periodicity,
		State:         state,
		DeliveryMode:  mode,
		Public:        in.Public,
		AutoSend:      in.AutoSend,
	}
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return entity, nil
}

// editableFormColumns whitelists the columns a partial update may touch.
// Anything outside it is bad input shape, never raw SQL.
var editableFormColumns = map[string]bool{
	"categoria_id":           true,
	"nombre":                 true,
	"descripcion":            true,
	"permitir_fotos":         true,
	"permitir_gps":           true,
	"disponible_desde_fecha": true,
	"disponible_hasta_fecha": true,
	"periodicidad":           true,
	"estado":                 true,
	"forma_envio":            true,
	"es_publico":             true,
	"auto_envio":             true,
}

// Update applies a partial update. A suspended form accepts only a
// state-changing edit: any other changed field is rejected while the state is
// Suspendido.
func (s *Service) Update(ctx context.Context, id string, updates map[string]any) (*Form, error) {
	entity, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	delete(updates, "id")
	if len(updates) == 0 {
		return nil, apperr.Validation("no updates provided")
	}
	for key := range updates {
		if !editableFormColumns[key] {
			return nil, apperr.Validation("unknown field %q", key).WithField(key, "not editable")
		}
	}

	if entity.Suspended() {
		for key := range updates {
			if key != "estado" {
				return nil, apperr.State("form is suspended; only the state may be changed").
					WithHint("send {\"estado\": ...} alone to unlock")
			}
		}
	}

	if raw, ok := updates["estado"]; ok {
		state, _ := raw.(string)
		if !validChoice(state, States()) {
			return nil, apperr.Validation("invalid state %q", state).WithField("estado", "invalid choice")
		}
	}
	if raw, ok := updates["forma_envio"]; ok {
		mode, _ := raw.(string)
		if !validChoice(mode, DeliveryModes()) {
			return nil, apperr.Validation("invalid delivery mode %q", mode).WithField("forma_envio", "invalid choice")
		}
	}

	from, to := entity.AvailableFrom, entity.AvailableTo
	for key, target := range map[string]*time.Time{
		"disponible_desde_fecha": &from,
		"disponible_hasta_fecha": &to,
	} {
		raw, ok := updates[key]
		if !ok {
			continue
		}
		parsed, err := parseDate(raw)
		if err != nil {
			return nil, apperr.Validation("invalid date for %s", key).WithField(key, "unparseable date")
		}
		*target = parsed
		updates[key] = parsed
	}
	if err := checkDates(from, to); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(entity).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Find(ctx, id)
}

// Suspend moves the form into the locked state. Suspending an already
// suspended form is a no-op.
func (s *Service) Suspend(ctx context.Context, id string) (*Form, error) {
	entity, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.Suspended() {
		return entity, nil
	}
	if err := s.db.WithContext(ctx).Model(entity).Update("estado", StateSuspendido).Error; err != nil {
		return nil, err
	}
	entity.State = StateSuspendido
	return entity, nil
}

// EntryCount counts the collected responses of a form.
func (s *Service) EntryCount(ctx context.Context, formID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Entry{}).Where("form_id = ?", formID).Count(&count).Error
	return count, err
}

// Delete removes a form and everything it exclusively owns. It is refused
// while responses exist. The cascade deletes children before parents:
// memberships, page versions, orphaned fields (with their group wiring and
// dataset values), pointers and pages, version links and versions, then the
// form itself.
func (s *Service) Delete(ctx context.Context, id string) error {
	entity, err := s.Find(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.EntryCount(ctx, entity.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("cannot delete: the form has %d collected response(s)", count).
			WithHint("suspend the form instead to keep the history and block new responses").
			WithMeta("entries_count", count)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var versionIDs []string
		if err := tx.Model(&versioning.FormVersionLink{}).
			Where("id_formulario = ?", entity.ID).
			Pluck("id_index_version", &versionIDs).Error; err != nil {
			return err
		}

		var pageIDs []string
		if len(versionIDs) > 0 {
			if err := tx.Model(&versioning.PagePointer{}).
				Where("id_index_version IN ?", versionIDs).
				Pluck("id_pagina", &pageIDs).Error; err != nil {
				return err
			}
		}

		var pageVersionIDs []string
		if len(pageIDs) > 0 {
			if err := tx.Model(&versioning.PageVersion{}).
				Where("id_pagina IN ?", pageIDs).
				Pluck("id_pagina_version", &pageVersionIDs).Error; err != nil {
				return err
			}
		}

		if len(pageVersionIDs) > 0 {
			if err := tx.Where("id_pagina_version IN ?", pageVersionIDs).
				Delete(&versioning.PageField{}).Error; err != nil {
				return err
			}
		}
		if len(pageIDs) > 0 {
			if err := tx.Where("id_pagina IN ?", pageIDs).
				Delete(&versioning.PageVersion{}).Error; err != nil {
				return err
			}
		}

		if err := deleteOrphanFields(tx); err != nil {
			return err
		}

		if len(pageIDs) > 0 {
			if err := tx.Where("id_pagina IN ?", pageIDs).
				Delete(&versioning.PagePointer{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id_pagina IN ?", pageIDs).
				Delete(&versioning.Page{}).Error; err != nil {
				return err
			}
		}

		if len(versionIDs) > 0 {
			if err := tx.Where("id_index_version IN ?", versionIDs).
				Delete(&versioning.FormVersionLink{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id_index_version IN ?", versionIDs).
				Delete(&versioning.FormVersion{}).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&Form{}, "id = ?", entity.ID).Error
	})
}

// deleteOrphanFields removes fields with no remaining page membership,
// together with their group wiring and materialized dataset values.
func deleteOrphanFields(tx *gorm.DB) error {
	var orphanIDs []string
	err := tx.Model(&catalog.Field{}).
		Where("id_campo NOT IN (?)", tx.Session(&gorm.Session{NewDB: true}).
			Model(&versioning.PageField{}).Select("id_campo")).
		Pluck("id_campo", &orphanIDs).Error
	if err != nil {
		return err
	}
	if len(orphanIDs) == 0 {
		return nil
	}

	var groupIDs []string
	if err := tx.Model(&catalog.Group{}).
		Where("id_campo_group IN ?", orphanIDs).
		Pluck("id_grupo", &groupIDs).Error; err != nil {
		return err
	}
	if len(groupIDs) > 0 {
		if err := tx.Where("id_grupo IN ?", groupIDs).Delete(&catalog.GroupMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id_grupo IN ?", groupIDs).Delete(&catalog.Group{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("id_campo IN ?", orphanIDs).Delete(&catalog.GroupMember{}).Error; err != nil {
		return err
	}
	if err := tx.Where("campo_id IN ?", orphanIDs).Delete(&dataset.Value{}).Error; err != nil {
		return err
	}
	return tx.Where("id_campo IN ?", orphanIDs).Delete(&catalog.Field{}).Error
}

// Duplicate deep-copies a form: cloned attributes, a fresh version and link,
// and for every page of the source's current version a new page, pointer,
// page version and cloned fields with new identities at the same sequence.
func (s *Service) Duplicate(ctx context.Context, id, newName string) (*Form, error) {
	source, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	var clone *Form
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		name := strings.TrimSpace(newName)
		if name == "" {
			name = source.Name + "_Copia"
		}
		clone = &Form{
			CategoryID:    source.CategoryID,
			Name:          name,
			Description:   source.Description,
			AllowPhotos:   source.AllowPhotos,
			AllowGPS:      source.AllowGPS,
			AvailableFrom: source.AvailableFrom,
			AvailableTo:   source.AvailableTo,
			Periodicity:   source.Periodicity,
			State:         source.State,
			DeliveryMode:  source.DeliveryMode,
			Public:        source.Public,
			AutoSend:      source.AutoSend,
		}
		if err := tx.Create(clone).Error; err != nil {
			return err
		}

		cloneVersion := versioning.FormVersion{}
		if err := tx.Create(&cloneVersion).Error; err != nil {
			return err
		}
		link := versioning.FormVersionLink{VersionID: cloneVersion.ID, FormID: clone.ID}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}

		latest, err := latestVersionTx(ctx, tx, source.ID)
		if err != nil {
			return err
		}
		if latest == nil {
			return nil
		}

		var sourcePages []versioning.Page
		err = tx.Where("id_pagina IN (?)", tx.Session(&gorm.Session{NewDB: true}).
			Model(&versioning.PagePointer{}).
			Select("id_pagina").
			Where("id_index_version = ?", latest.ID)).
			Order("secuencia").
			Find(&sourcePages).Error
		if err != nil {
			return err
		}

		store := versioning.NewStore(tx)
		for _, sourcePage := range sourcePages {
			newPage := versioning.Page{
				Sequence:    sourcePage.Sequence,
				Name:        sourcePage.Name,
				Description: sourcePage.Description,
			}
			if err := tx.Create(&newPage).Error; err != nil {
				return err
			}
			pointer := versioning.PagePointer{PageID: newPage.ID, VersionID: cloneVersion.ID}
			if err := tx.Create(&pointer).Error; err != nil {
				return err
			}

			newPageVersion := versioning.PageVersion{
				ID:        versioning.NewPageVersionID(),
				CreatedAt: time.Now().UTC(),
				PageID:    newPage.ID,
			}
			if err := tx.Create(&newPageVersion).Error; err != nil {
				return err
			}

			sourceVersion, err := store.CurrentVersion(ctx, sourcePage.ID)
			if err != nil {
				return err
			}
			if sourceVersion == nil {
				continue
			}
			links, err := store.FieldsOfVersion(ctx, sourceVersion.ID)
			if err != nil {
				return err
			}
			for _, membership := range links {
				var original catalog.Field
				if err := tx.First(&original, "id_campo = ?", membership.FieldID).Error; err != nil {
					return err
				}
				copied := catalog.Field{
					Type:         original.Type,
					Class:        original.Class,
					InternalName: original.InternalName,
					Label:        original.Label,
					Help:         original.Help,
					Config:       original.Config,
					Required:     original.Required,
				}
				if err := tx.Create(&copied).Error; err != nil {
					return err
				}
				newLink := versioning.PageField{
					FieldID:       copied.ID,
					PageVersionID: newPageVersion.ID,
					Sequence:      membership.Sequence,
				}
				if err := tx.Create(&newLink).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

func latestVersionTx(ctx context.Context, tx *gorm.DB, formID string) (*versioning.FormVersion, error) {
	var version versioning.FormVersion
	err := tx.WithContext(ctx).Model(&versioning.FormVersion{}).
		Joins("JOIN formularios_formularios_index_version l ON l.id_index_version = formularios_formularioindexversion.id_index_version").
		Where("l.id_formulario = ?", formID).
		Order("formularios_formularioindexversion.fecha_creacion DESC").
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func parseDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, nil
			}
		}
	}
	return time.Time{}, errors.New("unparseable date")
}

func checkDates(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	if to.Before(from) {
		return apperr.Validation("disponible_hasta_fecha must not precede disponible_desde_fecha").
			WithField("disponible_hasta_fecha", "before disponible_desde_fecha")
	}
	return nil
}

func validChoice(value string, choices []string) bool {
	for _, choice := range choices {
		if value == choice {
			return true
		}
	}
	return false
}

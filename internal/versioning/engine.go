package versioning

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/observability"
)

// EventPublisher announces committed version bumps to interested consumers.
// Publishing is best effort and never affects the transaction outcome.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// Event is the payload published after a successful version bump.
type Event struct {
	Type      string    `json:"type"`
	FormID    string    `json:"form_id"`
	VersionID string    `json:"version_id"`
	Pages     []string  `json:"pages,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

// Engine computes and atomically applies the next consistent version across
// the page version store and the form version index for every structural
// edit. All five transition steps run in one transaction; on failure the
// prior state remains authoritative.
type Engine struct {
	db      *gorm.DB
	catalog *catalog.Service
	events  EventPublisher
}

// NewEngine builds the propagation engine. events may be nil.
func NewEngine(db *gorm.DB, cat *catalog.Service, events EventPublisher) *Engine {
	return &Engine{db: db, catalog: cat, events: events}
}

// DB exposes the engine's database handle for read-side collaborators.
func (e *Engine) DB() *gorm.DB { return e.db }

// Catalog exposes the field catalog service the engine mutates through.
func (e *Engine) Catalog() *catalog.Service { return e.catalog }

// bumpForPage runs transition steps 1-4 for the page: resolve the current
// pointer (bootstrapping a fresh version when the page was never pointed),
// trace it to the owning form, create the next FormVersion with its link, and
// re-point every page of the superseded version. Returns the form id and the
// new version id.
func (e *Engine) bumpForPage(ctx context.Context, tx *gorm.DB, pageID string) (string, string, error) {
	var pointer PagePointer
	err := tx.WithContext(ctx).First(&pointer, "id_pagina = ?", pageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Bootstrap: a never-pointed page gets a fresh version. Without a
		// form link the transition still fails below as orphaned, rolling
		// everything back; pages created through AddPage always carry a link.
		fresh := FormVersion{}
		if err := tx.WithContext(ctx).Create(&fresh).Error; err != nil {
			return "", "", err
		}
		if err := upsertPointer(ctx, tx, pageID, fresh.ID); err != nil {
			return "", "", err
		}
		pointer = PagePointer{PageID: pageID, VersionID: fresh.ID}
	} else if err != nil {
		return "", "", err
	}

	var link FormVersionLink
	err = tx.WithContext(ctx).First(&link, "id_index_version = ?", pointer.VersionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", apperr.State("page version %s is not traceable to any form", pointer.VersionID)
	}
	if err != nil {
		return "", "", err
	}

	next, err := e.newFormVersion(ctx, tx, link.FormID)
	if err != nil {
		return "", "", err
	}

	if err := e.repointPages(ctx, tx, pointer.VersionID, next.ID); err != nil {
		return "", "", err
	}
	return link.FormID, next.ID, nil
}

// newFormVersion creates an immutable version marker and its form link.
func (e *Engine) newFormVersion(ctx context.Context, tx *gorm.DB, formID string) (*FormVersion, error) {
	version := &FormVersion{}
	if err := tx.WithContext(ctx).Create(version).Error; err != nil {
		return nil, err
	}
	link := FormVersionLink{VersionID: version.ID, FormID: formID}
	if err := tx.WithContext(ctx).Create(&link).Error; err != nil {
		return nil, err
	}
	observability.FormVersionBumps.Inc()
	return version, nil
}

// repointPages moves every page pointed at the superseded version to the new
// one. The bump is form-wide: pages untouched by the current edit move too,
// because the FormVersion is a single shared generation counter.
func (e *Engine) repointPages(ctx context.Context, tx *gorm.DB, oldVersionID, newVersionID string) error {
	var pageIDs []string
	err := tx.WithContext(ctx).Model(&PagePointer{}).
		Where("id_index_version = ?", oldVersionID).
		Pluck("id_pagina", &pageIDs).Error
	if err != nil {
		return err
	}
	for _, id := range pageIDs {
		if err := upsertPointer(ctx, tx, id, newVersionID); err != nil {
			return err
		}
	}
	return nil
}

func upsertPointer(ctx context.Context, tx *gorm.DB, pageID, versionID string) error {
	pointer := PagePointer{PageID: pageID, VersionID: versionID}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id_pagina"}},
			DoUpdates: clause.Assignments(map[string]any{"id_index_version": versionID}),
		}).
		Create(&pointer).Error
}

// CreateFieldResult reports the identifiers produced by a field creation.
type CreateFieldResult struct {
	FieldID       string `json:"id_campo"`
	GroupID       string `json:"id_grupo,omitempty"`
	Type          string `json:"tipo"`
	Class         string `json:"clase"`
	InternalName  string `json:"nombre_campo"`
	Label         string `json:"etiqueta"`
	FormID        string `json:"id_formulario"`
	PageID        string `json:"id_pagina"`
	VersionID     string `json:"id_index_version"`
	PageVersionID string `json:"id_pagina_version"`
	Sequence      int    `json:"sequence"`
}

// CreateFieldOnPage creates a field and attaches it to the page's forced
// snapshot, bumping the whole form to a new version in the same transaction.
func (e *Engine) CreateFieldOnPage(ctx context.Context, pageID string, in catalog.FieldInput, actor string) (*CreateFieldResult, error) {
	var result *CreateFieldResult

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var page Page
		if err := tx.First(&page, "id_pagina = ?", pageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("page", pageID)
			}
			return err
		}

		field, err := e.catalog.CreateField(ctx, tx, in)
		if err != nil {
			return err
		}

		formID, versionID, err := e.bumpForPage(ctx, tx, pageID)
		if err != nil {
			return err
		}

		store := NewStore(tx)
		pageVersion, err := store.Snapshot(ctx, pageID, true)
		if err != nil {
			return err
		}

		sequence, err := store.AddFieldToVersion(ctx, pageVersion.ID, field.ID, in.Sequence)
		if err != nil {
			return err
		}

		result = &CreateFieldResult{
			FieldID:       field.ID,
			Type:          field.Type,
			Class:         field.Class,
			InternalName:  field.InternalName,
			Label:         field.Label,
			FormID:        formID,
			PageID:        pageID,
			VersionID:     versionID,
			PageVersionID: pageVersion.ID,
			Sequence:      sequence,
		}
		if field.Class == "group" {
			group, err := e.catalog.GroupByField(ctx, tx, field.ID)
			if err != nil {
				return err
			}
			if group != nil {
				result.GroupID = group.ID
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, Event{
		Type:      "form.version.created",
		FormID:    result.FormID,
		VersionID: result.VersionID,
		Pages:     []string{pageID},
		Actor:     actor,
		At:        time.Now().UTC(),
	})
	return result, nil
}

// UpdateField applies a partial field update and fans the version bump out to
// every page whose current version contains the field. Each affected page
// gets its own five-step transition; all of them share one transaction.
func (e *Engine) UpdateField(ctx context.Context, fieldID string, patch catalog.FieldPatch, mode catalog.ConfigMergeMode, actor string) (*catalog.Field, []string, error) {
	var field *catalog.Field
	var bumped []bumpedForm

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := e.catalog.UpdateField(ctx, tx, fieldID, patch, mode)
		if err != nil {
			return err
		}
		field = updated

		bumped, err = e.propagateFieldUpdate(ctx, tx, fieldID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	pageVersionIDs := make([]string, 0, len(bumped))
	for _, b := range bumped {
		pageVersionIDs = append(pageVersionIDs, b.pageVersionID)
		e.publish(ctx, Event{
			Type:      "form.version.created",
			FormID:    b.formID,
			VersionID: b.versionID,
			Pages:     []string{b.pageID},
			Actor:     actor,
			At:        time.Now().UTC(),
		})
	}
	return field, pageVersionIDs, nil
}

type bumpedForm struct {
	formID        string
	versionID     string
	pageID        string
	pageVersionID string
}

// propagateFieldUpdate finds every page whose current version holds the field
// and runs one transition per page. Fields shared across forms bump each
// owning form independently.
func (e *Engine) propagateFieldUpdate(ctx context.Context, tx *gorm.DB, fieldID string) ([]bumpedForm, error) {
	store := NewStore(tx)
	pageIDs, err := store.PagesContainingField(ctx, fieldID)
	if err != nil {
		return nil, err
	}

	bumped := make([]bumpedForm, 0, len(pageIDs))
	for _, pageID := range pageIDs {
		current, err := store.CurrentVersion(ctx, pageID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			continue
		}

		pageVersion, err := store.Snapshot(ctx, pageID, true)
		if err != nil {
			return nil, err
		}
		formID, versionID, err := e.bumpForPage(ctx, tx, pageID)
		if err != nil {
			return nil, err
		}
		bumped = append(bumped, bumpedForm{
			formID:        formID,
			versionID:     versionID,
			pageID:        pageID,
			pageVersionID: pageVersion.ID,
		})
	}
	return bumped, nil
}

// AddPage creates a page within a form: the form's current version is
// resolved (or created on first use), optionally bumped form-wide, and the
// page starts with an empty PageVersion and a live pointer.
func (e *Engine) AddPage(ctx context.Context, formID, name, description string, bump bool) (*Page, error) {
	var page *Page
	var destinationID string

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		latest, err := latestFormVersion(ctx, tx, formID)
		if err != nil {
			return err
		}
		if latest == nil {
			latest, err = e.newFormVersion(ctx, tx, formID)
			if err != nil {
				return err
			}
		}

		destination := latest
		if bump {
			destination, err = e.newFormVersion(ctx, tx, formID)
			if err != nil {
				return err
			}
			if err := e.repointPages(ctx, tx, latest.ID, destination.ID); err != nil {
				return err
			}
		}
		destinationID = destination.ID

		var maxSeq int
		err = tx.WithContext(ctx).Model(&Page{}).
			Where("id_pagina IN (?)", tx.Model(&PagePointer{}).
				Select("id_pagina").
				Where("id_index_version = ?", destination.ID)).
			Select("COALESCE(MAX(secuencia), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return err
		}

		pageName := strings.TrimSpace(name)
		if pageName == "" {
			pageName = "Nueva página"
		}
		page = &Page{
			Sequence:    maxSeq + 1,
			Name:        pageName,
			Description: strings.TrimSpace(description),
		}
		if err := tx.WithContext(ctx).Create(page).Error; err != nil {
			return err
		}
		if err := upsertPointer(ctx, tx, page.ID, destination.ID); err != nil {
			return err
		}

		empty := PageVersion{
			ID:        NewPageVersionID(),
			CreatedAt: time.Now().UTC(),
			PageID:    page.ID,
		}
		return tx.WithContext(ctx).Create(&empty).Error
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, Event{
		Type:      "form.version.created",
		FormID:    formID,
		VersionID: destinationID,
		Pages:     []string{page.ID},
		At:        time.Now().UTC(),
	})
	return page, nil
}

// PagePatch carries a partial page update. Nil members are left untouched.
type PagePatch struct {
	Name        *string `json:"nombre"`
	Description *string `json:"descripcion"`
	Sequence    *int    `json:"secuencia"`
}

// UpdatePage patches the page attributes and records the edit as a new
// version: forced snapshot plus form-wide bump.
func (e *Engine) UpdatePage(ctx context.Context, pageID string, patch PagePatch, actor string) (*Page, error) {
	var page Page
	var formID, versionID string

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&page, "id_pagina = ?", pageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("page", pageID)
			}
			return err
		}

		updates := make(map[string]any)
		if patch.Name != nil {
			updates["nombre"] = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			updates["descripcion"] = strings.TrimSpace(*patch.Description)
		}
		if patch.Sequence != nil {
			updates["secuencia"] = *patch.Sequence
		}
		if len(updates) == 0 {
			return apperr.Validation("no updates provided")
		}
		if err := tx.Model(&page).Updates(updates).Error; err != nil {
			return err
		}

		if _, err := NewStore(tx).Snapshot(ctx, pageID, true); err != nil {
			return err
		}
		var err error
		formID, versionID, err = e.bumpForPage(ctx, tx, pageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, Event{
		Type:      "form.version.created",
		FormID:    formID,
		VersionID: versionID,
		Pages:     []string{pageID},
		Actor:     actor,
		At:        time.Now().UTC(),
	})
	return &page, nil
}

// LatestFormVersion returns the form's most recent version, or nil when the
// form was never versioned.
func (e *Engine) LatestFormVersion(ctx context.Context, formID string) (*FormVersion, error) {
	return latestFormVersion(ctx, e.db, formID)
}

func latestFormVersion(ctx context.Context, db *gorm.DB, formID string) (*FormVersion, error) {
	var version FormVersion
	err := db.WithContext(ctx).Model(&FormVersion{}).
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

// PagesOfVersion lists the pages pointed at a form version in sequence order.
func (e *Engine) PagesOfVersion(ctx context.Context, versionID string) ([]Page, error) {
	var pages []Page
	err := e.db.WithContext(ctx).
		Where("id_pagina IN (?)", e.db.Model(&PagePointer{}).
			Select("id_pagina").
			Where("id_index_version = ?", versionID)).
		Order("secuencia").
		Find(&pages).Error
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// FindPage loads one page.
func (e *Engine) FindPage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := e.db.WithContext(ctx).First(&page, "id_pagina = ?", pageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("page", pageID)
		}
		return nil, err
	}
	return &page, nil
}

func (e *Engine) publish(ctx context.Context, event Event) {
	if e.events == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.events.Publish(ctx, event.FormID, payload, map[string]string{"type": event.Type}); err != nil {
		log.Printf("versioning: publish %s for form %s: %v", event.Type, event.FormID, err)
	}
}

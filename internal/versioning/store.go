package versioning

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/observability"
)

// Store is the page version store, scoped to one database handle. Callers
// running inside a transaction construct a Store over the transaction handle
// so every move stays atomic.
type Store struct {
	db *gorm.DB
}

// NewStore builds a store over the given handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CurrentVersion returns the most recently created PageVersion for a page,
// or nil if the page has never been versioned.
func (s *Store) CurrentVersion(ctx context.Context, pageID string) (*PageVersion, error) {
	var version PageVersion
	err := s.db.WithContext(ctx).
		Where("id_pagina = ?", pageID).
		Order("fecha_creacion DESC").
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// Snapshot resolves the page's current version. With forceNew false an
// existing current version is returned unchanged. With forceNew true (or when
// no version exists) a new PageVersion is created and every membership row of
// the prior version is moved to it, preserving sequences. Old versions end up
// empty: membership history is not preserved, only the timeline markers.
func (s *Store) Snapshot(ctx context.Context, pageID string, forceNew bool) (*PageVersion, error) {
	current, err := s.CurrentVersion(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if current != nil && !forceNew {
		return current, nil
	}

	next := &PageVersion{
		ID:        NewPageVersionID(),
		CreatedAt: time.Now().UTC(),
		PageID:    pageID,
	}
	if err := s.db.WithContext(ctx).Create(next).Error; err != nil {
		return nil, err
	}

	bootstrap := "true"
	if current != nil {
		bootstrap = "false"
		err := s.db.WithContext(ctx).Model(&PageField{}).
			Where("id_pagina_version = ?", current.ID).
			Update("id_pagina_version", next.ID).Error
		if err != nil {
			return nil, err
		}
	}
	observability.PageSnapshots.WithLabelValues(bootstrap).Inc()

	return next, nil
}

// NextSequence returns max(sequence)+1 within a page version, 1 when empty.
func (s *Store) NextSequence(ctx context.Context, pageVersionID string) (int, error) {
	var maxSeq int
	err := s.db.WithContext(ctx).Model(&PageField{}).
		Where("id_pagina_version = ?", pageVersionID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

// AddFieldToVersion inserts a membership row. A field already placed in any
// page version is a hard invariant violation, reported as a conflict. A nil
// sequence is assigned the next free slot.
func (s *Store) AddFieldToVersion(ctx context.Context, pageVersionID, fieldID string, sequence *int) (int, error) {
	var placed int64
	err := s.db.WithContext(ctx).Model(&PageField{}).
		Where("id_campo = ?", fieldID).
		Count(&placed).Error
	if err != nil {
		return 0, err
	}
	if placed > 0 {
		return 0, apperr.Conflict("field %s is already placed in a page version", fieldID).
			WithHint("a field may belong to at most one page version")
	}

	seq := 0
	if sequence != nil && *sequence > 0 {
		seq = *sequence
	} else {
		next, err := s.NextSequence(ctx, pageVersionID)
		if err != nil {
			return 0, err
		}
		seq = next
	}

	link := PageField{FieldID: fieldID, PageVersionID: pageVersionID, Sequence: &seq}
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		return 0, err
	}
	return seq, nil
}

// FieldsOfVersion lists the membership rows of a page version in sequence
// order.
func (s *Store) FieldsOfVersion(ctx context.Context, pageVersionID string) ([]PageField, error) {
	var links []PageField
	err := s.db.WithContext(ctx).
		Where("id_pagina_version = ?", pageVersionID).
		Order("sequence").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

// PagesContainingField returns the distinct ids of pages whose versions hold
// a membership row for the field. With the single-placement invariant this is
// at most one page, but the engine does not assume it.
func (s *Store) PagesContainingField(ctx context.Context, fieldID string) ([]string, error) {
	var pageIDs []string
	err := s.db.WithContext(ctx).Model(&PageField{}).
		Distinct("formularios_pagina_version.id_pagina").
		Joins("JOIN formularios_pagina_version ON formularios_pagina_version.id_pagina_version = formularios_pagina_campo.id_pagina_version").
		Where("formularios_pagina_campo.id_campo = ?", fieldID).
		Pluck("formularios_pagina_version.id_pagina", &pageIDs).Error
	if err != nil {
		return nil, err
	}
	return pageIDs, nil
}

package export

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/form"
	"github.com/csuvg/PG-2025-21169/internal/observability"
)

// Result is a flattened export: one main row per response plus zero or more
// normalized group rows.
type Result struct {
	FormID   string
	FormName string
	Rows     []*Row
	Groups   []*Row
}

// HasGroups reports whether the export produced group rows.
func (r *Result) HasGroups() bool { return len(r.Groups) > 0 }

// Service flattens the responses of a form.
type Service struct {
	db *gorm.DB
}

// NewService builds an export service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Export loads all responses of a form in fill order and flattens them. Each
// entry renders against its own frozen structure, so entries filled before a
// structural edit keep their original columns.
func (s *Service) Export(ctx context.Context, formID string) (*Result, error) {
	var entity form.Form
	if err := s.db.WithContext(ctx).First(&entity, "id = ?", formID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("form", formID)
		}
		return nil, err
	}

	var entries []form.Entry
	err := s.db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("filled_at_local, created_at").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	result := &Result{FormID: formID, FormName: entity.Name}
	for i := range entries {
		entry := &entries[i]
		fieldCatalog := BuildFieldCatalog(ctx, s.db, map[string]any(entry.FormJSON))
		result.Rows = append(result.Rows, FlattenEntry(entry, fieldCatalog))
		if hasGroups(fieldCatalog) {
			result.Groups = append(result.Groups, FlattenGroups(entry, fieldCatalog)...)
		}
	}

	observability.ExportRows.Add(float64(len(result.Rows) + len(result.Groups)))
	return result, nil
}

// FileBaseName returns a filesystem-safe base name for the export artifacts.
func (r *Result) FileBaseName() string {
	var b strings.Builder
	for _, ch := range r.FormName {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == ' ', ch == '_', ch == '-', ch == '.', ch == ',', ch == '(', ch == ')':
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) > 60 {
		name = name[:60]
	}
	if strings.TrimSpace(name) == "" {
		name = "export"
	}
	return name
}

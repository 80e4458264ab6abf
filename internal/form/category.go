package form

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
)

// Categories returns all categories ordered by name.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.db.WithContext(ctx).Order("nombre").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// FindCategory returns a category by id.
func (s *Service) FindCategory(ctx context.Context, id string) (*Category, error) {
	var category Category
	if err := s.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("category", id)
		}
		return nil, err
	}
	return &category, nil
}

// CreateCategory persists a new category.
func (s *Service) CreateCategory(ctx context.Context, name, description string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("category name is required").WithField("nombre", "required")
	}
	category := &Category{Name: name, Description: strings.TrimSpace(description)}
	if err := s.db.WithContext(ctx).Create(category).Error; err != nil {
		return nil, err
	}
	return category, nil
}

// UpdateCategory applies a partial update to a category.
func (s *Service) UpdateCategory(ctx context.Context, id string, updates map[string]any) (*Category, error) {
	category, err := s.FindCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	delete(updates, "id")
	if len(updates) == 0 {
		return nil, apperr.Validation("no updates provided")
	}
	for key := range updates {
		if key != "nombre" && key != "descripcion" {
			return nil, apperr.Validation("unknown field %q", key).WithField(key, "not editable")
		}
	}
	if err := s.db.WithContext(ctx).Model(category).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.FindCategory(ctx, id)
}

// DeleteCategory removes a category. It is refused while forms reference it.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	category, err := s.FindCategory(ctx, id)
	if err != nil {
		return err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Form{}).Where("categoria_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("cannot delete: %d form(s) use this category", count).
			WithHint("reassign or delete the forms first").
			WithMeta("forms_count", count)
	}
	return s.db.WithContext(ctx).Delete(category).Error
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
)

// DatasetMaterializer rebuilds the allowed-value catalog of a dataset-class
// field from its external source. Implementations may mutate cfg to persist
// resolved column names. It runs inside the caller's transaction.
type DatasetMaterializer interface {
	Materialize(ctx context.Context, tx *gorm.DB, fieldID string, cfg map[string]any) (int, error)
}

// Service implements the field catalog operations. All write methods accept
// the caller's transaction handle so structural edits stay atomic with the
// version propagation they trigger.
type Service struct {
	Types    TypePolicy
	Datasets DatasetMaterializer
}

// NewService builds a catalog service.
func NewService(types TypePolicy, datasets DatasetMaterializer) *Service {
	if types == nil {
		types = DefaultTypePolicy()
	}
	return &Service{Types: types, Datasets: datasets}
}

// FieldInput carries the caller-supplied attributes for a new field.
type FieldInput struct {
	Class        string         `json:"clase"`
	InternalName string         `json:"nombre_campo"`
	Label        string         `json:"etiqueta"`
	Help         string         `json:"ayuda"`
	Config       map[string]any `json:"config"`
	Required     *bool          `json:"requerido"`
	Sequence     *int           `json:"sequence"`
}

// CreateField validates the class, derives the storage type, persists the
// field and applies the class-specific side effects: dataset materialization
// (synchronous; failure aborts creation) and group-row wiring.
func (s *Service) CreateField(ctx context.Context, tx *gorm.DB, in FieldInput) (*Field, error) {
	class := strings.ToLower(strings.TrimSpace(in.Class))
	if class == "" {
		return nil, apperr.Validation("field class is required").WithField("clase", "required")
	}

	var registered int64
	if err := tx.WithContext(ctx).Model(&FieldClass{}).Where("clase = ?", class).Count(&registered).Error; err != nil {
		return nil, err
	}
	if registered == 0 {
		return nil, apperr.Validation("unknown field class %q", class).WithField("clase", "not registered")
	}

	name := strings.TrimSpace(in.InternalName)
	if name == "" {
		name = fmt.Sprintf("%s_%s", class, time.Now().Format("150405"))
	}

	cfg := in.Config
	if cfg == nil {
		cfg = map[string]any{}
	}

	field := &Field{
		Type:         s.Types.Resolve(class),
		Class:        class,
		InternalName: name,
		Label:        strings.TrimSpace(in.Label),
		Help:         strings.TrimSpace(in.Help),
		Required:     in.Required,
	}
	if len(cfg) > 0 {
		field.Config = datatypes.JSONMap(cfg)
	}
	if err := tx.WithContext(ctx).Create(field).Error; err != nil {
		return nil, err
	}

	switch class {
	case "dataset":
		cfg = NormalizeDatasetConfig(cfg)
		if _, err := DatasetConfigFrom(cfg); err != nil {
			return nil, err
		}
		if s.Datasets == nil {
			return nil, apperr.Validation("dataset fields are not supported: no materializer configured")
		}
		if _, err := s.Datasets.Materialize(ctx, tx, field.ID, cfg); err != nil {
			return nil, err
		}
		if ds, ok := cfg["dataset"].(map[string]any); ok {
			delete(ds, "version")
		}
		field.Config = datatypes.JSONMap(cfg)
		if err := tx.WithContext(ctx).Model(field).Update("config", field.Config).Error; err != nil {
			return nil, err
		}

	case "group":
		groupName := field.Label
		if groupName == "" {
			groupName = field.InternalName
		}
		if groupName == "" {
			groupName = "Grupo"
		}
		if runes := []rune(groupName); len(runes) > 150 {
			groupName = string(runes[:150])
		}

		var group Group
		err := tx.WithContext(ctx).Where("id_campo_group = ?", field.ID).First(&group).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			group = Group{FieldID: field.ID, Name: groupName}
			if err := tx.WithContext(ctx).Create(&group).Error; err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			if err := tx.WithContext(ctx).Model(&group).Update("nombre", groupName).Error; err != nil {
				return nil, err
			}
		}

		cfg = GroupConfig{GroupID: group.ID, Name: groupName}.Inject(cfg)
		field.Config = datatypes.JSONMap(cfg)
		if err := tx.WithContext(ctx).Model(field).Update("config", field.Config).Error; err != nil {
			return nil, err
		}
	}

	return field, nil
}

// ConfigMergeMode selects how a config patch is applied.
type ConfigMergeMode string

const (
	// ConfigMerge deep-merges the patch into the stored config.
	ConfigMerge ConfigMergeMode = "merge"
	// ConfigReplace overwrites the stored config entirely.
	ConfigReplace ConfigMergeMode = "replace"
)

// FieldPatch carries a partial field update. Nil members are left untouched.
type FieldPatch struct {
	Label    *string        `json:"etiqueta"`
	Help     *string        `json:"ayuda"`
	Required *bool          `json:"requerido"`
	Config   map[string]any `json:"config"`
}

// UpdateField applies a partial update to a field. Version propagation for the
// pages containing the field is the engine's responsibility and must run in
// the same transaction.
func (s *Service) UpdateField(ctx context.Context, tx *gorm.DB, fieldID string, patch FieldPatch, mode ConfigMergeMode) (*Field, error) {
	var field Field
	if err := tx.WithContext(ctx).First(&field, "id_campo = ?", fieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("field", fieldID)
		}
		return nil, err
	}

	updates := make(map[string]any)
	if patch.Label != nil {
		updates["etiqueta"] = strings.TrimSpace(*patch.Label)
	}
	if patch.Help != nil {
		updates["ayuda"] = strings.TrimSpace(*patch.Help)
	}
	if patch.Required != nil {
		updates["requerido"] = *patch.Required
	}
	if patch.Config != nil {
		switch mode {
		case ConfigReplace:
			updates["config"] = datatypes.JSONMap(patch.Config)
		case ConfigMerge, "":
			merged := DeepMerge(field.ConfigMap(), patch.Config)
			updates["config"] = datatypes.JSONMap(merged)
		default:
			return nil, apperr.Validation("unknown config merge mode %q", mode)
		}
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("no updates provided")
	}

	if err := tx.WithContext(ctx).Model(&field).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).First(&field, "id_campo = ?", fieldID).Error; err != nil {
		return nil, err
	}
	return &field, nil
}

// FindField loads one field.
func (s *Service) FindField(ctx context.Context, db *gorm.DB, fieldID string) (*Field, error) {
	var field Field
	if err := db.WithContext(ctx).First(&field, "id_campo = ?", fieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("field", fieldID)
		}
		return nil, err
	}
	return &field, nil
}

// GroupByField loads the group keyed to a group-class field, or nil.
func (s *Service) GroupByField(ctx context.Context, db *gorm.DB, fieldID string) (*Group, error) {
	var group Group
	err := db.WithContext(ctx).Where("id_campo_group = ?", fieldID).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// AddGroupMember grants a field membership in a group. The operation is
// idempotent: re-adding an existing pair is a no-op.
func (s *Service) AddGroupMember(ctx context.Context, db *gorm.DB, groupID, fieldID string) error {
	var group Group
	if err := db.WithContext(ctx).First(&group, "id_grupo = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("group", groupID)
		}
		return err
	}
	if _, err := s.FindField(ctx, db, fieldID); err != nil {
		return err
	}

	member := GroupMember{GroupID: groupID, FieldID: fieldID}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error
}

// RemoveGroupMember revokes a field's membership in a group. Removing a
// missing pair is a no-op.
func (s *Service) RemoveGroupMember(ctx context.Context, db *gorm.DB, groupID, fieldID string) error {
	return db.WithContext(ctx).
		Where("id_grupo = ? AND id_campo = ?", groupID, fieldID).
		Delete(&GroupMember{}).Error
}

// ReplaceGroupMembers makes the group's membership exactly the given field
// set: missing pairs are inserted, pairs outside the set are removed.
func (s *Service) ReplaceGroupMembers(ctx context.Context, db *gorm.DB, groupID string, fieldIDs []string) error {
	var group Group
	if err := db.WithContext(ctx).First(&group, "id_grupo = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("group", groupID)
		}
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("id_grupo = ?", groupID)
		if len(fieldIDs) > 0 {
			query = query.Where("id_campo NOT IN ?", fieldIDs)
		}
		if err := query.Delete(&GroupMember{}).Error; err != nil {
			return err
		}
		for _, fieldID := range fieldIDs {
			member := GroupMember{GroupID: groupID, FieldID: fieldID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GroupMembers lists the member fields of a group.
func (s *Service) GroupMembers(ctx context.Context, db *gorm.DB, groupID string) ([]Field, error) {
	var fields []Field
	err := db.WithContext(ctx).
		Joins("JOIN formularios_campo_grupo cg ON cg.id_campo = formularios_campo.id_campo").
		Where("cg.id_grupo = ?", groupID).
		Find(&fields).Error
	if err != nil {
		return nil, err
	}
	return fields, nil
}

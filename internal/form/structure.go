package form

import (
	"context"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/dataset"
	"github.com/csuvg/PG-2025-21169/internal/versioning"
)

// FieldDTO is a field as rendered in the published structure. Group fields
// carry their members in Children, which are removed from the page's top
// level.
type FieldDTO struct {
	ID       string         `json:"id_campo"`
	Sequence *int           `json:"sequence"`
	Name     string         `json:"nombre_campo"`
	Label    string         `json:"etiqueta"`
	Help     string         `json:"ayuda,omitempty"`
	Class    string         `json:"clase"`
	Type     string         `json:"tipo"`
	Required bool           `json:"requerido"`
	Config   map[string]any `json:"config"`
	Children []FieldDTO     `json:"children,omitempty"`
}

// PageDTO is a page plus its current field set.
type PageDTO struct {
	ID          string     `json:"id_pagina"`
	Sequence    int        `json:"secuencia"`
	Name        string     `json:"nombre"`
	Description string     `json:"descripcion,omitempty"`
	VersionID   string     `json:"id_pagina_version,omitempty"`
	Fields      []FieldDTO `json:"campos"`
}

// StructureDTO is the full renderable document for a form's current version.
type StructureDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"nombre"`
	Description   string    `json:"descripcion,omitempty"`
	CategoryName  string    `json:"categoria_nombre,omitempty"`
	State         string    `json:"estado"`
	DeliveryMode  string    `json:"forma_envio"`
	AllowPhotos   bool      `json:"permitir_fotos"`
	AllowGPS      bool      `json:"permitir_gps"`
	Public        bool      `json:"es_publico"`
	AutoSend      bool      `json:"auto_envio"`
	VersionID     string    `json:"id_index_version,omitempty"`
	Pages         []PageDTO `json:"paginas"`
}

// Structure assembles the current renderable document of a form: its pages in
// sequence order, each page's current field set in field order, dataset items
// inlined where the config asks for them and group members nested under their
// group field.
func (s *Service) Structure(ctx context.Context, formID string) (*StructureDTO, error) {
	entity, err := s.Find(ctx, formID)
	if err != nil {
		return nil, err
	}

	out := &StructureDTO{
		ID:           entity.ID,
		Name:         entity.Name,
		Description:  entity.Description,
		State:        entity.State,
		DeliveryMode: entity.DeliveryMode,
		AllowPhotos:  entity.AllowPhotos,
		AllowGPS:     entity.AllowGPS,
		Public:       entity.Public,
		AutoSend:     entity.AutoSend,
		Pages:        []PageDTO{},
	}

	if entity.CategoryID != nil {
		var category Category
		if err := s.db.WithContext(ctx).First(&category, "id = ?", *entity.CategoryID).Error; err == nil {
			out.CategoryName = category.Name
		}
	}

	latest, err := s.engine.LatestFormVersion(ctx, formID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return out, nil
	}
	out.VersionID = latest.ID

	pages, err := s.engine.PagesOfVersion(ctx, latest.ID)
	if err != nil {
		return nil, err
	}

	store := versioning.NewStore(s.db)
	for _, page := range pages {
		pageDTO := PageDTO{
			ID:          page.ID,
			Sequence:    page.Sequence,
			Name:        page.Name,
			Description: page.Description,
			Fields:      []FieldDTO{},
		}

		current, err := store.CurrentVersion(ctx, page.ID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			pageDTO.VersionID = current.ID
			fields, err := s.pageFields(ctx, current.ID)
			if err != nil {
				return nil, err
			}
			pageDTO.Fields = fields
		}
		out.Pages = append(out.Pages, pageDTO)
	}
	return out, nil
}

// pageFields loads the ordered field set of a page version and shapes it for
// rendering.
func (s *Service) pageFields(ctx context.Context, pageVersionID string) ([]FieldDTO, error) {
	store := versioning.NewStore(s.db)
	links, err := store.FieldsOfVersion(ctx, pageVersionID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []FieldDTO{}, nil
	}

	ids := make([]string, 0, len(links))
	sequences := make(map[string]*int, len(links))
	for _, link := range links {
		ids = append(ids, link.FieldID)
		sequences[link.FieldID] = link.Sequence
	}

	var fields []catalog.Field
	if err := s.db.WithContext(ctx).Where("id_campo IN ?", ids).Find(&fields).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]catalog.Field, len(fields))
	for _, field := range fields {
		byID[field.ID] = field
	}

	dtos := make([]FieldDTO, 0, len(links))
	for _, link := range links {
		field, ok := byID[link.FieldID]
		if !ok {
			continue
		}
		dto, err := s.fieldDTO(ctx, field, sequences[field.ID])
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, dto)
	}
	return s.nestGroups(ctx, dtos)
}

func (s *Service) fieldDTO(ctx context.Context, field catalog.Field, sequence *int) (FieldDTO, error) {
	cfg := field.ConfigMap()
	dto := FieldDTO{
		ID:       field.ID,
		Sequence: sequence,
		Name:     field.InternalName,
		Label:    field.Label,
		Help:     field.Help,
		Class:    field.Class,
		Type:     field.Type,
		Required: field.Required != nil && *field.Required,
		Config:   cfg,
	}
	if field.Class == "dataset" {
		if err := s.inlineDatasetItems(ctx, field.ID, cfg); err != nil {
			if !apperr.IsValidation(err) {
				return dto, err
			}
			// A malformed dataset config should not break the whole
			// structure read. The field renders without items.
		}
	}
	return dto, nil
}

// inlineDatasetItems attaches the materialized items to a dataset field's
// config when cache_inline asks for it.
func (s *Service) inlineDatasetItems(ctx context.Context, fieldID string, cfg map[string]any) error {
	normalized := catalog.NormalizeDatasetConfig(cfg)
	decoded, err := catalog.DatasetConfigFrom(normalized)
	if err != nil {
		return err
	}
	if !decoded.CacheInline {
		return nil
	}
	items, err := dataset.FetchItems(ctx, s.db, fieldID, decoded.LabelColumn, decoded.SourceID, decoded.MaxItemsInline)
	if err != nil {
		return err
	}
	ds, _ := normalized["dataset"].(map[string]any)
	if ds == nil {
		return nil
	}
	encoded := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row := map[string]any{"label": item.Label}
		if item.Key != nil {
			row["key"] = *item.Key
		}
		encoded = append(encoded, row)
	}
	ds["items"] = encoded
	cfg["dataset"] = ds
	return nil
}

// nestGroups moves group members under their group field's Children and drops
// them from the top level, preserving the original order in both places.
func (s *Service) nestGroups(ctx context.Context, dtos []FieldDTO) ([]FieldDTO, error) {
	memberOf := make(map[string]string)
	for i := range dtos {
		if dtos[i].Class != "group" {
			continue
		}
		group, err := s.engine.Catalog().GroupByField(ctx, s.db, dtos[i].ID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			continue
		}
		members, err := s.engine.Catalog().GroupMembers(ctx, s.db, group.ID)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			memberOf[member.ID] = dtos[i].ID
		}
	}
	if len(memberOf) == 0 {
		return dtos, nil
	}

	children := make(map[string][]FieldDTO)
	top := make([]FieldDTO, 0, len(dtos))
	for _, dto := range dtos {
		if groupID, ok := memberOf[dto.ID]; ok {
			children[groupID] = append(children[groupID], dto)
			continue
		}
		top = append(top, dto)
	}
	for i := range top {
		if kids, ok := children[top[i].ID]; ok {
			top[i].Children = kids
		}
	}
	return top, nil
}

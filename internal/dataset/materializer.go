package dataset

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/observability"
)

// Materializer rebuilds the allowed-value catalog of a dataset-class field
// from its uploaded source. Rebuilds are destructive: prior values for the
// field are deleted before the new set is bulk-inserted.
type Materializer struct {
	Blobs BlobStorage
}

// NewMaterializer builds a materializer over the given blob collaborator.
func NewMaterializer(blobs BlobStorage) *Materializer {
	return &Materializer{Blobs: blobs}
}

// Materialize implements catalog.DatasetMaterializer. It resolves the source
// columns case-insensitively, persists the resolved names back into cfg, and
// returns the number of values inserted. It runs inside the caller's
// transaction so a failure aborts the surrounding field creation.
func (m *Materializer) Materialize(ctx context.Context, tx *gorm.DB, fieldID string, cfg map[string]any) (int, error) {
	dc, err := catalog.DatasetConfigFrom(cfg)
	if err != nil {
		return 0, err
	}
	ds, _ := cfg["dataset"].(map[string]any)

	var source Source
	if err := tx.WithContext(ctx).First(&source, "id = ?", dc.SourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("data source", dc.SourceID)
		}
		return 0, err
	}

	table, err := m.loadTable(ctx, &source)
	if err != nil {
		return 0, err
	}

	var alias string
	switch dc.Mode {
	case catalog.DatasetModeSingle:
		column, err := table.Resolve(dc.Column, "")
		if err != nil {
			return 0, err
		}
		dc.Column = column
		ds["column"] = column
		alias = column

	case catalog.DatasetModePair:
		keyColumn, err := table.Resolve(dc.KeyColumn, "id")
		if err != nil {
			return 0, err
		}
		labelColumn, err := table.Resolve(dc.LabelColumn, "")
		if err != nil {
			return 0, err
		}
		dc.KeyColumn, dc.LabelColumn = keyColumn, labelColumn
		ds["key_column"] = keyColumn
		ds["label_column"] = labelColumn
		ds["column"] = labelColumn
		alias = labelColumn

	default:
		return 0, apperr.Validation("dataset.mode must be 'single' or 'pair'")
	}
	delete(ds, "version")

	if err := tx.WithContext(ctx).Where("campo_id = ?", fieldID).Delete(&Value{}).Error; err != nil {
		return 0, err
	}

	var values []Value
	if dc.Mode == catalog.DatasetModeSingle {
		values = singleValues(table, dc.Column, fieldID, source.ID, alias)
	} else {
		values = pairValues(table, dc.KeyColumn, dc.LabelColumn, fieldID, source.ID, alias)
	}

	if len(values) > 0 {
		if err := tx.WithContext(ctx).CreateInBatches(values, 500).Error; err != nil {
			return 0, err
		}
	}
	observability.DatasetValuesMaterialized.Add(float64(len(values)))
	return len(values), nil
}

func (m *Materializer) loadTable(ctx context.Context, source *Source) (*Table, error) {
	if source.FileType == FileTypeExcel {
		// Spreadsheets are converted to CSV by the upload pipeline; a raw
		// excel blob cannot be materialized here.
		return nil, apperr.Validation("source %q is an excel file; re-upload it as csv", source.Name)
	}

	content, err := m.Blobs.Download(ctx, source.BlobName)
	if err != nil {
		return nil, apperr.Validation("cannot read source %q", source.Name).WithCause(err)
	}
	return DecodeCSV(bytes.NewReader(content))
}

func singleValues(table *Table, column, fieldID, sourceID, alias string) []Value {
	seen := make(map[string]struct{})
	distinct := make([]string, 0)
	for _, v := range table.Values(column) {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}
	sort.Strings(distinct)

	values := make([]Value, 0, len(distinct))
	for _, v := range distinct {
		values = append(values, Value{
			FieldID:  fieldID,
			SourceID: sourceID,
			Column:   alias,
			Key:      nil,
			Label:    v,
			Raw:      map[string]any{"value": v},
			Extras:   map[string]any{},
		})
	}
	return values
}

func pairValues(table *Table, keyColumn, labelColumn, fieldID, sourceID, alias string) []Value {
	keys := table.Values(keyColumn)
	labels := table.Values(labelColumn)

	type pair struct{ key, label string }
	seen := make(map[pair]struct{})
	distinct := make([]pair, 0)
	for i := range keys {
		p := pair{key: strings.TrimSpace(keys[i]), label: strings.TrimSpace(labels[i])}
		if p.key == "" || p.label == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		distinct = append(distinct, p)
	}
	sort.Slice(distinct, func(i, j int) bool {
		if distinct[i].label != distinct[j].label {
			return distinct[i].label < distinct[j].label
		}
		return distinct[i].key < distinct[j].key
	})

	values := make([]Value, 0, len(distinct))
	for _, p := range distinct {
		key := p.key
		values = append(values, Value{
			FieldID:  fieldID,
			SourceID: sourceID,
			Column:   alias,
			Key:      &key,
			Label:    p.label,
			Raw:      map[string]any{keyColumn: p.key, labelColumn: p.label},
			Extras:   map[string]any{},
		})
	}
	return values
}

// FetchItems returns key/label pairs for a field's materialized catalog,
// ordered by label, optionally filtered by source and column alias.
func FetchItems(ctx context.Context, db *gorm.DB, fieldID, labelColumn, sourceID string, limit int) ([]Item, error) {
	query := db.WithContext(ctx).Model(&Value{}).Where("campo_id = ?", fieldID)
	if sourceID != "" {
		query = query.Where("fuente_id = ?", sourceID)
	}
	if labelColumn != "" {
		query = query.Where("columna = ?", labelColumn)
	}
	query = query.Order("label_text")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var values []Value
	if err := query.Find(&values).Error; err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(values))
	for _, v := range values {
		items = append(items, Item{Key: v.Key, Label: v.Label})
	}
	return items, nil
}

package catalog

import (
	"strings"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
)

// Dataset config modes.
const (
	DatasetModeSingle = "single"
	DatasetModePair   = "pair"
)

// DatasetConfig is the decoded "dataset" object of a dataset-class field.
type DatasetConfig struct {
	SourceID       string `json:"fuente_id"`
	Mode           string `json:"mode"`
	Column         string `json:"column"`
	KeyColumn      string `json:"key_column"`
	LabelColumn    string `json:"label_column"`
	CacheInline    bool   `json:"cache_inline"`
	MaxItemsInline int    `json:"max_items_inline"`
}

// NormalizeDatasetConfig accepts a flat or nested dataset config and returns
// the canonical shape: everything under a "dataset" key, the "file" alias mapped
// to fuente_id, mode lowered with a "pair" default, and inline-cache defaults.
func NormalizeDatasetConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		cfg = map[string]any{}
	}

	var ds map[string]any
	if nested, ok := cfg["dataset"].(map[string]any); ok {
		ds = nested
	} else {
		ds = make(map[string]any, len(cfg))
		for k, v := range cfg {
			ds[k] = v
		}
		cfg = map[string]any{"dataset": ds}
	}

	if _, ok := ds["fuente_id"]; !ok {
		if file, ok := ds["file"]; ok {
			ds["fuente_id"] = file
		}
	}

	mode, _ := ds["mode"].(string)
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = DatasetModePair
	}
	ds["mode"] = mode

	if _, ok := ds["cache_inline"]; !ok {
		ds["cache_inline"] = true
	}
	if _, ok := ds["max_items_inline"]; !ok {
		ds["max_items_inline"] = 300
	}

	return cfg
}

// DatasetConfigFrom validates and decodes the dataset object out of a
// normalized field config.
func DatasetConfigFrom(cfg map[string]any) (DatasetConfig, error) {
	ds, _ := cfg["dataset"].(map[string]any)
	if ds == nil {
		return DatasetConfig{}, apperr.Validation("config must include a 'dataset' object").
			WithField("config", "missing dataset object")
	}

	out := DatasetConfig{
		SourceID:       stringValue(ds["fuente_id"]),
		Mode:           strings.ToLower(stringValue(ds["mode"])),
		Column:         stringValue(ds["column"]),
		KeyColumn:      stringValue(ds["key_column"]),
		LabelColumn:    stringValue(ds["label_column"]),
		CacheInline:    boolValue(ds["cache_inline"], true),
		MaxItemsInline: intValue(ds["max_items_inline"], 300),
	}
	if out.Mode == "" {
		out.Mode = DatasetModePair
	}

	if out.SourceID == "" {
		return out, apperr.Validation("dataset.fuente_id is required").
			WithField("dataset.fuente_id", "required")
	}

	switch out.Mode {
	case DatasetModeSingle:
		if out.Column == "" {
			return out, apperr.Validation("dataset.column is required in mode=single").
				WithField("dataset.column", "required in mode=single")
		}
	case DatasetModePair:
		if out.KeyColumn == "" {
			out.KeyColumn = "id"
		}
		if out.LabelColumn == "" {
			return out, apperr.Validation("dataset.label_column is required in mode=pair").
				WithField("dataset.label_column", "required in mode=pair")
		}
	default:
		return out, apperr.Validation("dataset.mode must be 'single' or 'pair'").
			WithField("dataset.mode", "must be 'single' or 'pair'")
	}

	return out, nil
}

// GroupConfig is the metadata injected into a group-class field's config.
type GroupConfig struct {
	GroupID        string `json:"id_group"`
	Name           string `json:"name"`
	FieldCondition string `json:"fieldCondition"`
}

// Inject writes the group metadata into a field config, keeping any values the
// caller already provided for name and fieldCondition.
func (gc GroupConfig) Inject(cfg map[string]any) map[string]any {
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg["id_group"] = gc.GroupID
	if _, ok := cfg["name"]; !ok {
		cfg["name"] = gc.Name
	}
	if _, ok := cfg["fieldCondition"]; !ok {
		cfg["fieldCondition"] = gc.FieldCondition
	}
	return cfg
}

// DeepMerge recursively combines patch into base; patch wins on scalar and
// list conflicts. Base is modified in place and returned.
func DeepMerge(base, patch map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range patch {
		patchChild, patchIsMap := v.(map[string]any)
		baseChild, baseIsMap := base[k].(map[string]any)
		if patchIsMap && baseIsMap {
			base[k] = DeepMerge(baseChild, patchChild)
			continue
		}
		base[k] = v
	}
	return base
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func boolValue(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func intValue(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

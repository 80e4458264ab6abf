package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDatasetConfigWrapsFlatShape(t *testing.T) {
	cfg := NormalizeDatasetConfig(map[string]any{
		"file":         "src-1",
		"label_column": "nombre",
	})

	ds, ok := cfg["dataset"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "src-1", ds["fuente_id"])
	require.Equal(t, "pair", ds["mode"])
	require.Equal(t, true, ds["cache_inline"])
	require.Equal(t, 300, ds["max_items_inline"])
}

func TestNormalizeDatasetConfigKeepsNestedShape(t *testing.T) {
	cfg := NormalizeDatasetConfig(map[string]any{
		"dataset": map[string]any{
			"fuente_id":    "src-2",
			"mode":         "SINGLE",
			"cache_inline": false,
		},
	})

	ds := cfg["dataset"].(map[string]any)
	require.Equal(t, "single", ds["mode"])
	require.Equal(t, false, ds["cache_inline"])
}

func TestDatasetConfigFromDefaultsKeyColumn(t *testing.T) {
	cfg := NormalizeDatasetConfig(map[string]any{
		"fuente_id":    "src-1",
		"label_column": "nombre",
	})
	decoded, err := DatasetConfigFrom(cfg)
	require.NoError(t, err)
	require.Equal(t, "id", decoded.KeyColumn)
	require.Equal(t, "nombre", decoded.LabelColumn)
}

func TestDeepMergeNestedMaps(t *testing.T) {
	base := map[string]any{
		"a": "keep",
		"ui": map[string]any{
			"rows": 4,
			"deep": map[string]any{"x": 1},
		},
	}
	patch := map[string]any{
		"ui": map[string]any{
			"deep": map[string]any{"y": 2},
		},
		"b": "new",
	}

	merged := DeepMerge(base, patch)
	require.Equal(t, "keep", merged["a"])
	require.Equal(t, "new", merged["b"])
	ui := merged["ui"].(map[string]any)
	require.Equal(t, 4, ui["rows"])
	deep := ui["deep"].(map[string]any)
	require.Equal(t, 1, deep["x"])
	require.Equal(t, 2, deep["y"])
}

func TestDeepMergeListsReplaceWholesale(t *testing.T) {
	base := map[string]any{"options": []any{"a", "b"}}
	patch := map[string]any{"options": []any{"c"}}

	merged := DeepMerge(base, patch)
	require.Equal(t, []any{"c"}, merged["options"])
}

func TestGroupConfigInjectKeepsCallerValues(t *testing.T) {
	cfg := GroupConfig{GroupID: "g-1", Name: "Familia"}.Inject(map[string]any{
		"name":           "Mi grupo",
		"fieldCondition": "edad > 18",
	})

	require.Equal(t, "g-1", cfg["id_group"])
	require.Equal(t, "Mi grupo", cfg["name"])
	require.Equal(t, "edad > 18", cfg["fieldCondition"])
}

func TestTypePolicyFallsBackToText(t *testing.T) {
	policy := DefaultTypePolicy()
	require.Equal(t, "text", policy.Resolve("unregistered"))
	require.Equal(t, "text", policy.Resolve("string"))
	require.Equal(t, "boolean", policy.Resolve(" Boolean "))
}

package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/form"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&form.Form{}, &form.Entry{},
		&catalog.Field{}, &catalog.Group{}, &catalog.GroupMember{},
	))
	return db
}

func frozenForm(fields ...map[string]any) map[string]any {
	campos := make([]any, 0, len(fields))
	for _, f := range fields {
		campos = append(campos, any(f))
	}
	return map[string]any{
		"paginas": []any{
			map[string]any{"id_pagina": "pag-1", "campos": campos},
		},
	}
}

func TestBuildFieldCatalogSortsBySequence(t *testing.T) {
	db := testDB(t)
	formJSON := frozenForm(
		map[string]any{"id_campo": "f2", "nombre_interno": "edad", "etiqueta": "Edad", "clase": "Number", "sequence": float64(2)},
		map[string]any{"id_campo": "f1", "nombre_interno": "nombre", "etiqueta": "Nombre", "clase": "text", "sequence": float64(1)},
	)

	fieldCatalog := BuildFieldCatalog(context.Background(), db, formJSON)
	require.Len(t, fieldCatalog, 2)
	require.Equal(t, "f1", fieldCatalog[0].FieldID)
	require.Equal(t, "number", fieldCatalog[1].Class)
	require.Equal(t, "pag-1", fieldCatalog[0].PageID)
}

func TestBuildFieldCatalogResolvesGroupMembersLive(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	member := catalog.Field{InternalName: "parentesco", Label: "Parentesco", Class: "text", Type: "text"}
	require.NoError(t, db.Create(&member).Error)
	group := catalog.Group{FieldID: "f-group", Name: "Familia"}
	require.NoError(t, db.Create(&group).Error)
	require.NoError(t, db.Create(&catalog.GroupMember{GroupID: group.ID, FieldID: member.ID}).Error)

	formJSON := frozenForm(map[string]any{
		"id_campo":       "f-group",
		"nombre_interno": "familia",
		"etiqueta":       "Familia",
		"clase":          "group",
		"config":         map[string]any{"id_group": group.ID},
	})

	fieldCatalog := BuildFieldCatalog(ctx, db, formJSON)
	require.Len(t, fieldCatalog, 1)
	require.True(t, fieldCatalog[0].IsGroup())
	require.Len(t, fieldCatalog[0].GroupFields, 1)
	require.Equal(t, "parentesco", fieldCatalog[0].GroupFields[0].InternalName)
}

func TestBuildFieldCatalogParsesStringConfig(t *testing.T) {
	db := testDB(t)
	formJSON := frozenForm(map[string]any{
		"id_campo":       "f-group",
		"nombre_interno": "familia",
		"clase":          "group",
		"config":         `{"id_group":"g-77"}`,
	})

	fieldCatalog := BuildFieldCatalog(context.Background(), db, formJSON)
	require.Len(t, fieldCatalog, 1)
	require.Equal(t, "g-77", fieldCatalog[0].GroupID)
}

func sampleEntry() *form.Entry {
	filled := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	return &form.Entry{
		ID:            "e-1",
		UserID:        "colector1",
		FormName:      "Censo",
		Status:        "completo",
		FilledAtLocal: &filled,
		UpdatedAt:     filled,
		FillJSON: datatypes.JSONMap{
			"pag-1": map[string]any{
				"nombre":    "Ana",
				"acepta":    "si",
				"municipio": map[string]any{"key": "01", "label": "Antigua"},
				"familia": []any{
					map[string]any{"parentesco": "madre", "edad": float64(42)},
					map[string]any{"parentesco": "hijo", "edad": float64(9)},
				},
			},
		},
	}
}

func TestFlattenEntryNormalizesValues(t *testing.T) {
	fieldCatalog := []FieldMeta{
		{PageID: "pag-1", FieldID: "f1", InternalName: "nombre", Label: "Nombre", Class: "text", Sequence: 1},
		{PageID: "pag-1", FieldID: "f2", InternalName: "acepta", Label: "Acepta", Class: "boolean", Sequence: 2},
		{PageID: "pag-1", FieldID: "f3", InternalName: "municipio", Label: "Municipio", Class: "dataset", Sequence: 3},
		{PageID: "pag-1", FieldID: "f4", InternalName: "familia", Label: "Familia", Class: "group", Sequence: 4},
	}

	row := FlattenEntry(sampleEntry(), fieldCatalog)
	require.Equal(t, "e-1", row.Get("ID_Respuesta"))
	require.Equal(t, "Censo", row.Get("Nombre Formulario"))
	require.Equal(t, "Ana", row.Get("Nombre"))
	require.Equal(t, true, row.Get("Acepta"))
	require.Equal(t, "Antigua", row.Get("Municipio"))

	// Group containers never appear in the main row.
	require.Nil(t, row.Get("Familia"))
	require.Equal(t, append(append([]string{}, metaColumns...), "Nombre", "Acepta", "Municipio"), row.Columns())
}

func TestNormalizeValueBooleanTokens(t *testing.T) {
	for _, token := range []string{"1", "true", "t", "yes", "si", "sí", " SÍ "} {
		require.Equal(t, true, NormalizeValue(token, "boolean"), "token %q", token)
	}
	require.Equal(t, false, NormalizeValue("no", "boolean"))
	require.Equal(t, false, NormalizeValue("0", "boolean"))
	require.Nil(t, NormalizeValue(nil, "boolean"))
}

func TestNormalizeValueDatasetList(t *testing.T) {
	value := []any{
		map[string]any{"key": "1", "label": "Uno"},
		map[string]any{"key": "2", "label": "Dos"},
	}
	require.Equal(t, "Uno, Dos", NormalizeValue(value, "dataset"))
}

func TestFlattenGroupsOneRowPerInstance(t *testing.T) {
	fieldCatalog := []FieldMeta{
		{
			PageID: "pag-1", FieldID: "f4", InternalName: "familia", Label: "Familia", Class: "group", Sequence: 1,
			GroupFields: []GroupFieldMeta{
				{InternalName: "parentesco", Label: "Parentesco", Class: "text"},
				{InternalName: "edad", Label: "Edad", Class: "number"},
			},
		},
	}

	rows := FlattenGroups(sampleEntry(), fieldCatalog)
	require.Len(t, rows, 2)
	require.Equal(t, "e-1", rows[0].Get("ID_Respuesta"))
	require.Equal(t, "Familia", rows[0].Get("Nombre_Grupo"))
	require.Equal(t, "madre", rows[0].Get("Parentesco"))
	require.Equal(t, float64(9), rows[1].Get("Edad"))
}

func TestFlattenGroupsFallsBackToRecordKeys(t *testing.T) {
	fieldCatalog := []FieldMeta{
		{PageID: "pag-1", FieldID: "f4", InternalName: "familia", Label: "Familia", Class: "group"},
	}

	rows := FlattenGroups(sampleEntry(), fieldCatalog)
	require.Len(t, rows, 2)
	require.Equal(t, "madre", rows[0].Get("Parentesco"))
	require.Equal(t, float64(42), rows[0].Get("Edad"))
}

func TestRenderCSVUnionsColumnsAcrossRows(t *testing.T) {
	first := NewRow()
	first.Set("A", "1")
	second := NewRow()
	second.Set("A", "2")
	second.Set("B", "x")

	var buf bytes.Buffer
	require.NoError(t, RenderCSV(&buf, []*Row{first, second}))
	require.Equal(t, "A,B\n1,\n2,x\n", buf.String())
}

func TestExportServiceEndToEnd(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	entity := form.Form{Name: "Censo 2026"}
	require.NoError(t, db.Create(&entity).Error)

	entry := sampleEntry()
	entry.FormID = entity.ID
	entry.FormJSON = datatypes.JSONMap(frozenForm(
		map[string]any{"id_campo": "f1", "nombre_interno": "nombre", "etiqueta": "Nombre", "clase": "text", "sequence": float64(1)},
	))
	require.NoError(t, db.Create(entry).Error)

	svc := NewService(db)
	result, err := svc.Export(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, "Censo 2026", result.FormName)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "Ana", result.Rows[0].Get("Nombre"))
	require.False(t, result.HasGroups())
	require.Equal(t, "Censo 2026", result.FileBaseName())
}

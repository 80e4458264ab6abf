package versioning

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/catalog"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalog.FieldClass{}, &catalog.Field{}, &catalog.Group{}, &catalog.GroupMember{},
		&FormVersion{}, &FormVersionLink{}, &Page{}, &PagePointer{}, &PageVersion{}, &PageField{},
	))
	classes := catalog.DefaultClasses()
	require.NoError(t, db.Create(&classes).Error)
	return db
}

func testEngine(t *testing.T, db *gorm.DB) *Engine {
	t.Helper()
	return NewEngine(db, catalog.NewService(catalog.DefaultTypePolicy(), nil), nil)
}

func pointerOf(t *testing.T, db *gorm.DB, pageID string) PagePointer {
	t.Helper()
	var pointer PagePointer
	require.NoError(t, db.First(&pointer, "id_pagina = ?", pageID).Error)
	return pointer
}

func TestAddPageCreatesVersionPointerAndEmptyPageVersion(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	page, err := engine.AddPage(ctx, "form-1", "Datos Generales", "primera página", true)
	require.NoError(t, err)
	require.Equal(t, 1, page.Sequence)
	require.Equal(t, "Datos Generales", page.Name)

	latest, err := engine.LatestFormVersion(ctx, "form-1")
	require.NoError(t, err)
	require.NotNil(t, latest)

	require.Equal(t, latest.ID, pointerOf(t, db, page.ID).VersionID)

	current, err := NewStore(db).CurrentVersion(ctx, page.ID)
	require.NoError(t, err)
	require.NotNil(t, current)

	links, err := NewStore(db).FieldsOfVersion(ctx, current.ID)
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestAddPageAssignsNextSequence(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	first, err := engine.AddPage(ctx, "form-1", "Uno", "", true)
	require.NoError(t, err)
	second, err := engine.AddPage(ctx, "form-1", "Dos", "", true)
	require.NoError(t, err)

	require.Equal(t, 1, first.Sequence)
	require.Equal(t, 2, second.Sequence)

	latest, err := engine.LatestFormVersion(ctx, "form-1")
	require.NoError(t, err)
	pages, err := engine.PagesOfVersion(ctx, latest.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "Uno", pages[0].Name)
	require.Equal(t, "Dos", pages[1].Name)
}

func TestAddPageDefaultsName(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)

	page, err := engine.AddPage(context.Background(), "form-1", "   ", "", true)
	require.NoError(t, err)
	require.Equal(t, "Nueva página", page.Name)
}

func TestCreateFieldOnPageBumpsWholeForm(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	pageA, err := engine.AddPage(ctx, "form-1", "A", "", true)
	require.NoError(t, err)
	pageB, err := engine.AddPage(ctx, "form-1", "B", "", true)
	require.NoError(t, err)

	before, err := engine.LatestFormVersion(ctx, "form-1")
	require.NoError(t, err)

	result, err := engine.CreateFieldOnPage(ctx, pageA.ID, catalog.FieldInput{
		Class: "text",
		Label: "Observaciones",
	}, "tester")
	require.NoError(t, err)
	require.Equal(t, "form-1", result.FormID)
	require.NotEqual(t, before.ID, result.VersionID)
	require.Equal(t, 1, result.Sequence)

	// Form-wide bump: the untouched page moves to the new version too.
	require.Equal(t, result.VersionID, pointerOf(t, db, pageA.ID).VersionID)
	require.Equal(t, result.VersionID, pointerOf(t, db, pageB.ID).VersionID)

	links, err := NewStore(db).FieldsOfVersion(ctx, result.PageVersionID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, result.FieldID, links[0].FieldID)
}

func TestCreateFieldOnMissingPage(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)

	_, err := engine.CreateFieldOnPage(context.Background(), "nope", catalog.FieldInput{Class: "text"}, "")
	require.True(t, apperr.IsNotFound(err))
}

func TestUpdateFieldMovesMembershipNotCopies(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	page, err := engine.AddPage(ctx, "form-1", "A", "", true)
	require.NoError(t, err)
	created, err := engine.CreateFieldOnPage(ctx, page.ID, catalog.FieldInput{Class: "text", Label: "Nombre"}, "")
	require.NoError(t, err)

	label := "Nombre completo"
	updated, pageVersionIDs, err := engine.UpdateField(ctx, created.FieldID, catalog.FieldPatch{Label: &label}, catalog.ConfigMerge, "")
	require.NoError(t, err)
	require.Equal(t, "Nombre completo", updated.Label)
	require.Len(t, pageVersionIDs, 1)
	require.NotEqual(t, created.PageVersionID, pageVersionIDs[0])

	store := NewStore(db)

	// The old snapshot is now an empty shell.
	old, err := store.FieldsOfVersion(ctx, created.PageVersionID)
	require.NoError(t, err)
	require.Empty(t, old)

	moved, err := store.FieldsOfVersion(ctx, pageVersionIDs[0])
	require.NoError(t, err)
	require.Len(t, moved, 1)
	require.Equal(t, created.FieldID, moved[0].FieldID)
	require.Equal(t, 1, *moved[0].Sequence)

	// Single ownership: exactly one membership row exists for the field.
	var count int64
	require.NoError(t, db.Model(&PageField{}).Where("id_campo = ?", created.FieldID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUpdateFieldBumpsOnlyOwningForm(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	pageA, err := engine.AddPage(ctx, "form-a", "A", "", true)
	require.NoError(t, err)
	created, err := engine.CreateFieldOnPage(ctx, pageA.ID, catalog.FieldInput{Class: "text"}, "")
	require.NoError(t, err)

	_, err = engine.AddPage(ctx, "form-b", "B", "", true)
	require.NoError(t, err)
	otherBefore, err := engine.LatestFormVersion(ctx, "form-b")
	require.NoError(t, err)

	label := "x"
	_, _, err = engine.UpdateField(ctx, created.FieldID, catalog.FieldPatch{Label: &label}, catalog.ConfigMerge, "")
	require.NoError(t, err)

	otherAfter, err := engine.LatestFormVersion(ctx, "form-b")
	require.NoError(t, err)
	require.Equal(t, otherBefore.ID, otherAfter.ID)
}

func TestUpdatePageOnOrphanedVersionRollsBack(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	// A version with no form link makes the page untraceable.
	orphanVersion := FormVersion{}
	require.NoError(t, db.Create(&orphanVersion).Error)
	page := Page{Name: "Huérfana"}
	require.NoError(t, db.Create(&page).Error)
	require.NoError(t, db.Create(&PagePointer{PageID: page.ID, VersionID: orphanVersion.ID}).Error)

	name := "Renombrada"
	_, err := engine.UpdatePage(ctx, page.ID, PagePatch{Name: &name}, "")
	require.True(t, apperr.IsState(err))

	// The failed transition leaves the attributes untouched.
	var reloaded Page
	require.NoError(t, db.First(&reloaded, "id_pagina = ?", page.ID).Error)
	require.Equal(t, "Huérfana", reloaded.Name)
}

func TestUpdatePageBumpsVersion(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	page, err := engine.AddPage(ctx, "form-1", "A", "", true)
	require.NoError(t, err)
	before, err := engine.LatestFormVersion(ctx, "form-1")
	require.NoError(t, err)

	name := "A renombrada"
	updated, err := engine.UpdatePage(ctx, page.ID, PagePatch{Name: &name}, "")
	require.NoError(t, err)
	require.Equal(t, "A renombrada", updated.Name)

	after, err := engine.LatestFormVersion(ctx, "form-1")
	require.NoError(t, err)
	require.NotEqual(t, before.ID, after.ID)
}

func TestEveryEditMintsDistinctFormVersion(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	page, err := engine.AddPage(ctx, "form-1", "A", "", true)
	require.NoError(t, err)

	var before int64
	require.NoError(t, db.Model(&FormVersionLink{}).Where("id_formulario = ?", "form-1").Count(&before).Error)

	const edits = 4
	seen := map[string]bool{}
	for i := 0; i < edits; i++ {
		name := "A"
		_, err := engine.UpdatePage(ctx, page.ID, PagePatch{Name: &name}, "")
		require.NoError(t, err)

		latest, err := engine.LatestFormVersion(ctx, "form-1")
		require.NoError(t, err)
		require.False(t, seen[latest.ID])
		seen[latest.ID] = true
	}

	var after int64
	require.NoError(t, db.Model(&FormVersionLink{}).Where("id_formulario = ?", "form-1").Count(&after).Error)
	require.Equal(t, before+edits, after)
}

func TestPointerStaysUniquePerPage(t *testing.T) {
	db := testDB(t)
	engine := testEngine(t, db)
	ctx := context.Background()

	page, err := engine.AddPage(ctx, "form-1", "A", "", true)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		name := "A"
		_, err := engine.UpdatePage(ctx, page.ID, PagePatch{Name: &name}, "")
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&PagePointer{}).Where("id_pagina = ?", page.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

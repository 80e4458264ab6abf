package form

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
	"github.com/csuvg/PG-2025-21169/internal/catalog"
	"github.com/csuvg/PG-2025-21169/internal/dataset"
	"github.com/csuvg/PG-2025-21169/internal/versioning"
)

func testService(t *testing.T) (*Service, *versioning.Engine, *gorm.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&Category{}, &Form{}, &Entry{},
		&catalog.FieldClass{}, &catalog.Field{}, &catalog.Group{}, &catalog.GroupMember{},
		&dataset.Source{}, &dataset.Value{},
		&versioning.FormVersion{}, &versioning.FormVersionLink{},
		&versioning.Page{}, &versioning.PagePointer{},
		&versioning.PageVersion{}, &versioning.PageField{},
	))
	classes := catalog.DefaultClasses()
	require.NoError(t, db.Create(&classes).Error)

	engine := versioning.NewEngine(db, catalog.NewService(catalog.DefaultTypePolicy(), nil), nil)
	return NewService(db, engine), engine, db
}

func createForm(t *testing.T, svc *Service) *Form {
	t.Helper()
	entity, err := svc.Create(context.Background(), CreateInput{Name: "Censo"})
	require.NoError(t, err)
	return entity
}

func TestCreateFormDefaultsAndValidation(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	entity := createForm(t, svc)
	require.Equal(t, StateIngresado, entity.State)
	require.Equal(t, EnvioOnlineOffline, entity.DeliveryMode)

	_, err := svc.Create(ctx, CreateInput{Name: "  "})
	require.True(t, apperr.IsValidation(err))

	_, err = svc.Create(ctx, CreateInput{Name: "x", State: "Volando"})
	require.True(t, apperr.IsValidation(err))

	_, err = svc.Create(ctx, CreateInput{Name: "x", DeliveryMode: "Paloma"})
	require.True(t, apperr.IsValidation(err))

	_, err = svc.Create(ctx, CreateInput{
		Name:          "x",
		AvailableFrom: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		AvailableTo:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, apperr.IsValidation(err))
}

func TestSuspendedFormOnlyAcceptsStateChange(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	entity := createForm(t, svc)

	suspended, err := svc.Suspend(ctx, entity.ID)
	require.NoError(t, err)
	require.True(t, suspended.Suspended())

	_, err = svc.Update(ctx, entity.ID, map[string]any{"nombre": "Otro"})
	require.True(t, apperr.IsState(err))

	_, err = svc.Update(ctx, entity.ID, map[string]any{"estado": StateActivo, "nombre": "Otro"})
	require.True(t, apperr.IsState(err))

	// The single-key state change unlocks.
	updated, err := svc.Update(ctx, entity.ID, map[string]any{"estado": StateActivo})
	require.NoError(t, err)
	require.Equal(t, StateActivo, updated.State)

	updated, err = svc.Update(ctx, entity.ID, map[string]any{"nombre": "Otro"})
	require.NoError(t, err)
	require.Equal(t, "Otro", updated.Name)
}

func TestUpdateRejectsUnknownKeys(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	entity := createForm(t, svc)

	_, err := svc.Update(ctx, entity.ID, map[string]any{"no_such_column": "x"})
	require.True(t, apperr.IsValidation(err))

	// A valid key mixed with a bad one is still rejected whole.
	_, err = svc.Update(ctx, entity.ID, map[string]any{"nombre": "Otro", "sql": "DROP TABLE x"})
	require.True(t, apperr.IsValidation(err))

	unchanged, err := svc.Find(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, "Censo", unchanged.Name)
}

func TestUpdateCategoryRejectsUnknownKeys(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Salud", "")
	require.NoError(t, err)

	_, err = svc.UpdateCategory(ctx, category.ID, map[string]any{"no_such_column": "x"})
	require.True(t, apperr.IsValidation(err))

	updated, err := svc.UpdateCategory(ctx, category.ID, map[string]any{"descripcion": "brigadas"})
	require.NoError(t, err)
	require.Equal(t, "brigadas", updated.Description)
}

func TestSuspendIsIdempotent(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	entity := createForm(t, svc)

	_, err := svc.Suspend(ctx, entity.ID)
	require.NoError(t, err)
	again, err := svc.Suspend(ctx, entity.ID)
	require.NoError(t, err)
	require.True(t, again.Suspended())
}

func TestDeleteRefusedWhileEntriesExist(t *testing.T) {
	svc, _, db := testService(t)
	ctx := context.Background()
	entity := createForm(t, svc)

	require.NoError(t, db.Create(&Entry{ID: "e-1", FormID: entity.ID, FormName: entity.Name}).Error)

	err := svc.Delete(ctx, entity.ID)
	require.True(t, apperr.IsConflict(err))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.EqualValues(t, int64(1), appErr.Meta["entries_count"])
	require.Contains(t, appErr.Hint, "suspend")

	// The form is untouched.
	_, err = svc.Find(ctx, entity.ID)
	require.NoError(t, err)
}

func TestDeleteCascadesOwnedRows(t *testing.T) {
	svc, engine, db := testService(t)
	ctx := context.Background()
	entity := createForm(t, svc)

	page, err := engine.AddPage(ctx, entity.ID, "Datos", "", true)
	require.NoError(t, err)
	created, err := engine.CreateFieldOnPage(ctx, page.ID, catalog.FieldInput{Class: "group", Label: "Familia"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, created.GroupID)

	require.NoError(t, svc.Delete(ctx, entity.ID))

	for name, model := range map[string]any{
		"form":       &Form{},
		"pages":      &versioning.Page{},
		"pointers":   &versioning.PagePointer{},
		"pversions":  &versioning.PageVersion{},
		"membership": &versioning.PageField{},
		"links":      &versioning.FormVersionLink{},
		"versions":   &versioning.FormVersion{},
		"fields":     &catalog.Field{},
		"groups":     &catalog.Group{},
	} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		require.Zero(t, count, "expected no %s rows after cascade", name)
	}
}

func TestDeleteLeavesUnrelatedFormsUntouched(t *testing.T) {
	svc, engine, db := testService(t)
	ctx := context.Background()

	doomed, err := svc.Create(ctx, CreateInput{Name: "Efímero"})
	require.NoError(t, err)
	doomedPage, err := engine.AddPage(ctx, doomed.ID, "Datos", "", true)
	require.NoError(t, err)
	_, err = engine.CreateFieldOnPage(ctx, doomedPage.ID, catalog.FieldInput{Class: "text", Label: "Borrar"}, "")
	require.NoError(t, err)

	keeper, err := svc.Create(ctx, CreateInput{Name: "Permanente"})
	require.NoError(t, err)
	keeperPage, err := engine.AddPage(ctx, keeper.ID, "Propios", "", true)
	require.NoError(t, err)
	kept, err := engine.CreateFieldOnPage(ctx, keeperPage.ID, catalog.FieldInput{Class: "text", Label: "Queda"}, "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, doomed.ID))

	// The keeper's structure is fully intact, field placement included.
	structure, err := svc.Structure(ctx, keeper.ID)
	require.NoError(t, err)
	require.Len(t, structure.Pages, 1)
	require.Equal(t, "Propios", structure.Pages[0].Name)
	require.Len(t, structure.Pages[0].Fields, 1)
	require.Equal(t, kept.FieldID, structure.Pages[0].Fields[0].ID)

	var fieldCount int64
	require.NoError(t, db.Model(&catalog.Field{}).Count(&fieldCount).Error)
	require.EqualValues(t, 1, fieldCount)
	var pageCount int64
	require.NoError(t, db.Model(&versioning.Page{}).Count(&pageCount).Error)
	require.EqualValues(t, 1, pageCount)
	var linkCount int64
	require.NoError(t, db.Model(&versioning.FormVersionLink{}).
		Where("id_formulario = ?", keeper.ID).Count(&linkCount).Error)
	require.Greater(t, linkCount, int64(0))
}

func TestDuplicateDeepCopiesWithNewFieldIdentities(t *testing.T) {
	svc, engine, db := testService(t)
	ctx := context.Background()
	entity := createForm(t, svc)

	page, err := engine.AddPage(ctx, entity.ID, "Datos", "", true)
	require.NoError(t, err)
	created, err := engine.CreateFieldOnPage(ctx, page.ID, catalog.FieldInput{Class: "text", Label: "Nombre"}, "")
	require.NoError(t, err)

	clone, err := svc.Duplicate(ctx, entity.ID, "")
	require.NoError(t, err)
	require.Equal(t, "Censo_Copia", clone.Name)
	require.NotEqual(t, entity.ID, clone.ID)

	structure, err := svc.Structure(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, structure.Pages, 1)
	require.Equal(t, "Datos", structure.Pages[0].Name)
	require.Len(t, structure.Pages[0].Fields, 1)
	require.Equal(t, "Nombre", structure.Pages[0].Fields[0].Label)
	require.NotEqual(t, created.FieldID, structure.Pages[0].Fields[0].ID)

	// The source form keeps its own field.
	original, err := svc.Structure(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, created.FieldID, original.Pages[0].Fields[0].ID)

	var fieldCount int64
	require.NoError(t, db.Model(&catalog.Field{}).Count(&fieldCount).Error)
	require.EqualValues(t, 2, fieldCount)
}

func TestStructureNestsGroupMembers(t *testing.T) {
	svc, engine, db := testService(t)
	ctx := context.Background()
	entity := createForm(t, svc)

	page, err := engine.AddPage(ctx, entity.ID, "Datos", "", true)
	require.NoError(t, err)
	group, err := engine.CreateFieldOnPage(ctx, page.ID, catalog.FieldInput{Class: "group", Label: "Familia"}, "")
	require.NoError(t, err)
	member, err := engine.CreateFieldOnPage(ctx, page.ID, catalog.FieldInput{Class: "text", Label: "Parentesco"}, "")
	require.NoError(t, err)
	require.NoError(t, engine.Catalog().AddGroupMember(ctx, db, group.GroupID, member.FieldID))

	structure, err := svc.Structure(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, structure.Pages, 1)

	fields := structure.Pages[0].Fields
	require.Len(t, fields, 1)
	require.Equal(t, group.FieldID, fields[0].ID)
	require.Len(t, fields[0].Children, 1)
	require.Equal(t, member.FieldID, fields[0].Children[0].ID)
}

func TestCategoryDeleteRefusedWhileReferenced(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Salud", "")
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Name: "Brigada", CategoryID: &category.ID})
	require.NoError(t, err)

	err = svc.DeleteCategory(ctx, category.ID)
	require.True(t, apperr.IsConflict(err))
}

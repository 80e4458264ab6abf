package versioning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
)

func TestSnapshotWithoutForceReturnsCurrent(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first, err := store.Snapshot(ctx, "page-1", false)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Len(t, first.ID, 32)

	again, err := store.Snapshot(ctx, "page-1", false)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
}

func TestSnapshotForceCreatesNewVersionAndMovesFields(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first, err := store.Snapshot(ctx, "page-1", false)
	require.NoError(t, err)
	_, err = store.AddFieldToVersion(ctx, first.ID, "field-1", nil)
	require.NoError(t, err)
	_, err = store.AddFieldToVersion(ctx, first.ID, "field-2", nil)
	require.NoError(t, err)

	next, err := store.Snapshot(ctx, "page-1", true)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, next.ID)

	old, err := store.FieldsOfVersion(ctx, first.ID)
	require.NoError(t, err)
	require.Empty(t, old)

	moved, err := store.FieldsOfVersion(ctx, next.ID)
	require.NoError(t, err)
	require.Len(t, moved, 2)
	require.Equal(t, 1, *moved[0].Sequence)
	require.Equal(t, 2, *moved[1].Sequence)
}

func TestNextSequence(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	version, err := store.Snapshot(ctx, "page-1", false)
	require.NoError(t, err)

	next, err := store.NextSequence(ctx, version.ID)
	require.NoError(t, err)
	require.Equal(t, 1, next)

	seven := 7
	_, err = store.AddFieldToVersion(ctx, version.ID, "field-1", &seven)
	require.NoError(t, err)

	next, err = store.NextSequence(ctx, version.ID)
	require.NoError(t, err)
	require.Equal(t, 8, next)
}

func TestAddFieldToVersionRejectsSecondPlacement(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first, err := store.Snapshot(ctx, "page-1", false)
	require.NoError(t, err)
	second, err := store.Snapshot(ctx, "page-2", false)
	require.NoError(t, err)

	_, err = store.AddFieldToVersion(ctx, first.ID, "field-1", nil)
	require.NoError(t, err)

	_, err = store.AddFieldToVersion(ctx, second.ID, "field-1", nil)
	require.True(t, apperr.IsConflict(err))
}

func TestPagesContainingField(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	version, err := store.Snapshot(ctx, "page-1", false)
	require.NoError(t, err)
	_, err = store.AddFieldToVersion(ctx, version.ID, "field-1", nil)
	require.NoError(t, err)

	pages, err := store.PagesContainingField(ctx, "field-1")
	require.NoError(t, err)
	require.Equal(t, []string{"page-1"}, pages)

	none, err := store.PagesContainingField(ctx, "field-2")
	require.NoError(t, err)
	require.Empty(t, none)
}

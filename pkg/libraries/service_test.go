package libraries

import (
	"context"
	"testing"
	"time"

	"github.com/shishobooks/shelfwatch/pkg/errcodes"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/shishobooks/shelfwatch/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLibrary(t *testing.T) {
	db := testutils.NewTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	library := &models.Library{
		Name: "Books",
		LibraryPaths: []*models.LibraryPath{
			{Filepath: "/media/books/"},
			{Filepath: "/media/audiobooks"},
		},
	}
	require.NoError(t, svc.CreateLibrary(ctx, library))

	found, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &library.ID})
	require.NoError(t, err)
	require.Len(t, found.LibraryPaths, 2)
	assert.Equal(t, "/media/audiobooks", found.LibraryPaths[0].Filepath)
	assert.Equal(t, "/media/books", found.LibraryPaths[1].Filepath)

	t.Run("rejects paths already in use", func(t *testing.T) {
		dup := &models.Library{
			Name:         "Duplicate",
			LibraryPaths: []*models.LibraryPath{{Filepath: "/media/books"}},
		}
		err := svc.CreateLibrary(ctx, dup)
		assert.ErrorIs(t, err, errcodes.Conflict("Library path /media/books is already in use."))

		libraries, err := svc.ListLibraries(ctx, ListLibrariesOptions{})
		require.NoError(t, err)
		assert.Len(t, libraries, 1)
	})
}

func TestRetrieveLibraryPath(t *testing.T) {
	db := testutils.NewTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, lp := testutils.CreateLibrary(t, db, "Books", "/lib")
	found, err := svc.RetrieveLibraryPath(ctx, db, lp.ID)
	require.NoError(t, err)
	assert.Equal(t, "/lib", found.Filepath)

	_, err = svc.RetrieveLibraryPath(ctx, db, lp.ID+100)
	assert.ErrorIs(t, err, errcodes.NotFound("Library path"))

	deleted, deletedLP := testutils.CreateLibrary(t, db, "Old", "/old")
	now := time.Now()
	deleted.DeletedAt = &now
	_, err = db.NewUpdate().Model(deleted).Column("deleted_at").WherePK().Exec(ctx)
	require.NoError(t, err)

	_, err = svc.RetrieveLibraryPath(ctx, db, deletedLP.ID)
	assert.ErrorIs(t, err, errcodes.NotFound("Library path"))

	libraries, err := svc.ListLibraries(ctx, ListLibrariesOptions{})
	require.NoError(t, err)
	assert.Len(t, libraries, 1)
}

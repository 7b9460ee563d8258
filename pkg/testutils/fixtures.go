package testutils

import (
	"context"
	"path"
	"testing"
	"time"

	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// CreateLibrary inserts a library with one library path rooted at root.
func CreateLibrary(t *testing.T, db bun.IDB, name, root string) (*models.Library, *models.LibraryPath) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	library := &models.Library{Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := db.NewInsert().Model(library).Returning("*").Exec(ctx)
	require.NoError(t, err)

	lp := &models.LibraryPath{LibraryID: library.ID, Filepath: root, CreatedAt: now, UpdatedAt: now}
	_, err = db.NewInsert().Model(lp).Returning("*").Exec(ctx)
	require.NoError(t, err)

	library.LibraryPaths = []*models.LibraryPath{lp}
	return library, lp
}

// CreateBook inserts a live book with the given title and no files.
func CreateBook(t *testing.T, db bun.IDB, libraryID int, title string) *models.Book {
	t.Helper()
	now := time.Now()

	book := &models.Book{
		LibraryID:   libraryID,
		Title:       title,
		TitleSource: models.DataSourceManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := db.NewInsert().Model(book).Returning("*").Exec(context.Background())
	require.NoError(t, err)
	return book
}

// CreateFile inserts a book-format file for book at rel, a slash-separated path relative to lp.
func CreateFile(t *testing.T, db bun.IDB, book *models.Book, lp *models.LibraryPath, rel, hash string) *models.File {
	t.Helper()
	now := time.Now()

	dir, name := path.Split(rel)
	file := &models.File{
		LibraryID:     book.LibraryID,
		LibraryPathID: lp.ID,
		BookID:        book.ID,
		SubPath:       path.Clean("/" + dir)[1:],
		Name:          name,
		FileType:      path.Ext(name),
		FileRole:      models.FileRoleMain,
		ContentHash:   hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if file.FileType != "" {
		file.FileType = file.FileType[1:]
	}
	_, err := db.NewInsert().Model(file).Returning("*").Exec(context.Background())
	require.NoError(t, err)
	return file
}

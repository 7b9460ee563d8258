package books

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfwatch/pkg/errcodes"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/uptrace/bun"
)

func (svc *Service) CreateFile(ctx context.Context, idb bun.IDB, file *models.File) error {
	now := time.Now()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = file.CreatedAt
	if file.FileRole == "" {
		file.FileRole = models.FileRoleMain
	}

	_, err := idb.
		NewInsert().
		Model(file).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) UpdateFile(ctx context.Context, idb bun.IDB, file *models.File, opts UpdateFileOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	file.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	res, err := idb.
		NewUpdate().
		Model(file).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("File")
	}

	return nil
}

func (svc *Service) DeleteFile(ctx context.Context, idb bun.IDB, id int) error {
	_, err := idb.
		NewDelete().
		Model((*models.File)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}

// FindFileByContentHash returns the file in the library carrying hash. Files of live books win
// over tombstones; within each group the oldest file wins. Files of other libraries are never
// matched, so content moved into another library is ingested there as a new book.
func (svc *Service) FindFileByContentHash(ctx context.Context, idb bun.IDB, libraryID int, hash string) (*models.File, error) {
	if hash == "" {
		return nil, errcodes.NotFound("File")
	}
	file := &models.File{}

	err := idb.
		NewSelect().
		Model(file).
		Relation("Book").
		Where("f.library_id = ?", libraryID).
		Where("f.content_hash = ?", hash).
		OrderExpr("CASE WHEN book.deleted_at IS NULL THEN 0 ELSE 1 END ASC").
		Order("f.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("File")
		}
		return nil, errors.WithStack(err)
	}

	return file, nil
}

// ListFilesBySubPath returns the book-format files of live books sitting directly in subPath of
// the library path, in the order they were catalogued.
func (svc *Service) ListFilesBySubPath(ctx context.Context, idb bun.IDB, libraryPathID int, subPath string) ([]*models.File, error) {
	files := []*models.File{}

	err := idb.
		NewSelect().
		Model(&files).
		Relation("Book").
		Where("f.library_path_id = ?", libraryPathID).
		Where("f.sub_path = ?", subPath).
		Where("f.file_role = ?", models.FileRoleMain).
		Where("book.deleted_at IS NULL").
		Order("f.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return files, nil
}

// RetrieveFileByLocation resolves the file stored at subPath/name of a library path, tombstones
// included.
func (svc *Service) RetrieveFileByLocation(ctx context.Context, idb bun.IDB, libraryPathID int, subPath, name string) (*models.File, error) {
	file := &models.File{}

	err := idb.
		NewSelect().
		Model(file).
		Relation("Book").
		Where("f.library_path_id = ?", libraryPathID).
		Where("f.sub_path = ?", subPath).
		Where("f.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("File")
		}
		return nil, errors.WithStack(err)
	}

	return file, nil
}

func (svc *Service) ListFiles(ctx context.Context, idb bun.IDB, opts ListFilesOptions) ([]*models.File, error) {
	files := []*models.File{}

	q := idb.
		NewSelect().
		Model(&files).
		Relation("Book").
		Order("f.id ASC")

	if opts.LibraryID != nil {
		q = q.Where("f.library_id = ?", *opts.LibraryID)
	}
	if opts.LibraryPathID != nil {
		q = q.Where("f.library_path_id = ?", *opts.LibraryPathID)
	}
	if !opts.IncludeDeleted {
		q = q.Where("book.deleted_at IS NULL")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	return files, nil
}

// CountLiveFiles counts the book-format files owned by a book. Supplements don't keep a book
// alive.
func (svc *Service) CountLiveFiles(ctx context.Context, idb bun.IDB, bookID int) (int, error) {
	count, err := idb.
		NewSelect().
		Model((*models.File)(nil)).
		Where("book_id = ?", bookID).
		Where("file_role = ?", models.FileRoleMain).
		Count(ctx)
	return count, errors.WithStack(err)
}

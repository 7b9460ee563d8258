package books

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfwatch/pkg/errcodes"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/uptrace/bun"
)

type ListBooksOptions struct {
	Limit          *int
	Offset         *int
	LibraryID      *int
	IncludeDeleted bool
	// Title matches case-insensitively anywhere in the book's title.
	Title    *string
	Fileless bool

	includeTotal bool
}

type UpdateBookOptions struct {
	Columns []string
}

type ListFilesOptions struct {
	LibraryID     *int
	LibraryPathID *int
	// IncludeDeleted also returns the tombstoned files of soft-deleted books.
	IncludeDeleted bool
}

type UpdateFileOptions struct {
	Columns []string
}

// Service reads and writes the catalog. Methods that take a bun.IDB run against whatever they're
// handed, so callers compose them inside a single transaction.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) DB() *bun.DB {
	return svc.db
}

func (svc *Service) CreateBook(ctx context.Context, idb bun.IDB, book *models.Book) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt

	_, err := idb.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveBook(ctx context.Context, idb bun.IDB, id int) (*models.Book, error) {
	book := &models.Book{}

	err := idb.
		NewSelect().
		Model(book).
		Relation("Files", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("f.id ASC")
		}).
		Where("b.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		Relation("Files", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("f.id ASC")
		}).
		Order("b.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.LibraryID != nil {
		q = q.Where("b.library_id = ?", *opts.LibraryID)
	}
	if !opts.IncludeDeleted {
		q = q.Where("b.deleted_at IS NULL")
	}
	if opts.Title != nil {
		q = q.Where("b.title LIKE ? ESCAPE '\\'", "%"+escapeLike(*opts.Title)+"%")
	}
	if opts.Fileless {
		q = q.Where(filelessClause)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

func (svc *Service) UpdateBook(ctx context.Context, idb bun.IDB, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	book.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := idb.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

const filelessClause = "NOT EXISTS (SELECT 1 FROM files AS f WHERE f.book_id = b.id)"

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ListFilelessBooks returns the live books in a library that have no files at all, oldest first.
func (svc *Service) ListFilelessBooks(ctx context.Context, idb bun.IDB, libraryID int) ([]*models.Book, error) {
	books := []*models.Book{}

	err := idb.
		NewSelect().
		Model(&books).
		Where("b.library_id = ?", libraryID).
		Where("b.deleted_at IS NULL").
		Where(filelessClause).
		Order("b.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// SoftDeleteBook marks the book deleted. Its files are left alone.
func (svc *Service) SoftDeleteBook(ctx context.Context, idb bun.IDB, book *models.Book) error {
	now := time.Now()
	book.DeletedAt = &now
	return svc.UpdateBook(ctx, idb, book, UpdateBookOptions{Columns: []string{"deleted_at"}})
}

func (svc *Service) RestoreBook(ctx context.Context, idb bun.IDB, book *models.Book) error {
	book.DeletedAt = nil
	return svc.UpdateBook(ctx, idb, book, UpdateBookOptions{Columns: []string{"deleted_at"}})
}

// SoftDeleteBooksUnderPrefix soft-deletes every live book with a file in the library path whose
// sub-path is prefix or lies below it. An empty prefix covers the whole library path. The ids of
// the affected books are returned in ascending order.
func (svc *Service) SoftDeleteBooksUnderPrefix(ctx context.Context, idb bun.IDB, libraryPathID int, prefix string) ([]int, error) {
	var ids []int

	q := idb.
		NewSelect().
		Model((*models.Book)(nil)).
		Column("b.id").
		Where("b.deleted_at IS NULL").
		Order("b.id ASC")
	if prefix == "" {
		q = q.Where("EXISTS (SELECT 1 FROM files AS f WHERE f.book_id = b.id AND f.library_path_id = ?)", libraryPathID)
	} else {
		// substr and length both count characters, so non-ASCII folder names compare correctly.
		below := prefix + "/"
		q = q.Where(
			"EXISTS (SELECT 1 FROM files AS f WHERE f.book_id = b.id AND f.library_path_id = ? AND (f.sub_path = ? OR substr(f.sub_path, 1, length(?)) = ?))",
			libraryPathID, prefix, below, below,
		)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	now := time.Now()
	_, err := idb.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return ids, nil
}

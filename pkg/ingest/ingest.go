// Package ingest creates catalog entries for files that don't belong to any existing book.
package ingest

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfwatch/pkg/books"
	"github.com/shishobooks/shelfwatch/pkg/mediafile"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/uptrace/bun"
)

type IngestRequest struct {
	LibraryID     int
	LibraryPathID int
	SubPath       string
	FileName      string
	// FormatHint is the file type to record, e.g. "epub" or "folder".
	FormatHint  string
	FolderBased bool
	ContentHash string
	Size        int64
	CreatedAt   time.Time
}

// Ingester turns an unmatched file into a new book with that file as its first file. It runs
// inside the caller's transaction.
type Ingester interface {
	IngestNewFile(ctx context.Context, tx bun.IDB, req IngestRequest) (*models.Book, *models.File, error)
}

// Service is the default Ingester. It titles the book after the file name.
type Service struct {
	bookService *books.Service
}

func NewService(bookService *books.Service) *Service {
	return &Service{bookService}
}

func (svc *Service) IngestNewFile(ctx context.Context, tx bun.IDB, req IngestRequest) (*models.Book, *models.File, error) {
	log := logger.FromContext(ctx)

	book := &models.Book{
		LibraryID:   req.LibraryID,
		Title:       TitleFromName(req.FileName, req.FolderBased),
		TitleSource: models.DataSourceFilepath,
	}
	if err := svc.bookService.CreateBook(ctx, tx, book); err != nil {
		return nil, nil, errors.WithStack(err)
	}

	file := &models.File{
		LibraryID:     req.LibraryID,
		LibraryPathID: req.LibraryPathID,
		BookID:        book.ID,
		SubPath:       req.SubPath,
		Name:          req.FileName,
		FileType:      req.FormatHint,
		FileRole:      models.FileRoleMain,
		FolderBased:   req.FolderBased,
		ContentHash:   req.ContentHash,
		FilesizeBytes: req.Size,
		FileCreatedAt: req.CreatedAt,
	}
	if err := svc.bookService.CreateFile(ctx, tx, file); err != nil {
		return nil, nil, errors.WithStack(err)
	}

	book.Files = []*models.File{file}
	log.Info("ingested new book", logger.Data{"book_id": book.ID, "file_id": file.ID, "title": book.Title})
	return book, file, nil
}

var (
	bracketRE    = regexp.MustCompile(`\s*[(\[]\s*([^()\[\]]*?)\s*[)\]]`)
	multiSpaceRE = regexp.MustCompile(`\s+`)
)

// TitleFromName derives a display title from a file or folder name. Known format extensions and
// bracketed format tags are dropped and underscores become spaces. Folder names keep their dots.
func TitleFromName(name string, folder bool) string {
	title := name
	if !folder {
		if ext := mediafile.Ext(title); ext != "" {
			title = title[:len(title)-len(ext)-1]
		}
	}

	title = bracketRE.ReplaceAllStringFunc(title, func(match string) string {
		inner := bracketRE.FindStringSubmatch(match)[1]
		if _, ok := mediafile.Lookup(inner); ok {
			return ""
		}
		return match
	})
	title = strings.ReplaceAll(title, "_", " ")
	title = strings.TrimSpace(multiSpaceRE.ReplaceAllString(title, " "))

	if title == "" {
		return name
	}
	return title
}

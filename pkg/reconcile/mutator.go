package reconcile

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfwatch/pkg/books"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/shishobooks/shelfwatch/pkg/notify"
	"github.com/uptrace/bun"
)

// mutation applies one reconciliation inside a transaction and remembers which books changed so
// listeners hear about them only after the commit.
type mutation struct {
	tx          bun.Tx
	bookService *books.Service

	added   []int
	updated []int
	removed []int
}

func newMutation(tx bun.Tx, bookService *books.Service) *mutation {
	return &mutation{tx: tx, bookService: bookService}
}

func (m *mutation) createFile(ctx context.Context, book *models.Book, loc *location, art *artifact, role string) (*models.File, error) {
	file := &models.File{
		LibraryID:     loc.lp.LibraryID,
		LibraryPathID: loc.lp.ID,
		BookID:        book.ID,
		SubPath:       loc.subPath,
		Name:          loc.name,
		FileType:      art.fileType(),
		FileRole:      role,
		FolderBased:   art.folder,
		ContentHash:   art.hash,
		FilesizeBytes: art.size,
		FileCreatedAt: art.created,
	}
	if err := m.bookService.CreateFile(ctx, m.tx, file); err != nil {
		return nil, errors.WithStack(err)
	}
	m.updated = append(m.updated, book.ID)
	return file, nil
}

// relocate points file at loc, freeing loc first if another file holds it, and revives the
// file's book when it was soft-deleted.
func (m *mutation) relocate(ctx context.Context, file *models.File, loc *location, art *artifact) error {
	occupant, err := m.bookService.RetrieveFileByLocation(ctx, m.tx, loc.lp.ID, loc.subPath, loc.name)
	if err != nil && !isNotFound(err) {
		return err
	}
	if occupant != nil && occupant.ID != file.ID {
		if _, err := m.removeFile(ctx, occupant, false); err != nil {
			return err
		}
	}

	file.LibraryPathID = loc.lp.ID
	file.SubPath = loc.subPath
	file.Name = loc.name
	file.FilesizeBytes = art.size
	err = m.bookService.UpdateFile(ctx, m.tx, file, books.UpdateFileOptions{
		Columns: []string{"library_path_id", "sub_path", "name", "filesize_bytes"},
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if file.Book.IsDeleted() {
		if err := m.bookService.RestoreBook(ctx, m.tx, file.Book); err != nil {
			return errors.WithStack(err)
		}
		m.added = append(m.added, file.BookID)
		return nil
	}
	m.updated = append(m.updated, file.BookID)
	return nil
}

func (m *mutation) refresh(ctx context.Context, file *models.File, art *artifact) error {
	file.ContentHash = art.hash
	file.FilesizeBytes = art.size
	err := m.bookService.UpdateFile(ctx, m.tx, file, books.UpdateFileOptions{
		Columns: []string{"content_hash", "filesize_bytes"},
	})
	if err != nil {
		return errors.WithStack(err)
	}
	m.updated = append(m.updated, file.BookID)
	return nil
}

// removeFile takes file out of its book. When it's the book's last book-format file the book is
// soft-deleted instead, and the file row stays behind as a tombstone if keepTombstone is set.
// It reports whether the book was soft-deleted.
func (m *mutation) removeFile(ctx context.Context, file *models.File, keepTombstone bool) (bool, error) {
	if file.Book.IsDeleted() {
		return false, errors.WithStack(m.bookService.DeleteFile(ctx, m.tx, file.ID))
	}

	last := false
	if file.IsBookFormat() {
		count, err := m.bookService.CountLiveFiles(ctx, m.tx, file.BookID)
		if err != nil {
			return false, err
		}
		last = count <= 1
	}

	if !last || !keepTombstone {
		if err := m.bookService.DeleteFile(ctx, m.tx, file.ID); err != nil {
			return false, errors.WithStack(err)
		}
	}
	if !last {
		m.updated = append(m.updated, file.BookID)
		return false, nil
	}

	if err := m.bookService.SoftDeleteBook(ctx, m.tx, file.Book); err != nil {
		return false, errors.WithStack(err)
	}
	m.removed = append(m.removed, file.BookID)
	return true, nil
}

// notify reports the committed changes. A book is reported once, with removal winning over
// addition and addition over update.
func (m *mutation) notify(ctx context.Context, notifier notify.Notifier) {
	seen := make(map[int]struct{})
	removed := make([]int, 0, len(m.removed))
	for _, id := range m.removed {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		notifier.BookRemoved(ctx, removed...)
	}

	for _, id := range m.added {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			notifier.BookAdded(ctx, id)
		}
	}
	for _, id := range m.updated {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			notifier.BookUpdated(ctx, id)
		}
	}
}

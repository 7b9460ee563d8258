package reconcile

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/uptrace/bun"
)

// Remove applies a settled delete. A path that resolves to a catalogued file is taken out of its
// book, soft-deleting the book when it was the last book-format file. Any other path is treated
// as a folder and every live book with a file at or below it is soft-deleted. Removing an
// audiobook folder does both.
func (r *Reconciler) Remove(ctx context.Context, c Candidate) (*Result, error) {
	log := logger.FromContext(ctx)

	loc, err := r.locate(ctx, c)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	var m *mutation
	var res *Result
	err = r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		m = newMutation(tx, r.bookService)
		var err error
		res, err = r.remove(ctx, m, loc)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "remove transaction rolled back")
	}

	m.notify(ctx, r.notifier)
	log.Info("removed path", logger.Data{
		"outcome":  res.Outcome.String(),
		"book_id":  res.BookID,
		"affected": len(res.BookIDs),
	})
	return res, nil
}

func (r *Reconciler) remove(ctx context.Context, m *mutation, loc *location) (*Result, error) {
	res := &Result{Outcome: OutcomeSkipped}

	var file *models.File
	if loc.rel != "" {
		var err error
		file, err = r.bookService.RetrieveFileByLocation(ctx, m.tx, loc.lp.ID, loc.subPath, loc.name)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
	}

	if file != nil {
		if file.Book.IsDeleted() {
			return res, nil
		}
		res.BookID = file.BookID
		res.FileID = file.ID
		deleted, err := m.removeFile(ctx, file, true)
		if err != nil {
			return nil, err
		}
		res.Outcome = OutcomeFileDeleted
		if deleted {
			res.Outcome = OutcomeBookDeleted
			res.BookIDs = []int{file.BookID}
		}
		if !file.FolderBased {
			return res, nil
		}
	}

	ids, err := r.bookService.SoftDeleteBooksUnderPrefix(ctx, m.tx, loc.lp.ID, loc.rel)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		m.removed = append(m.removed, ids...)
		res.BookIDs = append(res.BookIDs, ids...)
		if file == nil {
			res.Outcome = OutcomeFolderDeleted
		}
	}
	return res, nil
}

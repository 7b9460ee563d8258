// Package reconcile decides what a settled filesystem change means for the catalog and applies
// it in a single transaction.
package reconcile

import (
	"context"
	"database/sql"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfwatch/pkg/books"
	"github.com/shishobooks/shelfwatch/pkg/config"
	"github.com/shishobooks/shelfwatch/pkg/errcodes"
	"github.com/shishobooks/shelfwatch/pkg/fingerprint"
	"github.com/shishobooks/shelfwatch/pkg/grouping"
	"github.com/shishobooks/shelfwatch/pkg/ingest"
	"github.com/shishobooks/shelfwatch/pkg/libraries"
	"github.com/shishobooks/shelfwatch/pkg/mediafile"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/shishobooks/shelfwatch/pkg/notify"
	"github.com/uptrace/bun"
)

type Reconciler struct {
	db             *bun.DB
	bookService    *books.Service
	libraryService *libraries.Service
	ingester       ingest.Ingester
	notifier       notify.Notifier
	threshold      float64
}

func New(cfg *config.Config, db *bun.DB, ingester ingest.Ingester, notifier notify.Notifier) *Reconciler {
	return &Reconciler{
		db:             db,
		bookService:    books.NewService(db),
		libraryService: libraries.NewService(db),
		ingester:       ingester,
		notifier:       notifier,
		threshold:      cfg.MatchThreshold,
	}
}

// location is where a candidate sits inside its library path.
type location struct {
	lp *models.LibraryPath
	// rel is the slash-separated path relative to the library path, "" for its root.
	rel     string
	subPath string
	name    string
}

// artifact is what's on disk at a candidate's location.
type artifact struct {
	folder  bool
	format  mediafile.Format
	hash    string
	size    int64
	created time.Time
}

func (a *artifact) fileType() string {
	if a.folder {
		return models.FileTypeFolder
	}
	return a.format.Ext
}

func isNotFound(err error) bool {
	return errors.Is(err, errcodes.NotFound("File"))
}

// locate resolves the candidate's library path. A nil location means the event should be
// dropped.
func (r *Reconciler) locate(ctx context.Context, c Candidate) (*location, error) {
	log := logger.FromContext(ctx)

	lp, err := r.libraryService.RetrieveLibraryPath(ctx, r.db, c.LibraryPathID)
	if errors.Is(err, errcodes.NotFound("Library path")) || (err == nil && lp.LibraryID != c.LibraryID) {
		log.Warn("library path not found, dropping event", logger.Data{"library_id": c.LibraryID, "library_path_id": c.LibraryPathID})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rel, ok := lp.Rel(c.Path)
	if !ok {
		log.Warn("path is outside its library path, dropping event", logger.Data{"library_path": lp.Filepath})
		return nil, nil
	}

	dir, name := path.Split(rel)
	return &location{lp: lp, rel: rel, subPath: strings.TrimSuffix(dir, "/"), name: name}, nil
}

func (r *Reconciler) inspect(ctx context.Context, c Candidate) (*artifact, error) {
	info, err := os.Stat(c.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	art := &artifact{folder: c.FolderBased, format: c.Format, created: info.ModTime()}
	if c.FolderBased {
		if !info.IsDir() {
			return nil, errors.Errorf("%s is not a directory", c.Path)
		}
		art.hash, art.size, err = fingerprint.Folder(c.Path)
		return art, err
	}

	if !info.Mode().IsRegular() {
		return nil, errors.Errorf("%s is not a regular file", c.Path)
	}
	if art.format.Class == mediafile.ClassIgnored {
		art.format, err = mediafile.Classify(c.Path)
		if err != nil {
			return nil, err
		}
		if art.format.Class == mediafile.ClassIgnored {
			logger.FromContext(ctx).Debug("ignoring unknown format")
			return nil, nil
		}
	}
	art.hash, art.size, err = fingerprint.File(c.Path)
	return art, err
}

// Reconcile catalogs a created file or audiobook folder. Rules are tried in order and the first
// that applies decides the outcome:
//
//  1. content hash already catalogued: the file moved here
//  2. fileless book with a similar title: attach as its first file
//  3. book-format file in the same directory with a similar name: attach as another format
//  4. for audiobook folders, the same against files beside the folder
//  5. otherwise ingest a new book
//
// Supplements only ever attach to a book already in their directory.
func (r *Reconciler) Reconcile(ctx context.Context, c Candidate) (*Result, error) {
	log := logger.FromContext(ctx)

	loc, err := r.locate(ctx, c)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return &Result{Outcome: OutcomeSkipped}, nil
	}
	if loc.rel == "" {
		log.Warn("refusing to catalog a library path root")
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	art, err := r.inspect(ctx, c)
	if err != nil {
		log.Warn("skipping unreadable path", logger.Data{"error": err.Error()})
		return &Result{Outcome: OutcomeSkipped}, nil
	}
	if art == nil {
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	var m *mutation
	var res *Result
	err = r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		m = newMutation(tx, r.bookService)
		var err error
		res, err = r.decide(ctx, m, loc, art)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "reconcile transaction rolled back")
	}

	m.notify(ctx, r.notifier)
	log.Info("reconciled path", logger.Data{
		"outcome": res.Outcome.String(),
		"book_id": res.BookID,
		"file_id": res.FileID,
	})
	return res, nil
}

func (r *Reconciler) decide(ctx context.Context, m *mutation, loc *location, art *artifact) (*Result, error) {
	match, err := r.bookService.FindFileByContentHash(ctx, m.tx, loc.lp.LibraryID, art.hash)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if match != nil {
		return r.move(ctx, m, match, loc, art)
	}

	occupant, err := r.bookService.RetrieveFileByLocation(ctx, m.tx, loc.lp.ID, loc.subPath, loc.name)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if occupant != nil {
		if !occupant.Book.IsDeleted() {
			if err := m.refresh(ctx, occupant, art); err != nil {
				return nil, err
			}
			return &Result{Outcome: OutcomeRefreshed, BookID: occupant.BookID, FileID: occupant.ID}, nil
		}
		// A tombstone with different content can't revive anything, so it gives up the location.
		if err := r.bookService.DeleteFile(ctx, m.tx, occupant.ID); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	if !art.folder && !art.format.Class.IsBookFormat() {
		return r.attachSupplement(ctx, m, loc, art)
	}

	key := grouping.Key(loc.name)

	fileless, err := r.bookService.ListFilelessBooks(ctx, m.tx, loc.lp.LibraryID)
	if err != nil {
		return nil, err
	}
	if book, score := r.bestBook(key, fileless); book != nil {
		return r.attach(ctx, m, book, loc, art, OutcomeFilelessAttach, score)
	}

	targetDir := loc.subPath
	if art.folder {
		targetDir = loc.rel
	}
	siblings, err := r.bookService.ListFilesBySubPath(ctx, m.tx, loc.lp.ID, targetDir)
	if err != nil {
		return nil, err
	}
	if file, score := r.bestFile(key, siblings); file != nil {
		return r.attach(ctx, m, file.Book, loc, art, OutcomeFormatAttach, score)
	}

	if art.folder {
		beside, err := r.bookService.ListFilesBySubPath(ctx, m.tx, loc.lp.ID, loc.subPath)
		if err != nil {
			return nil, err
		}
		if file, score := r.bestFile(key, beside); file != nil {
			return r.attach(ctx, m, file.Book, loc, art, OutcomeParentAttach, score)
		}
	}

	book, file, err := r.ingester.IngestNewFile(ctx, m.tx, ingest.IngestRequest{
		LibraryID:     loc.lp.LibraryID,
		LibraryPathID: loc.lp.ID,
		SubPath:       loc.subPath,
		FileName:      loc.name,
		FormatHint:    art.fileType(),
		FolderBased:   art.folder,
		ContentHash:   art.hash,
		Size:          art.size,
		CreatedAt:     art.created,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	m.added = append(m.added, book.ID)
	return &Result{Outcome: OutcomeNewBook, BookID: book.ID, FileID: file.ID}, nil
}

func (r *Reconciler) move(ctx context.Context, m *mutation, match *models.File, loc *location, art *artifact) (*Result, error) {
	res := &Result{Outcome: OutcomeMove, BookID: match.BookID, FileID: match.ID}
	sameLocation := match.LibraryPathID == loc.lp.ID && match.SubPath == loc.subPath && match.Name == loc.name
	if sameLocation && !match.Book.IsDeleted() {
		res.Outcome = OutcomeUnchanged
		return res, nil
	}

	if err := m.relocate(ctx, match, loc, art); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Reconciler) attach(ctx context.Context, m *mutation, book *models.Book, loc *location, art *artifact, outcome Outcome, score float64) (*Result, error) {
	file, err := m.createFile(ctx, book, loc, art, models.FileRoleMain)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: outcome, BookID: book.ID, FileID: file.ID, Score: score}, nil
}

func (r *Reconciler) attachSupplement(ctx context.Context, m *mutation, loc *location, art *artifact) (*Result, error) {
	siblings, err := r.bookService.ListFilesBySubPath(ctx, m.tx, loc.lp.ID, loc.subPath)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		logger.FromContext(ctx).Debug("no book to attach supplement to")
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	owner, score := r.bestFile(grouping.Key(loc.name), siblings)
	if owner == nil {
		owner = siblings[0]
	}
	file, err := m.createFile(ctx, owner.Book, loc, art, models.FileRoleSupplement)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeSupplementAttach, BookID: owner.BookID, FileID: file.ID, Score: score}, nil
}

// bestFile picks the file whose name best matches key. An exact key match wins outright;
// otherwise the highest score at or above the threshold wins, earlier files winning ties.
func (r *Reconciler) bestFile(key string, files []*models.File) (*models.File, float64) {
	var best *models.File
	bestScore := 0.0
	for _, f := range files {
		candidate := grouping.Key(f.Name)
		if candidate == key {
			return f, 1
		}
		if score := grouping.Similarity(key, candidate); score >= r.threshold && score > bestScore {
			best, bestScore = f, score
		}
	}
	return best, bestScore
}

func (r *Reconciler) bestBook(key string, candidates []*models.Book) (*models.Book, float64) {
	var best *models.Book
	bestScore := 0.0
	for _, b := range candidates {
		if score := grouping.Similarity(key, grouping.Key(b.Title)); score >= r.threshold && score > bestScore {
			best, bestScore = b, score
		}
	}
	return best, bestScore
}

package worker

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfwatch/pkg/books"
	"github.com/shishobooks/shelfwatch/pkg/libraries"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/shishobooks/shelfwatch/pkg/watcher"
)

// ProcessRescanJob walks the job's library, or every library, and queues what it finds as settled
// events: a create for every file and directory at the top of each library path, and a delete for
// every catalogued file that's gone. The dispatcher handles them like any other event, so a
// rescan never runs alongside a reconciliation.
func (w *Worker) ProcessRescanJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)

	data, ok := job.DataParsed.(*models.JobRescanData)
	if !ok {
		return errors.Errorf("unexpected job data %T", job.DataParsed)
	}

	var libs []*models.Library
	if data.LibraryID != nil {
		library, err := w.libraryService.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{ID: data.LibraryID})
		if err != nil {
			return errors.WithStack(err)
		}
		libs = append(libs, library)
	} else {
		all, err := w.libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{})
		if err != nil {
			return errors.WithStack(err)
		}
		libs = all
	}

	queued := 0
	for _, library := range libs {
		if library.DeletedAt != nil {
			continue
		}
		for _, lp := range library.LibraryPaths {
			n, err := w.rescanLibraryPath(ctx, lp)
			if err != nil {
				return err
			}
			queued += n
		}
	}

	log.Info("rescan queued events", logger.Data{"libraries": len(libs), "events": queued})
	return nil
}

func (w *Worker) rescanLibraryPath(ctx context.Context, lp *models.LibraryPath) (int, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"library_path_id": lp.ID, "path": lp.Filepath})

	if w.fsWatcher != nil {
		err := w.fsWatcher.AddRoot(ctx, watcher.Root{LibraryID: lp.LibraryID, LibraryPathID: lp.ID, Path: lp.Filepath})
		if err != nil {
			log.Warn("failed to watch library path", logger.Data{"error": err.Error()})
		}
	}

	base := watcher.Event{
		Kind:          watcher.EventCreate,
		LibraryID:     lp.LibraryID,
		LibraryPathID: lp.ID,
		RootPath:      lp.Filepath,
	}
	queued := 0

	// An unreadable root (unmounted, removed, no permission) says nothing about its files, so
	// nothing is queued for it at all.
	entries, err := os.ReadDir(lp.Filepath)
	if err != nil {
		log.Warn("skipping unreadable library path", logger.Data{"error": err.Error()})
		return 0, nil
	}
	for _, entry := range entries {
		ev := base
		ev.Path = filepath.Join(lp.Filepath, entry.Name())
		switch {
		case entry.IsDir():
			ev.Folder = true
		case entry.Type().IsRegular():
		default:
			continue
		}
		if !w.enqueue(ev) {
			return queued, nil
		}
		queued++
	}

	files, err := w.bookService.ListFiles(ctx, w.bookService.DB(), books.ListFilesOptions{LibraryPathID: &lp.ID})
	if err != nil {
		return queued, errors.WithStack(err)
	}
	for _, file := range files {
		path := file.Filepath(lp.Filepath)
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		ev := base
		ev.Kind = watcher.EventDelete
		ev.Path = path
		if !w.enqueue(ev) {
			return queued, nil
		}
		queued++
	}

	return queued, nil
}

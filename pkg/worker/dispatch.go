package worker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfwatch/pkg/audiobooks"
	"github.com/shishobooks/shelfwatch/pkg/reconcile"
	"github.com/shishobooks/shelfwatch/pkg/watcher"
)

func (w *Worker) dispatch() {
	for {
		select {
		case <-w.shutdown:
			close(w.doneDispatch)
			return
		case ev := <-w.events:
			w.handleEvent(ev)
		}
	}
}

// enqueue hands a settled event to the dispatcher. It reports false when the worker is shutting
// down.
func (w *Worker) enqueue(ev watcher.Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.shutdown:
		return false
	}
}

// handleEvent processes one event. Nothing that goes wrong with a single path stops the loop.
func (w *Worker) handleEvent(ev watcher.Event) {
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{
		"kind":            ev.Kind.String(),
		"path":            ev.Path,
		"folder":          ev.Folder,
		"library_id":      ev.LibraryID,
		"library_path_id": ev.LibraryPathID,
	})
	ctx := log.WithContext(context.Background())

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling event", logger.Data{"panic": r})
		}
	}()

	if err := w.process(ctx, ev); err != nil {
		log.Err(err).Error("handle event error")
	}
}

func (w *Worker) process(ctx context.Context, ev watcher.Event) error {
	base := reconcile.Candidate{LibraryID: ev.LibraryID, LibraryPathID: ev.LibraryPathID, Path: ev.Path}

	switch {
	case ev.Kind == watcher.EventDelete:
		_, err := w.reconciler.Remove(ctx, base)
		return err
	case ev.Folder:
		return w.processFolder(ctx, base, ev.Tracked)
	default:
		_, err := w.reconciler.Reconcile(ctx, base)
		return err
	}
}

// processFolder catalogs a settled directory. A folder audiobook becomes one folder-based file,
// after its companions so they can claim the book first. Any other directory is a container: its
// own files are reconciled one by one, book formats before supplements, and each subdirectory
// is processed the same way. A path that fails is logged and the rest of the folder carries on;
// only the folder's own reconciliation is returned as an error.
func (w *Worker) processFolder(ctx context.Context, base reconcile.Candidate, tracked []string) error {
	log := logger.FromContext(ctx)
	dir := base.Path

	analysis, err := audiobooks.Analyze(ctx, dir, tracked)
	if err != nil {
		log.Warn("skipping unreadable folder", logger.Data{"dir": dir, "error": err.Error()})
		return nil
	}

	if analysis.Kind == audiobooks.KindFolderAudiobook {
		log.Info("detected folder audiobook", logger.Data{"dir": dir, "tracks": len(analysis.Audio), "companions": len(analysis.Companions)})
		for _, entry := range analysis.Companions {
			w.reconcileEntry(ctx, base, entry)
		}
		c := base
		c.FolderBased = true
		_, err := w.reconciler.Reconcile(ctx, c)
		return err
	}

	var direct []audiobooks.Entry
	for _, entry := range analysis.Recognized {
		if filepath.Dir(entry.Path) == analysis.Dir {
			direct = append(direct, entry)
		}
	}
	sort.SliceStable(direct, func(i, j int) bool {
		return direct[i].Format.Class.IsBookFormat() && !direct[j].Format.Class.IsBookFormat()
	})
	for _, entry := range direct {
		w.reconcileEntry(ctx, base, entry)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("skipping unreadable folder", logger.Data{"dir": dir, "error": err.Error()})
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		select {
		case <-w.shutdown:
			return nil
		default:
		}
		sub := base
		sub.Path = filepath.Join(dir, entry.Name())
		if err := w.processFolder(ctx, sub, subset(tracked, sub.Path)); err != nil {
			log.Err(err).Error("reconcile folder error", logger.Data{"dir": sub.Path})
		}
	}
	return nil
}

func (w *Worker) reconcileEntry(ctx context.Context, base reconcile.Candidate, entry audiobooks.Entry) {
	c := base
	c.Path = entry.Path
	c.Format = entry.Format
	if _, err := w.reconciler.Reconcile(ctx, c); err != nil {
		logger.FromContext(ctx).Err(err).Error("reconcile file error", logger.Data{"file": entry.Path})
	}
}

// subset returns the tracked paths below dir.
func subset(tracked []string, dir string) []string {
	var out []string
	prefix := dir + string(filepath.Separator)
	for _, t := range tracked {
		if strings.HasPrefix(t, prefix) {
			out = append(out, t)
		}
	}
	return out
}

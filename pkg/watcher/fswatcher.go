package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Sink receives raw events. *Debouncer is the usual one.
type Sink interface {
	OnRawEvent(ev RawEvent)
}

// Root is a library path to watch.
type Root struct {
	LibraryID     int
	LibraryPathID int
	Path          string
}

// FSWatcher watches every directory below its roots, adding directories as they appear, and
// reports creates and deletes to its sink. Writes and chmods are ignored.
type FSWatcher struct {
	watcher *fsnotify.Watcher
	sink    Sink
	log     logger.Logger

	mu      sync.RWMutex
	roots   map[int]Root
	started bool

	stop chan struct{}
	done chan struct{}
}

func NewFSWatcher(sink Sink) (*FSWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &FSWatcher{
		watcher: fsw,
		sink:    sink,
		log:     logger.New(),
		roots:   make(map[int]Root),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// AddRoot starts watching root and everything below it. Adding a root that's already watched is
// a no-op.
func (w *FSWatcher) AddRoot(ctx context.Context, root Root) error {
	root.Path = filepath.Clean(root.Path)

	w.mu.Lock()
	if _, ok := w.roots[root.LibraryPathID]; ok {
		w.mu.Unlock()
		return nil
	}
	w.roots[root.LibraryPathID] = root
	w.mu.Unlock()

	if err := w.addTree(root.Path); err != nil {
		w.mu.Lock()
		delete(w.roots, root.LibraryPathID)
		w.mu.Unlock()
		return err
	}
	logger.FromContext(ctx).Info("watching library path", logger.Data{"library_path_id": root.LibraryPathID, "path": root.Path})
	return nil
}

func (w *FSWatcher) Roots() []Root {
	w.mu.RLock()
	defer w.mu.RUnlock()
	roots := make([]Root, 0, len(w.roots))
	for _, root := range w.roots {
		roots = append(roots, root)
	}
	return roots
}

// addTree watches dir and every directory below it. Only a failure on dir itself is returned.
func (w *FSWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return errors.WithStack(err)
			}
			w.log.Warn("skipping unreadable directory", logger.Data{"path": p, "error": err.Error()})
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			if p == dir {
				return errors.Wrapf(err, "failed to watch %s", p)
			}
			w.log.Warn("failed to watch directory", logger.Data{"path": p, "error": err.Error()})
		}
		return nil
	})
}

// rootFor returns the deepest root containing path.
func (w *FSWatcher) rootFor(path string) (Root, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var best Root
	found := false
	for _, root := range w.roots {
		if path != root.Path && !strings.HasPrefix(path, root.Path+string(filepath.Separator)) {
			continue
		}
		if !found || len(root.Path) > len(best.Path) {
			best, found = root, true
		}
	}
	return best, found
}

func (w *FSWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.loop()
}

func (w *FSWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Err(err).Error("filesystem watcher error")
		case <-w.stop:
			return
		}
	}
}

func (w *FSWatcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	root, ok := w.rootFor(path)
	if !ok {
		return
	}

	ev := RawEvent{
		LibraryID:     root.LibraryID,
		LibraryPathID: root.LibraryPathID,
		RootPath:      root.Path,
		Path:          path,
	}
	switch {
	case event.Has(fsnotify.Create):
		if isDir(path) {
			if err := w.addTree(path); err != nil {
				w.log.Warn("failed to watch new directory", logger.Data{"path": path, "error": err.Error()})
			}
		}
		ev.Kind = EventCreate
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// fsnotify drops watches on removed directories by itself.
		ev.Kind = EventDelete
	default:
		return
	}
	w.sink.OnRawEvent(ev)
}

func (w *FSWatcher) Close() error {
	close(w.stop)
	err := w.watcher.Close()
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if started {
		<-w.done
	}
	return errors.WithStack(err)
}

// Package watcher turns raw filesystem notifications into settled events.
package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robinjoseph08/golib/logger"
)

type EventKind int

const (
	EventCreate EventKind = iota
	EventDelete
)

func (k EventKind) String() string {
	if k == EventDelete {
		return "delete"
	}
	return "create"
}

// RawEvent is a single notification as the OS reported it.
type RawEvent struct {
	Kind          EventKind
	LibraryID     int
	LibraryPathID int
	// RootPath is the library path the event was observed under.
	RootPath string
	Path     string
}

// Event is a change that has survived its quiet window.
type Event struct {
	Kind          EventKind
	LibraryID     int
	LibraryPathID int
	RootPath      string
	Path          string
	// Folder is set for directories that were created as a whole.
	Folder bool
	// Tracked lists the paths created inside Folder while it settled, sorted.
	Tracked []string
}

type pendingDelete struct {
	timer *time.Timer
	event RawEvent
}

type pendingFolder struct {
	timer   *time.Timer
	event   RawEvent
	tracked map[string]struct{}
}

type Stats struct {
	PendingDeletes int `json:"pending_deletes"`
	PendingFolders int `json:"pending_folders"`
	TrackedPaths   int `json:"tracked_paths"`
}

// Debouncer holds deletes and new folders back until they've been quiet for a while, so that a
// move shows up as nothing at all and a folder being copied in shows up once, complete. File
// creates outside a settling folder pass straight through.
//
// Timers only hand events to the output channel; nothing is processed on a timer goroutine.
type Debouncer struct {
	deleteDelay time.Duration
	folderDelay time.Duration
	out         chan<- Event
	log         logger.Logger

	mu      sync.Mutex
	deletes map[string]*pendingDelete
	folders map[string]*pendingFolder
	closed  bool
	done    chan struct{}
}

func NewDebouncer(deleteDelay, folderDelay time.Duration, out chan<- Event) *Debouncer {
	return &Debouncer{
		deleteDelay: deleteDelay,
		folderDelay: folderDelay,
		out:         out,
		log:         logger.New(),
		deletes:     make(map[string]*pendingDelete),
		folders:     make(map[string]*pendingFolder),
		done:        make(chan struct{}),
	}
}

func (d *Debouncer) OnRawEvent(ev RawEvent) {
	ev.Path = filepath.Clean(ev.Path)
	ev.RootPath = filepath.Clean(ev.RootPath)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	var emit *Event
	switch ev.Kind {
	case EventDelete:
		d.onDelete(ev)
	case EventCreate:
		emit = d.onCreate(ev)
	}
	d.mu.Unlock()

	if emit != nil {
		d.send(*emit)
	}
}

// onDelete must be called with mu held.
func (d *Debouncer) onDelete(ev RawEvent) {
	if folder, ok := d.folders[ev.Path]; ok {
		folder.timer.Stop()
		delete(d.folders, ev.Path)
		d.log.Debug("pending folder removed before it settled", logger.Data{"path": ev.Path})
		return
	}
	if folder := d.ancestorFolder(ev.Path, ev.RootPath); folder != nil {
		if _, ok := folder.tracked[ev.Path]; ok {
			delete(folder.tracked, ev.Path)
			return
		}
	}

	if pending, ok := d.deletes[ev.Path]; ok {
		pending.timer.Stop()
	}
	pending := &pendingDelete{event: ev}
	pending.timer = time.AfterFunc(d.deleteDelay, func() {
		d.fireDelete(ev.Path, pending)
	})
	d.deletes[ev.Path] = pending
}

// onCreate must be called with mu held. It returns the event to emit right away, if any.
func (d *Debouncer) onCreate(ev RawEvent) *Event {
	if pending, ok := d.deletes[ev.Path]; ok {
		pending.timer.Stop()
		delete(d.deletes, ev.Path)
		d.log.Debug("create cancelled pending delete", logger.Data{"path": ev.Path})
		return nil
	}

	if folder := d.ancestorFolder(ev.Path, ev.RootPath); folder != nil {
		folder.tracked[ev.Path] = struct{}{}
		folder.timer.Stop()
		d.armFolder(folder)
		return nil
	}

	if isDir(ev.Path) {
		if existing, ok := d.folders[ev.Path]; ok {
			existing.timer.Stop()
		}
		folder := &pendingFolder{event: ev, tracked: make(map[string]struct{})}
		d.armFolder(folder)
		d.folders[ev.Path] = folder
		return nil
	}

	return &Event{
		Kind:          EventCreate,
		LibraryID:     ev.LibraryID,
		LibraryPathID: ev.LibraryPathID,
		RootPath:      ev.RootPath,
		Path:          ev.Path,
	}
}

// armFolder must be called with mu held.
func (d *Debouncer) armFolder(folder *pendingFolder) {
	path := folder.event.Path
	folder.timer = time.AfterFunc(d.folderDelay, func() {
		d.fireFolder(path, folder)
	})
}

// ancestorFolder finds the closest settling folder containing path, stopping at root. It must be
// called with mu held.
func (d *Debouncer) ancestorFolder(path, root string) *pendingFolder {
	if len(d.folders) == 0 {
		return nil
	}
	for dir := filepath.Dir(path); dir != path; path, dir = dir, filepath.Dir(dir) {
		if folder, ok := d.folders[dir]; ok {
			return folder
		}
		if dir == root {
			break
		}
	}
	return nil
}

func (d *Debouncer) fireDelete(path string, pending *pendingDelete) {
	d.mu.Lock()
	// A newer delete or a create may have replaced this handle after the timer fired.
	if d.closed || d.deletes[path] != pending {
		d.mu.Unlock()
		return
	}
	delete(d.deletes, path)
	d.mu.Unlock()

	ev := pending.event
	d.send(Event{
		Kind:          EventDelete,
		LibraryID:     ev.LibraryID,
		LibraryPathID: ev.LibraryPathID,
		RootPath:      ev.RootPath,
		Path:          ev.Path,
	})
}

func (d *Debouncer) fireFolder(path string, folder *pendingFolder) {
	d.mu.Lock()
	if d.closed || d.folders[path] != folder {
		d.mu.Unlock()
		return
	}
	delete(d.folders, path)
	tracked := make([]string, 0, len(folder.tracked))
	for p := range folder.tracked {
		tracked = append(tracked, p)
	}
	d.mu.Unlock()

	sort.Strings(tracked)
	ev := folder.event
	d.send(Event{
		Kind:          EventCreate,
		LibraryID:     ev.LibraryID,
		LibraryPathID: ev.LibraryPathID,
		RootPath:      ev.RootPath,
		Path:          ev.Path,
		Folder:        true,
		Tracked:       tracked,
	})
}

func (d *Debouncer) send(ev Event) {
	select {
	case d.out <- ev:
	case <-d.done:
	}
}

// Shutdown stops every pending timer without emitting anything. Events arriving afterwards are
// dropped.
func (d *Debouncer) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for path, pending := range d.deletes {
		pending.timer.Stop()
		delete(d.deletes, path)
	}
	for path, folder := range d.folders {
		folder.timer.Stop()
		delete(d.folders, path)
	}
	close(d.done)
}

func (d *Debouncer) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := Stats{PendingDeletes: len(d.deletes), PendingFolders: len(d.folders)}
	for _, folder := range d.folders {
		stats.TrackedPaths += len(folder.tracked)
	}
	return stats
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

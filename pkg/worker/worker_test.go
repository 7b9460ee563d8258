package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shishobooks/shelfwatch/pkg/books"
	"github.com/shishobooks/shelfwatch/pkg/config"
	"github.com/shishobooks/shelfwatch/pkg/ingest"
	"github.com/shishobooks/shelfwatch/pkg/jobs"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/shishobooks/shelfwatch/pkg/notify"
	"github.com/shishobooks/shelfwatch/pkg/reconcile"
	"github.com/shishobooks/shelfwatch/pkg/testutils"
	"github.com/shishobooks/shelfwatch/pkg/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testContext struct {
	t       *testing.T
	ctx     context.Context
	db      *bun.DB
	root    string
	library *models.Library
	lp      *models.LibraryPath
	worker  *Worker
	books   *books.Service
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()
	db := testutils.NewTestDB(t)
	root := t.TempDir()
	library, lp := testutils.CreateLibrary(t, db, "Books", root)
	return &testContext{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		root:    root,
		library: library,
		lp:      lp,
		worker:  New(config.NewForTest(), db, notify.NewBus()),
		books:   books.NewService(db),
	}
}

func (tc *testContext) write(rel, content string) string {
	tc.t.Helper()
	p := filepath.Join(tc.root, filepath.FromSlash(rel))
	require.NoError(tc.t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(tc.t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func (tc *testContext) event(kind watcher.EventKind, rel string, folder bool) watcher.Event {
	return watcher.Event{
		Kind:          kind,
		LibraryID:     tc.library.ID,
		LibraryPathID: tc.lp.ID,
		RootPath:      tc.root,
		Path:          filepath.Join(tc.root, filepath.FromSlash(rel)),
		Folder:        folder,
	}
}

func (tc *testContext) liveBooks() []*models.Book {
	tc.t.Helper()
	list, err := tc.books.ListBooks(tc.ctx, books.ListBooksOptions{LibraryID: &tc.library.ID})
	require.NoError(tc.t, err)
	return list
}

func (tc *testContext) drain() {
	for len(tc.worker.events) > 0 {
		tc.worker.handleEvent(<-tc.worker.events)
	}
}

func TestProcessFolder_FolderAudiobook(t *testing.T) {
	tc := newTestContext(t)
	tc.write("american gods/american gods.epub", "epub")
	tc.write("american gods/american gods.mobi", "mobi")
	tc.write("american gods/01.mp3", "one")
	tc.write("american gods/02.mp3", "two")
	tc.write("american gods/03.mp3", "three")

	tc.worker.handleEvent(tc.event(watcher.EventCreate, "american gods", true))

	list := tc.liveBooks()
	require.Len(t, list, 1)
	assert.Equal(t, "american gods", list[0].Title)
	require.Len(t, list[0].Files, 3)
	assert.Equal(t, "epub", list[0].Files[0].FileType)
	assert.Equal(t, "mobi", list[0].Files[1].FileType)
	assert.True(t, list[0].Files[2].FolderBased)
}

func TestProcessFolder_Container(t *testing.T) {
	tc := newTestContext(t)
	tc.write("gaiman/cover.jpg", "jpg")
	tc.write("gaiman/Coraline.epub", "coraline")
	tc.write("gaiman/Coraline.pdf", "coraline pdf")
	tc.write("gaiman/Neverwhere/01.mp3", "one")
	tc.write("gaiman/Neverwhere/02.mp3", "two")
	tc.write("gaiman/Stardust/Stardust.epub", "stardust")
	tc.write("gaiman/Stardust/01.mp3", "lonely track")

	tc.worker.handleEvent(tc.event(watcher.EventCreate, "gaiman", true))

	list := tc.liveBooks()
	titles := make(map[string]*models.Book)
	for _, b := range list {
		titles[b.Title] = b
	}
	require.Len(t, titles, 4, "coraline, neverwhere, stardust and the lone track")

	coraline := titles["Coraline"]
	require.NotNil(t, coraline)
	require.Len(t, coraline.Files, 3)
	assert.Equal(t, models.FileRoleSupplement, coraline.Files[2].FileRole, "supplements wait for book formats")

	neverwhere := titles["Neverwhere"]
	require.NotNil(t, neverwhere)
	require.Len(t, neverwhere.Files, 1)
	assert.True(t, neverwhere.Files[0].FolderBased)

	stardust := titles["Stardust"]
	require.NotNil(t, stardust)
	assert.Len(t, stardust.Files, 1)
}

// failingIngester fails to ingest the named files and ingests everything else normally.
type failingIngester struct {
	ingest.Ingester
	names map[string]bool
}

func (fi *failingIngester) IngestNewFile(ctx context.Context, tx bun.IDB, req ingest.IngestRequest) (*models.Book, *models.File, error) {
	if fi.names[req.FileName] {
		return nil, nil, errors.New("database is locked")
	}
	return fi.Ingester.IngestNewFile(ctx, tx, req)
}

func (tc *testContext) failIngestOf(names ...string) {
	fi := &failingIngester{Ingester: ingest.NewService(tc.books), names: map[string]bool{}}
	for _, n := range names {
		fi.names[n] = true
	}
	tc.worker.reconciler = reconcile.New(config.NewForTest(), tc.db, fi, notify.NewBus())
}

func TestProcessFolder_FailedEntryDoesntStopSiblings(t *testing.T) {
	t.Run("container", func(t *testing.T) {
		tc := newTestContext(t)
		tc.write("shelf/Coraline.epub", "coraline")
		tc.write("shelf/Neverwhere.epub", "neverwhere")
		tc.write("shelf/Stardust/Stardust.epub", "stardust")
		tc.write("shelf/Mort/Mort.epub", "mort")
		tc.failIngestOf("Coraline.epub", "Mort.epub")

		tc.worker.handleEvent(tc.event(watcher.EventCreate, "shelf", true))

		titles := []string{}
		for _, b := range tc.liveBooks() {
			titles = append(titles, b.Title)
		}
		assert.ElementsMatch(t, []string{"Neverwhere", "Stardust"}, titles)
	})

	t.Run("folder audiobook", func(t *testing.T) {
		tc := newTestContext(t)
		tc.write("american gods/american gods.epub", "epub")
		tc.write("american gods/american gods.mobi", "mobi")
		tc.write("american gods/01.mp3", "one")
		tc.write("american gods/02.mp3", "two")
		tc.failIngestOf("american gods.epub")

		tc.worker.handleEvent(tc.event(watcher.EventCreate, "american gods", true))

		list := tc.liveBooks()
		require.Len(t, list, 1)
		require.Len(t, list[0].Files, 2)
		assert.Equal(t, "mobi", list[0].Files[0].FileType)
		assert.True(t, list[0].Files[1].FolderBased)
	})
}

func TestHandleEvent_DroppedEventsDontStopTheLoop(t *testing.T) {
	tc := newTestContext(t)
	ev := tc.event(watcher.EventCreate, "Dune.epub", false)
	ev.LibraryPathID += 100
	tc.write("Dune.epub", "dune")

	tc.worker.handleEvent(ev)
	assert.Empty(t, tc.liveBooks())

	tc.worker.handleEvent(tc.event(watcher.EventCreate, "Dune.epub", false))
	assert.Len(t, tc.liveBooks(), 1)
}

func TestProcessRescanJob(t *testing.T) {
	tc := newTestContext(t)
	tc.write("Dune.epub", "dune")
	tc.write("gaiman/Coraline.epub", "coraline")
	tc.write("notes.txt", "ignored")
	gone := testutils.CreateBook(t, tc.db, tc.library.ID, "Gone")
	testutils.CreateFile(t, tc.db, gone, tc.lp, "old/Gone.epub", "gone-hash")

	job := &models.Job{Type: models.JobTypeRescan, DataParsed: &models.JobRescanData{LibraryID: &tc.library.ID}}
	require.NoError(t, tc.worker.ProcessRescanJob(tc.ctx, job))
	assert.Equal(t, 4, len(tc.worker.events), "three root entries and one missing file")

	tc.drain()

	list := tc.liveBooks()
	titles := make([]string, 0, len(list))
	for _, b := range list {
		titles = append(titles, b.Title)
	}
	assert.ElementsMatch(t, []string{"Dune", "Coraline"}, titles)

	t.Run("rescanning again changes nothing", func(t *testing.T) {
		require.NoError(t, tc.worker.ProcessRescanJob(tc.ctx, job))
		tc.drain()
		assert.Len(t, tc.liveBooks(), 2)
	})
}

func TestProcessRescanJob_MissingRootKeepsCatalog(t *testing.T) {
	tc := newTestContext(t)
	tc.write("Dune.epub", "dune")
	tc.write("gaiman/Coraline.epub", "coraline")

	job := &models.Job{Type: models.JobTypeRescan, DataParsed: &models.JobRescanData{LibraryID: &tc.library.ID}}
	require.NoError(t, tc.worker.ProcessRescanJob(tc.ctx, job))
	tc.drain()
	require.Len(t, tc.liveBooks(), 2)

	require.NoError(t, os.RemoveAll(tc.root))
	require.NoError(t, tc.worker.ProcessRescanJob(tc.ctx, job))
	assert.Empty(t, tc.worker.events)
	tc.drain()
	assert.Len(t, tc.liveBooks(), 2)
}

func TestWorker_Pipeline(t *testing.T) {
	tc := newTestContext(t)
	tc.worker.Start()
	defer tc.worker.Shutdown()

	path := tc.write("Dune.epub", "dune")
	raw := watcher.RawEvent{Kind: watcher.EventCreate, LibraryID: tc.library.ID, LibraryPathID: tc.lp.ID, RootPath: tc.root, Path: path}
	tc.worker.OnRawEvent(raw)

	require.Eventually(t, func() bool { return len(tc.liveBooks()) == 1 }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	raw.Kind = watcher.EventDelete
	tc.worker.OnRawEvent(raw)
	assert.Equal(t, 1, tc.worker.Stats().PendingDeletes)

	require.Eventually(t, func() bool { return len(tc.liveBooks()) == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestWorker_DeleteThenCreateIsNoop(t *testing.T) {
	tc := newTestContext(t)
	tc.worker.Start()
	defer tc.worker.Shutdown()

	path := tc.write("Dune.epub", "dune")
	raw := watcher.RawEvent{Kind: watcher.EventCreate, LibraryID: tc.library.ID, LibraryPathID: tc.lp.ID, RootPath: tc.root, Path: path}
	tc.worker.OnRawEvent(raw)
	require.Eventually(t, func() bool { return len(tc.liveBooks()) == 1 }, 2*time.Second, 20*time.Millisecond)
	before := tc.liveBooks()[0]

	raw.Kind = watcher.EventDelete
	tc.worker.OnRawEvent(raw)
	raw.Kind = watcher.EventCreate
	tc.worker.OnRawEvent(raw)

	require.Never(t, func() bool { return len(tc.liveBooks()) != 1 }, 4*tc.worker.config.DeleteDebounce, 20*time.Millisecond)
	after := tc.liveBooks()[0]
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	require.Len(t, after.Files, 1)
	assert.Equal(t, before.Files[0].ID, after.Files[0].ID)
}

func TestProcessJob_RecordsOutcome(t *testing.T) {
	tc := newTestContext(t)
	jobService := jobs.NewService(tc.db)

	rescan := tc.worker.processFuncs[models.JobTypeRescan]
	tc.worker.processFuncs[models.JobTypeRescan] = func(context.Context, *models.Job) error {
		return errors.New("library path unreadable")
	}
	failing, err := jobService.QueueRescan(tc.ctx, &tc.library.ID)
	require.NoError(t, err)
	tc.worker.processJob(failing)

	failing, err = jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &failing.ID})
	require.NoError(t, err)
	assert.True(t, failing.Finished())
	assert.Equal(t, models.JobStatusFailed, failing.Status)
	require.NotNil(t, failing.Error)
	assert.Equal(t, "library path unreadable", *failing.Error)

	tc.worker.processFuncs[models.JobTypeRescan] = rescan
	ok, err := jobService.QueueRescan(tc.ctx, &tc.library.ID)
	require.NoError(t, err)
	tc.worker.processJob(ok)

	ok, err = jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &ok.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, ok.Status)
	assert.Nil(t, ok.Error)
}

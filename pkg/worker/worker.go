package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shelfwatch/pkg/books"
	"github.com/shishobooks/shelfwatch/pkg/config"
	"github.com/shishobooks/shelfwatch/pkg/ingest"
	"github.com/shishobooks/shelfwatch/pkg/jobs"
	"github.com/shishobooks/shelfwatch/pkg/libraries"
	"github.com/shishobooks/shelfwatch/pkg/models"
	"github.com/shishobooks/shelfwatch/pkg/notify"
	"github.com/shishobooks/shelfwatch/pkg/reconcile"
	"github.com/shishobooks/shelfwatch/pkg/watcher"
	"github.com/uptrace/bun"
)

var processID = randStringBytes(8)

// Worker owns the event pipeline: raw filesystem events go through the debouncer, and a single
// dispatcher goroutine reconciles whatever settles, one event at a time. It also polls for
// rescan jobs, which feed the same queue.
type Worker struct {
	config *config.Config
	log    logger.Logger

	processFuncs map[string]func(ctx context.Context, job *models.Job) error

	bookService    *books.Service
	jobService     *jobs.Service
	libraryService *libraries.Service
	reconciler     *reconcile.Reconciler
	debouncer      *watcher.Debouncer
	fsWatcher      *watcher.FSWatcher

	events         chan watcher.Event
	jobQueue       chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
	doneDispatch   chan struct{}
}

func New(cfg *config.Config, db *bun.DB, notifier notify.Notifier) *Worker {
	bookService := books.NewService(db)
	events := make(chan watcher.Event, cfg.EventQueueSize)

	w := &Worker{
		config: cfg,
		log:    logger.New(),

		bookService:    bookService,
		jobService:     jobs.NewService(db),
		libraryService: libraries.NewService(db),
		reconciler:     reconcile.New(cfg, db, ingest.NewService(bookService), notifier),
		debouncer:      watcher.NewDebouncer(cfg.DeleteDebounce, cfg.FolderDebounce, events),

		events:         events,
		jobQueue:       make(chan *models.Job, 1),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}),
		doneDispatch:   make(chan struct{}),
	}

	w.processFuncs = map[string]func(ctx context.Context, job *models.Job) error{
		models.JobTypeRescan: w.ProcessRescanJob,
	}

	return w
}

// SetFSWatcher makes rescans watch every library path they walk.
func (w *Worker) SetFSWatcher(fsw *watcher.FSWatcher) {
	w.fsWatcher = fsw
}

// OnRawEvent feeds a raw filesystem event to the debouncer.
func (w *Worker) OnRawEvent(ev watcher.RawEvent) {
	w.debouncer.OnRawEvent(ev)
}

type Stats struct {
	watcher.Stats
	QueueDepth int `json:"queue_depth"`
}

func (w *Worker) Stats() Stats {
	return Stats{Stats: w.debouncer.Stats(), QueueDepth: len(w.events)}
}

func (w *Worker) Start() {
	n, err := w.jobService.RequeueOrphanedJobs(context.Background(), processID)
	if err != nil {
		w.log.Err(err).Error("requeue orphaned jobs error")
	} else if n > 0 {
		w.log.Info("requeued orphaned jobs", logger.Data{"count": n})
	}

	go w.fetchJobs()
	go w.processJobs()
	go w.dispatch()
}

func (w *Worker) fetchJobs() {
	duration := w.config.JobPollInterval
	timer := time.NewTimer(duration)
	defer timer.Stop()

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more jobs to the queue.
			close(w.doneFetching)
			return
		case <-timer.C:
			j, err := w.jobService.ListJobs(context.Background(), jobs.ListJobsOptions{
				Limit:              pointerutil.Int(1),
				Statuses:           []string{models.JobStatusPending},
				ProcessIDToExclude: &processID,
			})
			if err != nil {
				w.log.Err(err).Error("list jobs error")
				timer.Reset(duration)
				continue
			}
			for _, job := range j {
				select {
				case w.jobQueue <- job:
				case <-w.shutdown:
				}
			}
			timer.Reset(duration)
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			close(w.doneProcessing)
			return
		case job := <-w.jobQueue:
			w.processJob(job)
		}
	}
}

func (w *Worker) processJob(job *models.Job) {
	// Prep the context to be passed down to the process function.
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": processID})
	ctx := log.WithContext(context.Background())

	claimed, err := w.jobService.ClaimJob(ctx, job, processID)
	if err != nil {
		log.Err(err).Error("claim job error")
		return
	}
	if !claimed {
		log.Info("job already claimed elsewhere")
		return
	}

	job.Status = models.JobStatusCompleted
	fn, ok := w.processFuncs[job.Type]
	if !ok {
		log.Error("can't find process function for type")
		job.Fail(errors.Errorf("no process function for job type %q", job.Type))
	} else if err := fn(ctx, job); err != nil {
		log.Err(err).Error("process error")
		job.Fail(err)
	}

	// Mark the job finished so that it's not picked up anymore.
	err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "error"},
	})
	if err != nil {
		log.Err(err).Error("update job error")
	}
}

// Shutdown stops the debouncer without emitting what's pending, then waits for the job poller
// and the in-flight event to finish. Events still queued are dropped.
func (w *Worker) Shutdown() {
	w.debouncer.Shutdown()
	close(w.shutdown)

	<-w.doneFetching
	<-w.doneProcessing
	<-w.doneDispatch
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}

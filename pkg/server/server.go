package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/shishobooks/shelfwatch/pkg/binder"
	"github.com/shishobooks/shelfwatch/pkg/books"
	"github.com/shishobooks/shelfwatch/pkg/config"
	"github.com/shishobooks/shelfwatch/pkg/errcodes"
	"github.com/shishobooks/shelfwatch/pkg/jobs"
	"github.com/shishobooks/shelfwatch/pkg/libraries"
	"github.com/shishobooks/shelfwatch/pkg/version"
	"github.com/shishobooks/shelfwatch/pkg/worker"
	"github.com/uptrace/bun"
)

// StatsProvider reports the state of the event pipeline.
type StatsProvider interface {
	Stats() worker.Stats
}

func New(cfg *config.Config, db *bun.DB, stats StatsProvider) (*http.Server, error) {
	e, err := newEcho(db, stats)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(db *bun.DB, stats StatsProvider) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())

	health.RegisterRoutes(e)

	books.RegisterRoutes(e, db)
	jobs.RegisterRoutes(e, db)
	libraries.RegisterRoutes(e, db)

	h := &handler{stats: stats}
	e.GET("/watcher", h.watcher)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

type handler struct {
	stats StatsProvider
}

type watcherResponse struct {
	worker.Stats
	Version string `json:"version"`
}

func (h *handler) watcher(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, watcherResponse{Stats: h.stats.Stats(), Version: version.Version}))
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}

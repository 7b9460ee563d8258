package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shishobooks/shelfwatch/pkg/config"
	"github.com/shishobooks/shelfwatch/pkg/database"
	"github.com/shishobooks/shelfwatch/pkg/libraries"
	"github.com/shishobooks/shelfwatch/pkg/migrations"
	"github.com/shishobooks/shelfwatch/pkg/notify"
	"github.com/shishobooks/shelfwatch/pkg/server"
	"github.com/shishobooks/shelfwatch/pkg/version"
	"github.com/shishobooks/shelfwatch/pkg/watcher"
	"github.com/shishobooks/shelfwatch/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting shelfwatch", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	wrkr := worker.New(cfg, db, notify.NewBus())

	var fsw *watcher.FSWatcher
	if cfg.WatchEnabled {
		fsw, err = watcher.NewFSWatcher(wrkr)
		if err != nil {
			log.Err(err).Fatal("watcher error")
		}
		wrkr.SetFSWatcher(fsw)

		libs, err := libraries.NewService(db).ListLibraries(ctx, libraries.ListLibrariesOptions{})
		if err != nil {
			log.Err(err).Fatal("list libraries error")
		}
		for _, library := range libs {
			for _, lp := range library.LibraryPaths {
				err := fsw.AddRoot(ctx, watcher.Root{LibraryID: library.ID, LibraryPathID: lp.ID, Path: lp.Filepath})
				if err != nil {
					log.Err(err).Error("failed to watch library path")
				}
			}
		}
	}

	srv, err := server.New(cfg, db, wrkr)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		log.Info("server started", logger.Data{"port": listener.Addr().(*net.TCPAddr).Port})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")
	if fsw != nil {
		fsw.Start()
		log.Info("watcher started", logger.Data{"roots": len(fsw.Roots())})
	}

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	if fsw != nil {
		if err := fsw.Close(); err != nil {
			log.Err(err).Error("watcher close error")
		}
		log.Info("watcher closed")
	}

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

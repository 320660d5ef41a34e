package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/syncbridge/syncbridge/pkg/config"
	"github.com/syncbridge/syncbridge/pkg/database"
	"github.com/syncbridge/syncbridge/pkg/migrations"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/providers"
	"github.com/syncbridge/syncbridge/pkg/reconcile"
	"github.com/syncbridge/syncbridge/pkg/server"
	"github.com/syncbridge/syncbridge/pkg/synclogs"
	"github.com/syncbridge/syncbridge/pkg/version"
	"github.com/syncbridge/syncbridge/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting syncbridge", logger.Data{"version": version.Version})

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

	var httpAuth providers.AuthenticationProvider
	if cfg.ProviderBearerToken != "" {
		httpAuth = providers.BearerToken(cfg.ProviderBearerToken)
	}

	registry := providers.NewRegistry()
	registry.Register(models.ProviderTypeMemory, providers.NewMemory(100))
	registry.Register(models.ProviderTypeHTTP, providers.NewHTTP(httpAuth))

	logService := synclogs.NewService(db, cfg.LogRetention, cfg.SnapshotByteCap)

	reconcileService, err := reconcile.NewService(db, registry, logService, reconcile.Config{
		RunDeadline:     cfg.RunDeadline,
		WorkerProcesses: cfg.WorkerProcesses,
	})
	if err != nil {
		log.Err(err).Fatal("reconcile service error")
	}

	wrkr := worker.New(cfg, db, reconcileService)
	sched := worker.NewScheduler(cfg, db)

	srv, err := server.New(cfg, db, reconcileService)
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

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	sched.Start()
	log.Info("scheduler started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	sched.Shutdown()
	log.Info("scheduler shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	echoapi "github.com/anasaran05/learnsync/apps/api/echo"
	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
	"github.com/anasaran05/learnsync/services/identity"
	logsvc "github.com/anasaran05/learnsync/services/logger"
	"github.com/anasaran05/learnsync/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	apiZap, err := logsvc.NewZap(conf, "api")
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(apiZap, conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	storeZap, err := logsvc.NewZap(conf, "store")
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	storeLogger := logsvc.NewRollbarLogger(storeZap, conf)

	// set up store
	store, err := storage.Open(conf, storeLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening %s store: %v", conf.Store.Backend, err), err)
	}
	defer func() {
		if err = store.Close(); err != nil {
			storeLogger.Error("Failed to close", err)
		}
	}()

	cache := progress.NewCache(conf.Cache.TTL)
	repo := progress.NewRepository(store, conf.Store.ID, conf.Store.Sheet, cache)

	validate, translator := core.NewValidator()
	progressSvc := progress.NewService(repo, validate, translator, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// rows edited outside this process make every cached list stale
	if store.Watchable() {
		go func() {
			if err := store.Watch(ctx, cache.InvalidateAll); err != nil {
				storeLogger.Error("store watcher stopped", err)
			}
		}()
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err = scheduler.Every(conf.Cache.SweepInterval).Do(func() {
		if n := cache.Sweep(); n > 0 {
			logger.Debug(fmt.Sprintf("swept %d expired cache entries", n))
		}
	}); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling cache sweep: %v", err), err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			Verifier:    identity.NewVerifier(conf.Identity),
			ProgressSvc: progressSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancelShutdown()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

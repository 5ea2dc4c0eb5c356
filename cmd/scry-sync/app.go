package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/phrazzld/scry-sync/internal/api"
	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/config"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/platform/postgres"
	"github.com/phrazzld/scry-sync/internal/platform/sqlite"
	"github.com/phrazzld/scry-sync/internal/service"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/syncer"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	// Local side
	kv    *sqlite.KVStore
	cache *cache.Cache

	// Remote side. db is nil when no database URL is configured.
	db           *sql.DB
	remote       store.RemoteStore
	connectivity *clock.Switch
	probe        *connectivityProbe

	engine       *syncer.Engine
	studyService service.StudyService
}

// newApplication creates a new application instance with all dependencies initialized.
// Nothing is started: Run starts the engine, the probe and the HTTP server.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		clock:  clock.System{},
	}

	ok := false
	defer func() {
		if !ok {
			app.cleanup()
		}
	}()

	var err error
	app.kv, app.cache, err = openCache(ctx, cfg.Cache, app.clock, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.URL == "" {
		logger.Warn("no database URL configured, running offline against the local cache")
		app.remote = unavailableRemote{}
		app.connectivity = clock.NewSwitch(false)
	} else {
		app.db, err = postgres.Open(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		entityStore := postgres.NewEntityStore(app.db, logger)
		app.remote = entityStore
		app.connectivity = clock.NewSwitch(false)
		app.probe = newConnectivityProbe(entityStore, app.connectivity, cfg.Database.ProbeInterval, logger)
		// Settle the initial state before the engine reads it.
		app.probe.Check(ctx)
	}

	app.engine, err = newEngine(ctx, cfg.Sync, syncer.Deps{
		Cache:        app.cache,
		Remote:       app.remote,
		Clock:        app.clock,
		Connectivity: app.connectivity,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	app.studyService, err = service.NewStudyService(service.Deps{
		Cache:  app.cache,
		Engine: app.engine,
		Clock:  app.clock,
		TTL:    cfg.Cache.TTL,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create study service: %w", err)
	}

	ok = true
	logger.Info("Application initialized successfully",
		slog.Bool("online", app.connectivity.Online()),
		slog.Int("pending_changes", app.cache.PendingCount("")))
	return app, nil
}

// openCache opens the SQLite file and loads it into a cache.
func openCache(
	ctx context.Context,
	cfg config.CacheConfig,
	clk clock.Clock,
	logger *slog.Logger,
) (*sqlite.KVStore, *cache.Cache, error) {
	kv, err := sqlite.Open(ctx, cfg.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open local cache: %w", err)
	}
	c, err := cache.Open(ctx, kv, clk, logger)
	if err != nil {
		_ = kv.Close()
		return nil, nil, fmt.Errorf("failed to load local cache: %w", err)
	}
	return kv, c, nil
}

// newEngine maps the sync configuration onto the engine.
func newEngine(ctx context.Context, cfg config.SyncConfig, deps syncer.Deps) (*syncer.Engine, error) {
	strategy, err := syncer.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("invalid sync strategy: %w", err)
	}
	engine, err := syncer.New(ctx, syncer.Config{
		Strategy:         strategy,
		Interval:         cfg.Interval,
		TickInterval:     cfg.TickInterval,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		Concurrency:      cfg.Concurrency,
		Workers:          cfg.Workers,
		QueueSize:        cfg.QueueSize,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}
	return engine, nil
}

// Run starts the background components and serves HTTP until ctx is
// canceled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to listen on port %d: %w", app.config.Server.Port, err)
	}
	return app.runWithListener(ctx, ln)
}

func (app *application) runWithListener(ctx context.Context, ln net.Listener) error {
	defer app.cleanup()

	if app.probe != nil {
		if err := app.probe.Start(ctx); err != nil {
			_ = ln.Close()
			return err
		}
	}
	if err := app.engine.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start sync engine: %w", err)
	}

	router := api.NewRouter(app.studyService, app.clock, app.logger)
	if err := app.serveHTTP(ctx, ln, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. It is safe to
// call on a partially initialized application.
func (app *application) cleanup() {
	if app.probe != nil {
		app.probe.Stop()
	}
	if app.engine != nil {
		app.engine.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", slog.String("error", err.Error()))
		}
		app.db = nil
	}
	if app.kv != nil {
		if err := app.kv.Close(); err != nil {
			app.logger.Error("Error closing local cache", slog.String("error", err.Error()))
		}
		app.kv = nil
	}
	app.logger.Info("Application shutdown completed")
}

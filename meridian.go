// Package meridian is the public API for embedding the Meridian derived-truth
// engine.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := meridian.New(
//	    meridian.WithVersion(version),
//	    meridian.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: meridian (root) imports
// internal/*, but internal/* never imports meridian (root).
package meridian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridianhealth/meridian/internal/batch"
	"github.com/meridianhealth/meridian/internal/config"
	"github.com/meridianhealth/meridian/internal/derive"
	"github.com/meridianhealth/meridian/internal/mcp"
	"github.com/meridianhealth/meridian/internal/server"
	"github.com/meridianhealth/meridian/internal/storage"
	"github.com/meridianhealth/meridian/internal/telemetry"
	"github.com/meridianhealth/meridian/migrations"
)

// App is the Meridian server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB // nil when a store was injected
	store        server.Store
	engine       *derive.Engine
	batch        *batch.Runner
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Meridian server. It connects to the database, runs the
// embedded migrations, and wires all subsystems into a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	var cfg config.Config
	if o.cfg != nil {
		cfg = *o.cfg
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	} else {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("meridian starting", "version", version, "port", cfg.Port)

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app := &App{
		cfg:          cfg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}

	if o.store != nil {
		app.store = o.store
	} else {
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("migrations: %w", err)
		}
		app.db = db
		app.store = db
	}

	app.engine = derive.NewEngine(app.store, logger,
		derive.WithGateThreshold(cfg.ConfidenceGate))
	app.batch = batch.NewRunner(app.engine, logger,
		batch.WithBatchSize(cfg.BatchSize),
		batch.WithConcurrency(cfg.BatchWorkers))

	srvCfg := server.Config{
		Store:               app.store,
		Engine:              app.engine,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	}
	if cfg.EnableMCP {
		srvCfg.MCPServer = mcp.New(app.store, logger, version).MCPServer()
		logger.Info("mcp: enabled at /mcp")
	}
	app.srv = server.New(srvCfg)

	return app, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails, then shuts everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	a.logger.Info("meridian shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	if a.db != nil {
		a.db.Close()
	}
	if err := a.otelShutdown(context.Background()); err != nil {
		a.logger.Error("otel shutdown error", "error", err)
	}

	a.logger.Info("meridian stopped")
	return runErr
}

// Engine exposes the recompute orchestrator for embedding consumers.
func (a *App) Engine() *derive.Engine {
	return a.engine
}

// Batch exposes the multi-user sweep runner for scheduled recomputes.
func (a *App) Batch() *batch.Runner {
	return a.batch
}

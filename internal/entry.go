// Package internal wires configuration, logging and the long-running
// components of brightline into one process.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/brightline/internal/backend"
	"github.com/starford/brightline/internal/sse"
	"github.com/starford/brightline/internal/storage"
	"github.com/starford/brightline/internal/web"
)

const (
	shutdownTimeout    = 10 * time.Second
	statsThrottle      = 2 * time.Second
	tokenPurgeInterval = 15 * time.Minute
	kvPurgeInterval    = time.Hour
)

// Run starts the selected components and blocks until ctx is cancelled or a
// shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	if len(app.components) == 0 {
		app.components = defaultComponents(cfg)
	}

	logger, closeLog := NewLogger(cfg.App, os.Stdout)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Web.BackendURL),
		slog.Any("components", app.components),
		slog.String("log_level", cfg.App.LogLevel.String()))

	g, gCtx := errgroup.WithContext(ctx)
	var servers []*http.Server

	if app.enabled(ComponentBackend) {
		srv, cleanup, err := startBackend(gCtx, g, cfg.Backend, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		servers = append(servers, srv)
	}

	if app.enabled(ComponentWeb) {
		srv, cleanup, err := startWeb(gCtx, g, cfg.App, cfg.Web, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		servers = append(servers, srv)
	}

	if app.enabled(ComponentImporter) {
		cs, err := OpenClientSession(ctx, cfg.Client, logger)
		if err != nil {
			return err
		}
		if err := cs.RequireAuth(); err != nil {
			return fmt.Errorf("importer: %w", err)
		}
		im, err := NewImporter(cfg.Importer, cs.Client, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("Watching content directory", slog.String("dir", cfg.Importer.Dir))
			if err := im.Watch(gCtx, cfg.Importer.Dir, cfg.Importer.Debounce); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("importer watch: %w", err)
			}
			return nil
		})
	}

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error",
					slog.String("address", srv.Addr),
					slog.String("error", err.Error()))
			}
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func baseRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return r
}

// startBackend opens the backend database, seeds the admin account and
// schedules expired token cleanup.
func startBackend(ctx context.Context, g *errgroup.Group, cfg BackendConfig, logger *slog.Logger) (*http.Server, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := backend.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("init backend db: %w", err)
	}

	broker := sse.NewBroker(statsThrottle)
	cleanup := func() {
		broker.Close()
		_ = db.Close()
	}

	log := logger.With(slog.String("component", string(ComponentBackend)))
	svc := backend.NewService(db,
		backend.WithPublisher(broker),
		backend.WithLogger(log),
		backend.WithTokenTTL(cfg.TokenTTL))

	if cfg.Admin.Username != "" {
		if err := svc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Name, cfg.Admin.Email); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("seed admin: %w", err)
		}
	}

	uploads, err := backend.NewUploads(cfg.UploadsDir)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	r := baseRouter()
	r.Mount("/", backend.NewRouter(svc, uploads, backend.RouterConfig{
		Events:    broker,
		LoginRate: cfg.LoginRate,
		Logger:    log,
	}))

	g.Go(func() error {
		every(ctx, tokenPurgeInterval, func() {
			n, err := svc.PurgeExpiredTokens(ctx)
			if err != nil {
				log.Warn("token purge failed", slog.String("error", err.Error()))
				return
			}
			if n > 0 {
				log.Info("purged expired tokens", slog.Int64("count", n))
			}
		})
		return nil
	})

	return &http.Server{Addr: cfg.HTTP.Address(), Handler: r}, cleanup, nil
}

// startWeb opens the per-browser key/value store and builds the site.
func startWeb(ctx context.Context, g *errgroup.Group, app ApplicationConfig, cfg WebConfig, logger *slog.Logger) (*http.Server, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	kv, err := storage.OpenSQLite(cfg.SessionDB)
	if err != nil {
		return nil, nil, fmt.Errorf("init session store: %w", err)
	}
	cleanup := func() { _ = kv.Close() }

	log := logger.With(slog.String("component", string(ComponentWeb)))
	site, err := web.New(web.Config{
		BackendURL:     cfg.BackendURL,
		RequestTimeout: cfg.RequestTimeout,
		SecureCookies:  cfg.SecureCookies,
		LoginRate:      cfg.LoginRate,
		FeaturedLimit:  cfg.FeaturedLimit,
	}, kv, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	r := baseRouter()
	r.Mount("/", site.Routes())

	g.Go(func() error {
		every(ctx, kvPurgeInterval, func() {
			n, err := kv.Purge(ctx, time.Now().Add(-cfg.SessionMaxAge))
			if err != nil {
				log.Warn("session purge failed", slog.String("error", err.Error()))
				return
			}
			if n > 0 {
				log.Info("purged idle browser sessions", slog.Int64("keys", n))
			}
		})
		return nil
	})

	return &http.Server{Addr: app.HTTP.Address(), Handler: r}, cleanup, nil
}

// every calls fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

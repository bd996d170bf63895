// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/wrenholt/libris/internal/batch"
	"github.com/wrenholt/libris/internal/bookstack"
	"github.com/wrenholt/libris/internal/cache"
	"github.com/wrenholt/libris/internal/imaging"
	"github.com/wrenholt/libris/internal/journal"
	"github.com/wrenholt/libris/internal/mcpserver"
	"github.com/wrenholt/libris/internal/ops"
	"github.com/wrenholt/libris/internal/reload"
	pkgconfig "github.com/wrenholt/libris/pkg/config"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Structured JSON logger on stderr: stdout belongs to the MCP stdio
	// transport and must stay clean.
	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("upstream", cfg.Upstream.BaseURL),
		slog.Bool("cache_enabled", cfg.Cache.Enabled),
		slog.Int("cache_ttl_seconds", cfg.Cache.TTLSeconds),
		slog.Bool("journal_enabled", cfg.Journal.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Collaborators.
	client := bookstack.New(cfg.Upstream.BaseURL, cfg.Upstream.TokenID, cfg.Upstream.TokenSecret, cfg.Upstream.Timeout())
	listCache := cache.New(cfg.Cache.TTL())
	normalizer := imaging.NewNormalizer(cfg.Images.MaxBytes, cfg.Images.FetchTimeout())

	var jnl *journal.Journal
	if cfg.Journal.Enabled() {
		var err error
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer jnl.Close()
	}

	router := ops.NewRouter(client, listCache, normalizer, logger)
	executor := batch.NewExecutor(router, logger)
	srv := mcpserver.New(router, executor, jnl, logger)

	g, gCtx := errgroup.WithContext(ctx)

	// MCP stdio transport.
	g.Go(func() error {
		logger.Info("Starting MCP server on stdio")
		if err := srv.ServeStdio(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	})

	// Optional health listener.
	var httpServer *http.Server
	if cfg.App.HTTP.Enabled() {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		// middleware.Logger writes to stdout, which the MCP transport owns.
		r.Use(requestLogger(logger))
		r.Use(middleware.Recoverer)

		r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		httpServer = &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: r,
		}

		g.Go(func() error {
			logger.Info("Starting health listener", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health listener error: %w", err)
			}
			return nil
		})
	}

	// Config hot-reload: re-read tunables and flush the cache on change.
	if app.configPath != "" {
		configPath := app.configPath
		g.Go(func() error {
			return reload.Watch(gCtx, configPath, logger, func() {
				fresh := NewDefaultConfig()
				if _, err := pkgconfig.LoadIfExists(configPath, fresh); err != nil {
					logger.Warn("reload: config rejected", slog.String("error", err.Error()))
					return
				}
				fresh.ApplyEnv()
				level.Set(fresh.App.LogLevel)
				listCache.SetTTL(fresh.Cache.TTL())
				listCache.InvalidateAll()
				logger.Info("reload: applied",
					slog.String("log_level", fresh.App.LogLevel.String()),
					slog.Int("cache_ttl_seconds", fresh.Cache.TTLSeconds))
			})
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Health listener shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped")
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/scai/internal/api"
	"github.com/p-n-ai/scai/internal/chat"
	"github.com/p-n-ai/scai/internal/curriculum"
	"github.com/p-n-ai/scai/internal/platform/cache"
	"github.com/p-n-ai/scai/internal/platform/config"
	"github.com/p-n-ai/scai/internal/platform/database"
	"github.com/p-n-ai/scai/internal/scai"
	"github.com/p-n-ai/scai/internal/tutor"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	loader, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		return err
	}

	backend := scai.NewClient(
		scai.WithBaseURL(cfg.Backend.BaseURL),
		scai.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
	)
	coordCfg := tutor.CoordinatorConfig{
		Backend:        backend,
		Curricula:      loader,
		DefaultSubject: cfg.DefaultSubject,
		Timeout:        cfg.Backend.Timeout,
	}
	var apiOpts []api.Option

	if cfg.UsesPostgres() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		store, err := tutor.NewPostgresStore(db.Pool)
		if err != nil {
			return err
		}
		coordCfg.Store = store
		coordCfg.Events = tutor.NewPostgresEventLogger(db.Pool)
		apiOpts = append(apiOpts, api.WithReadinessCheck("database", db))
		slog.Info("using postgres session store")
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer c.Close()
		coordCfg.Selections = tutor.NewCacheSelectionStore(c, cfg.Cache.SelectionTTL)
		apiOpts = append(apiOpts, api.WithReadinessCheck("cache", c))
		slog.Info("using cache selection store")
	}

	coord := tutor.NewCoordinator(coordCfg)

	if cfg.Session.IdleTimeout > 0 {
		sweeper := tutor.NewSweeper(coord, cfg.Session.IdleTimeout, cfg.Session.SweepInterval)
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	apiOpts = append(apiOpts, api.WithWebSocketOptions(
		chat.WithTyping(cfg.WebSocket.Typing),
		chat.WithOriginPatterns(cfg.WebSocket.OriginPatterns...),
	))
	srv := newHTTPServer(cfg, api.New(coord, loader, apiOpts...).Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr, "backend", cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newHTTPServer leaves room in the write timeout for a full backend call.
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

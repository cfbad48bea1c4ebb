// Command threadflow-server is the ThreadFlow content-planning server process.
// It loads configuration, opens the document store, and starts the HTTP and
// WebSocket transport plus the periodic due-post dispatcher.
//
// Usage:
//
//	threadflow-server [--config path/to/config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/ai"
	"github.com/beeziehmf/threadyflow-app/internal/config"
	"github.com/beeziehmf/threadyflow-app/internal/dispatch"
	"github.com/beeziehmf/threadyflow-app/internal/metrics"
	"github.com/beeziehmf/threadyflow-app/internal/publish"
	"github.com/beeziehmf/threadyflow-app/internal/store"
	transphttp "github.com/beeziehmf/threadyflow-app/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "threadflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── 2. Set up structured logger ──────────────────────────────────────────
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// ── 3. Open the document store ───────────────────────────────────────────
	if err := os.MkdirAll(cfg.Server.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.OpenDB(filepath.Join(cfg.Server.DataDir, "threadflow.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	metricsReg := new(metrics.Registry)

	st := store.New(db, store.Options{
		HorizonDays:     cfg.Scheduler.HorizonDays,
		Location:        loc,
		GenerationLimit: cfg.AI.GenerationLimit,
		Metrics:         metricsReg,
	})

	slog.Info("threadflow starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"data_dir", cfg.Server.DataDir,
		"timezone", cfg.Scheduler.Timezone,
		"dispatch_enabled", cfg.Dispatch.Enabled,
	)

	// ── 4. Wire the AI collaborator ──────────────────────────────────────────
	var generator ai.Generator
	if cfg.AI.BaseURL != "" && cfg.AI.APIKey != "" {
		generator = ai.NewClient(ai.Config{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Timeout: time.Duration(cfg.AI.TimeoutMs) * time.Millisecond,
		})
	} else {
		slog.Warn("generation disabled: ai.base_url or ai.api_key not configured")
	}

	// ── 5. Wire the Threads integration ──────────────────────────────────────
	var (
		connector publish.Connector
		publisher publish.Publisher
	)
	if cfg.Threads.AppID != "" && cfg.Threads.AppSecret != "" {
		tc := publish.NewThreadsClient(publish.ThreadsConfig{
			AppID:          cfg.Threads.AppID,
			AppSecret:      cfg.Threads.AppSecret,
			GraphBaseURL:   cfg.Threads.GraphBaseURL,
			PublishBaseURL: cfg.Threads.PublishBaseURL,
		})
		connector = tc
		publisher = tc
	} else {
		slog.Warn("threads integration disabled: threads.app_id or threads.app_secret not configured")
	}

	// ── 6. Start the due-post dispatcher ─────────────────────────────────────
	d := dispatch.New(st, publisher, dispatch.Options{
		Location: loc,
		Metrics:  metricsReg,
	})
	if cfg.Dispatch.Enabled {
		if err := d.Start(cfg.Dispatch.Spec); err != nil {
			return fmt.Errorf("start dispatcher: %w", err)
		}
	}

	// ── 7. Start HTTP / WebSocket transport ──────────────────────────────────
	srv := transphttp.New(st, generator, connector, cfg, metricsReg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Serve in a background goroutine so we can handle signals.
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("threadflow ready", "addr", addr)
		if err := srv.ListenAndServe(addr); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	// ── 8. Graceful shutdown on SIGINT / SIGTERM ─────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Give in-flight requests 5 seconds to complete.
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d.Stop()

	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	if err := db.Close(); err != nil {
		slog.Warn("store close error", "err", err)
	}

	slog.Info("threadflow stopped")
	return nil
}

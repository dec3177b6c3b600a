package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/lookout/api"
	"github.com/use-agent/lookout/browser"
	"github.com/use-agent/lookout/cache"
	"github.com/use-agent/lookout/config"
	"github.com/use-agent/lookout/session"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("lookout starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"retryBudget", cfg.Session.RetryBudget,
	)

	// ── 3. Wire the session coordinator over real browser launches ──
	factory := func(id session.Identity) (session.Driver, error) {
		return browser.Start(browser.Profile{
			Headless:             cfg.Browser.Headless,
			NoSandbox:            cfg.Browser.NoSandbox,
			Bin:                  cfg.Browser.Bin,
			Proxy:                id.Proxy,
			UserAgent:            id.UserAgent,
			WindowWidth:          cfg.Browser.WindowWidth,
			WindowHeight:         cfg.Browser.WindowHeight,
			LaunchTimeout:        cfg.Browser.LaunchTimeout,
			BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
		})
	}

	co := session.NewCoordinator(factory, session.Options{
		QueueTimeout:  cfg.Session.QueueTimeout,
		OpTimeout:     cfg.Session.OpTimeout,
		NavTimeout:    cfg.Session.NavTimeout,
		RetryBudget:   cfg.Session.RetryBudget,
		BackoffBase:   cfg.Session.BackoffBase,
		Proxies:       cfg.Session.Proxies,
		ScreenshotDir: cfg.Session.ScreenshotDir,
		HTTPFallback:  cfg.Session.HTTPFallback,
	})
	defer co.Close()

	// Eager first launch; a broken Chromium install should fail startup,
	// not the first request.
	if err := co.Warm(); err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}

	// ── 4. Initialise cache ─────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(co, cfg, cc, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// co.Close() runs via defer — waits its queue turn, then kills Chrome.
	slog.Info("lookout stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

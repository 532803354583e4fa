package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	httphandler "github.com/ericfisherdev/gitactivity/internal/adapter/driving/http"
	"github.com/ericfisherdev/gitactivity/internal/app"
	"github.com/ericfisherdev/gitactivity/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration and install the process logger.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"env", cfg.Env,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"automation_interval", cfg.AutomationInterval,
		"redis", cfg.HasRedis(),
		"classifier", cfg.HasClassifier(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database, run migrations and wire services.
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Start the status automation scheduler.
	if cfg.AutomationInterval > 0 {
		go a.Automation.Start(ctx, cfg.AutomationInterval)
	} else {
		slog.Info("status automation scheduler disabled, read paths still trigger it")
	}

	// 5. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(a.Activity, a.Caches, a.Automation, a.Mentions, a.DB, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, a.Node, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("gitactivity started", "listen_addr", cfg.ListenAddr)

	// 6. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 7. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

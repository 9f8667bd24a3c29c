package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transcript-backend/internal/bootstrap"
	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/server"
	"transcript-backend/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		telemetry.Error("api.bootstrap_failed", map[string]any{telemetry.FieldError: err})
		os.Exit(1)
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	// Jobs created by HTTP arrivals and manual runs execute in-process.
	if _, err := app.Scheduler.Recover(ctx); err != nil {
		telemetry.Error("api.recover_failed", map[string]any{telemetry.FieldError: err})
	}
	go func() { _ = app.Scheduler.Run(ctx) }()

	addr := server.Addr(cfg.Port)
	srv := &http.Server{Addr: addr, Handler: app.Router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	telemetry.Info("api.started", map[string]any{"addr": addr, "env": cfg.Env})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		telemetry.Error("api.server_error", map[string]any{telemetry.FieldError: err})
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/di"
	"whatsapp-agent/backend/pkg/logger"
	"whatsapp-agent/backend/pkg/router"
	"whatsapp-agent/backend/shared/observability"
)

func main() {
	// Loads .env before reading the environment
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application",
		"version", os.Getenv("APP_VERSION"),
		"env", cfg.Server.Env,
		"database", cfg.DatabaseMode(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observability.SetupMetrics(cfg.Observability.ServiceName)
	if err != nil {
		log.LogError(err, "Failed to initialize metrics")
		os.Exit(1)
	}
	var shutdownTracing observability.ShutdownFunc
	if cfg.Observability.Tracing {
		shutdownTracing, err = observability.SetupTracing(cfg.Observability.ServiceName, os.Stdout)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
			os.Exit(1)
		}
	}

	container, err := di.New(ctx, cfg, log, di.Options{})
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	container.Start(ctx)

	r := router.New(container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if err := container.Dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn("In-flight messages abandoned at shutdown", "error", err)
	}
	if err := container.Close(); err != nil {
		log.LogError(err, "Failed to release resources")
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.LogError(err, "Failed to flush traces")
		}
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.LogError(err, "Failed to stop metrics")
	}

	log.Info("Server exited gracefully")
}

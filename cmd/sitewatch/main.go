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
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"sitewatch/internal/api"
	"sitewatch/internal/certs"
	"sitewatch/internal/config"
	"sitewatch/internal/logger"
	"sitewatch/internal/metrics"
	"sitewatch/internal/monitor"
	"sitewatch/internal/notify"
	"sitewatch/internal/probe"
	"sitewatch/internal/storage"
	"sitewatch/internal/stream"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
	slog.Info("application shut down gracefully")
}

func run() error {
	cfg := config.Load()
	log := logger.New("sitewatch", logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)
	loc := cfg.Location()

	// Canceled on SIGINT or SIGTERM; this drives graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("opening storage", "driver", cfg.StorageDriver)
	kv, err := openKV(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", cfg.StorageDriver, err)
	}
	store := storage.New(kv)
	defer store.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	dispatcher := notify.NewDispatcher(notify.Options{
		Channels: notify.DefaultChannels(&http.Client{Timeout: cfg.NotifyTimeout}),
		Timeout:  cfg.NotifyTimeout,
		Location: loc,
		Metrics:  m,
		Logger:   log,
	})
	hub := stream.NewHub(log)

	engine := monitor.NewEngine(monitor.Options{
		Store:             store,
		Prober:            probe.NewRegistry(cfg.ProbeTimeout),
		Heartbeats:        store,
		Notifier:          dispatcher,
		Certs:             certs.NewFetcher(cfg.ProbeTimeout, log),
		Observer:          hub,
		Metrics:           m,
		Logger:            log,
		Location:          loc,
		MaxConcurrency:    cfg.MaxConcurrency,
		CertCheckInterval: cfg.CertCheckInterval,
		CleanupInterval:   cfg.CleanupInterval,
	})

	if cfg.SitesFile != "" {
		f, err := config.LoadFile(cfg.SitesFile)
		if err != nil {
			return err
		}
		if _, err := engine.Seed(ctx, time.Now(), f.SiteDefinitions(), f.ApplyMonitor); err != nil {
			return fmt.Errorf("failed to seed sites: %w", err)
		}
	}

	scheduler := monitor.NewScheduler(engine, cfg.CycleInterval, 0, log)
	server := api.NewServer(cfg.HTTPPort, api.NewRouter(api.Deps{
		Store:          store,
		Cycles:         scheduler,
		Stream:         hub,
		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),
		Metrics:        m,
		AdminToken:     cfg.AdminToken,
		Logger:         log,
	}), log)

	if cfg.DisableScheduler {
		log.Info("scheduler disabled, cycles run only on demand")
	} else {
		scheduler.Start()
	}
	serverErr := server.Start()

	log.Info("application is running")
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, starting graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			scheduler.Stop()
			hub.Close()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	// Stop cycles first so no new incidents are dispatched.
	scheduler.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown error: %w", err)
	}
	hub.Close()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notifications still in flight at shutdown", "error", err)
	}
	return nil
}

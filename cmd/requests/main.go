package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldserve/fieldserve/internal/app"
	"github.com/fieldserve/fieldserve/internal/observability"
	"github.com/fieldserve/fieldserve/internal/platform/peer"
	"github.com/fieldserve/fieldserve/internal/requests"
	"github.com/fieldserve/fieldserve/internal/resilience"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping requests startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Default().Error("requests", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "requests"
	}
	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	overrides, err := cfg.BreakerOptions(requests.TargetCatalog, requests.TargetTechnicians, requests.TargetNotifications)
	if err != nil {
		return err
	}
	opts := append(overrides, resilience.WithObserver(metrics), resilience.WithLogger(logger))
	registry, err := resilience.NewRegistry("requests", cfg.BreakerDefaults(), opts...)
	if err != nil {
		return err
	}

	propagator, err := app.NewPropagator(cfg)
	if err != nil {
		return err
	}
	peers := requests.NewPeerClients(registry,
		peer.NewClient(requests.TargetCatalog, cfg.PeerCatalogURL, propagator),
		peer.NewClient(requests.TargetTechnicians, cfg.PeerTechniciansURL, propagator),
		peer.NewClient(requests.TargetNotifications, cfg.PeerNotificationsURL, propagator),
		logger,
	)
	service := requests.NewService(requests.NewMemoryRepository(), peers, requests.WithLogger(logger))

	verifier, err := app.NewVerifier(cfg, "requests")
	if err != nil {
		return err
	}
	router := app.NewRouter(app.RouterParams{
		Logger:   logger,
		Config:   cfg,
		Metrics:  metrics,
		Verifier: verifier,
		Mount:    requests.NewHandler(logger, service).MountRoutes,
	})
	return app.Serve(ctx, cfg, logger, router)
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldserve/fieldserve/internal/app"
	"github.com/fieldserve/fieldserve/internal/catalog"
	"github.com/fieldserve/fieldserve/internal/observability"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping catalog startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Default().Error("catalog", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "catalog"
	}
	logger := app.NewLogger(cfg)

	verifier, err := app.NewVerifier(cfg, "catalog")
	if err != nil {
		return err
	}
	handler := catalog.NewHandler(logger, catalog.NewStore(catalog.DefaultItems()...))

	router := app.NewRouter(app.RouterParams{
		Logger:   logger,
		Config:   cfg,
		Metrics:  observability.NewMetrics(),
		Verifier: verifier,
		Mount:    handler.MountRoutes,
	})
	return app.Serve(ctx, cfg, logger, router)
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/fieldserve/fieldserve/internal/app"
	"github.com/fieldserve/fieldserve/internal/gateway"
	"github.com/fieldserve/fieldserve/internal/observability"
	"github.com/fieldserve/fieldserve/internal/platform/cache"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping gateway startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Default().Error("gateway", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "gateway"
	}
	logger := app.NewLogger(cfg)

	var redisClient *redis.Client
	if cfg.RevocationEnabled {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}
	authority, err := app.NewAuthority(cfg, redisClient)
	if err != nil {
		return err
	}

	policy, err := gateway.DefaultPolicy()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()
	gate := gateway.NewGate(policy, authority, logger, metrics)

	propagator, err := app.NewPropagator(cfg)
	if err != nil {
		return err
	}
	proxy, err := gateway.NewProxy(gateway.DefaultRoutes(), cfg.Upstreams(), propagator, logger)
	if err != nil {
		return err
	}
	logger.Info("gateway ready",
		slog.Int("public_routes", len(policy.PublicRoutes())),
		slog.String("trust_mode", string(cfg.Trust())))

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Edge:    true,
		Mount: func(r chi.Router) {
			gateway.Mount(r, gate, proxy)
		},
	})
	return app.Serve(ctx, cfg, logger, router)
}

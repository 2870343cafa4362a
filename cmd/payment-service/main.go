package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/neocommercepay/commerce-system/payments-service/config"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/httpx"
	"github.com/neocommercepay/commerce-system/shared/logging"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("payment-service: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.ReadConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	logger := logging.Init(cfg.ServiceName, cfg.LogLevel)
	logger.Info("starting service",
		slog.String("env", cfg.Env),
		slog.String("port", cfg.Port),
		slog.String("broker", cfg.Broker.Driver),
		slog.String("database", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, shutdownTelemetry, err := telemetry.InitTelemetry(ctx, telemetry.NewConfig(cfg.ServiceName).
		WithVersion(cfg.Telemetry.ServiceVersion).
		WithOTLPEndpoint(cfg.Telemetry.OTLPEndpoint))
	if err != nil {
		return errors.Wrap(err, "failed to init telemetry")
	}
	defer shutdownTelemetry()

	// Initialize dependencies
	deps, err := config.BuildDependencies(ctx, cfg, nil, clock.NewSystem(), logger)
	if err != nil {
		return errors.Wrap(err, "failed to build dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("error closing dependencies", slog.String("error", err.Error()))
		}
	}()

	router := httpx.NewRouter(tel, logger)
	deps.PaymentHandlers.RegisterRoutes(router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.EventRouter.Subscribe(telemetry.WithTelemetry(gctx, tel), deps.Broker.Subscriber)
	})
	g.Go(func() error {
		return httpx.Serve(gctx, ":"+cfg.Port, router, logger)
	})

	err = g.Wait()
	logger.Info("service stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

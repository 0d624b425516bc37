package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/armoryline/armoryline-backend/internal/cron"
	"github.com/armoryline/armoryline-backend/internal/escrow"
	"github.com/armoryline/armoryline-backend/internal/inventory"
	"github.com/armoryline/armoryline-backend/internal/orders"
	"github.com/armoryline/armoryline-backend/internal/payouts"
	"github.com/armoryline/armoryline-backend/pkg/config"
	"github.com/armoryline/armoryline-backend/pkg/db"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/metrics"
	"github.com/armoryline/armoryline-backend/pkg/migrate"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
	"github.com/armoryline/armoryline-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)

	inventorySvc, err := inventory.NewService(inventory.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	processor, err := escrow.NewHTTPProcessor(context.Background(), cfg.Escrow, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow processor", err)
		os.Exit(1)
	}
	escrowSvc, err := escrow.NewService(escrow.NewRepository(dbClient.DB()), processor, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	payoutsSvc, err := payouts.NewService(payouts.NewRepository(dbClient.DB()), dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		inventorySvc,
		escrowSvc,
		payoutsSvc,
		orderMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger: logg,
		DB:     dbClient,
		Reader: inventorySvc,
		Orders: ordersSvc,
		Outbox: outboxSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reservation.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}

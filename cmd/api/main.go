package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/armoryline/armoryline-backend/api/routes"
	"github.com/armoryline/armoryline-backend/internal/checkout"
	"github.com/armoryline/armoryline-backend/internal/compliance"
	"github.com/armoryline/armoryline-backend/internal/escrow"
	"github.com/armoryline/armoryline-backend/internal/identity"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(registry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	verifier, err := identity.NewHTTPVerifier(ctx, cfg.Identity, logg)
	if err != nil {
		logg.Error(ctx, "failed to create identity verifier", err)
		os.Exit(1)
	}
	otpLimiter, err := identity.NewOTPLimiter(redisClient, cfg.Identity.OTPMaxSends, cfg.Identity.OTPWindow)
	if err != nil {
		logg.Error(ctx, "failed to create otp limiter", err)
		os.Exit(1)
	}
	identitySvc, err := identity.NewService(identity.NewRepository(dbClient.DB()), verifier, otpLimiter, cfg.JWT, logg)
	if err != nil {
		logg.Error(ctx, "failed to create identity service", err)
		os.Exit(1)
	}

	inventorySvc, err := inventory.NewService(inventory.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}

	processor, err := escrow.NewHTTPProcessor(ctx, cfg.Escrow, logg)
	if err != nil {
		logg.Error(ctx, "failed to create escrow processor", err)
		os.Exit(1)
	}
	escrowSvc, err := escrow.NewService(escrow.NewRepository(dbClient.DB()), processor, outboxSvc)
	if err != nil {
		logg.Error(ctx, "failed to create escrow service", err)
		os.Exit(1)
	}

	payoutsSvc, err := payouts.NewService(payouts.NewRepository(dbClient.DB()), dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(ctx, "failed to create payouts service", err)
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
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	complianceSvc, err := compliance.NewService(
		compliance.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		ordersSvc,
		logg,
		cfg.Compliance.RequiredKinds,
	)
	if err != nil {
		logg.Error(ctx, "failed to create compliance service", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkout.NewService(
		checkout.NewCatalogRepository(dbClient.DB()),
		ordersSvc,
		inventorySvc,
		escrowSvc,
		complianceSvc,
		dbClient,
		logg,
		cfg.Reservation.TTL,
	)
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Registry:   registry,
			Identity:   identitySvc,
			Checkout:   checkoutSvc,
			Orders:     ordersSvc,
			Compliance: complianceSvc,
			Payouts:    payoutsSvc,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

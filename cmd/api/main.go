package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukamoja/pos-backend/api/routes"
	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/internal/branches"
	"github.com/dukamoja/pos-backend/internal/payments"
	"github.com/dukamoja/pos-backend/internal/reconcile"
	"github.com/dukamoja/pos-backend/internal/sales"
	"github.com/dukamoja/pos-backend/internal/verify"
	darajahooks "github.com/dukamoja/pos-backend/internal/webhooks/daraja"
	"github.com/dukamoja/pos-backend/pkg/config"
	"github.com/dukamoja/pos-backend/pkg/daraja"
	"github.com/dukamoja/pos-backend/pkg/db"
	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/metrics"
	"github.com/dukamoja/pos-backend/pkg/migrate"
	"github.com/dukamoja/pos-backend/pkg/redis"
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

	gateway, err := daraja.NewClient(context.Background(), cfg.Daraja, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap daraja client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	paymentsRepo := payments.NewRepository(dbClient.DB())
	salesRepo := sales.NewRepository(dbClient.DB())
	branchesRepo := branches.NewRepository(dbClient.DB())

	auditRecorder, err := audit.NewRecorder(audit.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit recorder", err)
		os.Exit(1)
	}

	matcher, err := reconcile.NewMatcher(reconcile.MatcherParams{
		Tx:        dbClient,
		Sales:     salesRepo,
		Audit:     auditRecorder,
		Metrics:   paymentMetrics,
		Logger:    logg,
		Reconcile: cfg.Reconcile,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create matcher", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:      paymentsRepo,
		Gateway:   gateway,
		Audit:     auditRecorder,
		Logger:    logg,
		Reconcile: cfg.Reconcile,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	verifyService, err := verify.NewService(verify.ServiceParams{
		Payments:  paymentsRepo,
		Audit:     auditRecorder,
		Metrics:   paymentMetrics,
		Logger:    logg,
		Reconcile: cfg.Reconcile,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create verification service", err)
		os.Exit(1)
	}

	webhookGuard := darajahooks.NewGuard(redisClient, logg)

	callbackService, err := darajahooks.NewCallbackService(darajahooks.CallbackServiceParams{
		Payments: paymentsRepo,
		Tx:       dbClient,
		Audit:    auditRecorder,
		Guard:    webhookGuard,
		Matcher:  matcher,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create callback service", err)
		os.Exit(1)
	}

	c2bService, err := darajahooks.NewC2BService(darajahooks.C2BServiceParams{
		Payments: paymentsRepo,
		Branches: branchesRepo,
		Audit:    auditRecorder,
		Guard:    webhookGuard,
		Matcher:  matcher,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create c2b service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"daraja_env": gateway.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Registry: registry,
			Payments: paymentsService,
			Verify:   verifyService,
			Callback: callbackService,
			C2B:      c2bService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

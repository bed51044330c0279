package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/billing-backend/api/controllers/webhooks"
	"github.com/angelmondragon/billing-backend/api/routes"
	"github.com/angelmondragon/billing-backend/internal/billing"
	"github.com/angelmondragon/billing-backend/internal/checkout"
	"github.com/angelmondragon/billing-backend/internal/subscriptions"
	stripewebhook "github.com/angelmondragon/billing-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/billing-backend/pkg/auth"
	"github.com/angelmondragon/billing-backend/pkg/config"
	"github.com/angelmondragon/billing-backend/pkg/db"
	"github.com/angelmondragon/billing-backend/pkg/logger"
	"github.com/angelmondragon/billing-backend/pkg/metrics"
	"github.com/angelmondragon/billing-backend/pkg/migrate"
	"github.com/angelmondragon/billing-backend/pkg/outbox"
	"github.com/angelmondragon/billing-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/billing-backend/pkg/stripe"
)

const (
	webhookIdempotencyScope = "stripe-webhook"
	shutdownTimeout         = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := config.LoadDotenv(); err != nil {
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	subscriptionClient := subscriptions.NewStripeClient(stripeClient)

	checkoutClient := checkout.NewStripeClient(stripeClient)
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		BillingRepo:        billingRepo,
		StripeClient:       checkoutClient,
		SubscriptionClient: subscriptionClient,
		Logger:             logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:  billingRepo,
		StripeClient: subscriptionClient,
		Prices:       checkoutClient,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billingRepo,
		StripeClient:      subscriptionClient,
		TransactionRunner: dbClient,
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:           webhookMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, webhookIdempotencyScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
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
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:        cfg,
			Logger:        logg,
			Resolver:      auth.NewResolver(cfg.JWT),
			DB:            dbClient,
			Redis:         redisClient,
			Gatherer:      prometheus.DefaultGatherer,
			Checkout:      checkoutService,
			Subscriptions: subscriptionService,
			StripeWebhook: webhooks.StripeWebhookParams{
				Service:      webhookService,
				Client:       stripeClient,
				Guard:        webhookGuard,
				Metrics:      webhookMetrics,
				Logger:       logg,
				MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
			},
		}),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

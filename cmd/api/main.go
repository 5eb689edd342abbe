package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/yogaflow-backend/api/controllers"
	"github.com/angelmondragon/yogaflow-backend/api/routes"
	"github.com/angelmondragon/yogaflow-backend/internal/membership"
	"github.com/angelmondragon/yogaflow-backend/internal/orders"
	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/internal/webhooks/polar"
	"github.com/angelmondragon/yogaflow-backend/pkg/config"
	"github.com/angelmondragon/yogaflow-backend/pkg/db"
	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
	"github.com/angelmondragon/yogaflow-backend/pkg/instance"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
	"github.com/angelmondragon/yogaflow-backend/pkg/metrics"
	"github.com/angelmondragon/yogaflow-backend/pkg/migrate"
	"github.com/angelmondragon/yogaflow-backend/pkg/pubsub"
	"github.com/angelmondragon/yogaflow-backend/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 15 * time.Second

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

	if err := migrate.EnsureDocuments(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to prepare document store", err)
		os.Exit(1)
	}
	store := docstore.NewSQLStore(dbClient)

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    nil,
		"pubsub":   nil,
	}

	var sessionCache users.SessionCache
	if cfg.Redis.Enabled() {
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
		cache, err := users.NewRedisSessionCache(redisClient, cfg.Session.CacheTTL)
		if err != nil {
			logg.Error(ctx, "failed to create session cache", err)
			os.Exit(1)
		}
		sessionCache = cache
		readiness["redis"] = redisClient
	} else {
		logg.Info(ctx, "redis not configured; session cache disabled")
	}

	var notifier subscriptionevents.Notifier
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher := psClient.MembershipPublisher()
		defer publisher.Stop()
		pubNotifier, err := subscriptionevents.NewPubSubNotifier(publisher)
		if err != nil {
			logg.Error(ctx, "failed to create membership notifier", err)
			os.Exit(1)
		}
		notifier = pubNotifier
		readiness["pubsub"] = psClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := metrics.NewWebhookMetrics(registry)
	membershipMetrics := metrics.NewMembershipMetrics(registry)

	usersRepo := users.NewRepository(store, sessionCache, logg)
	recorder, err := subscriptionevents.NewService(subscriptionevents.ServiceParams{
		Repository: subscriptionevents.NewRepository(store),
		Notifier:   notifier,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create subscription events service", err)
		os.Exit(1)
	}

	ledger, err := polar.NewLedger(store, cfg.Polar.LedgerTTL, logg)
	if err != nil {
		logg.Error(ctx, "failed to create webhook ledger", err)
		os.Exit(1)
	}

	polarService, err := polar.NewService(polar.ServiceParams{
		Users:       usersRepo,
		Orders:      orders.NewRepository(store),
		Events:      recorder,
		Ledger:      ledger,
		Logger:      logg,
		Metrics:     webhookMetrics,
		GracePeriod: cfg.Polar.DefaultGracePeriod,
	})
	if err != nil {
		logg.Error(ctx, "failed to create polar webhook service", err)
		os.Exit(1)
	}

	checker, err := membership.NewChecker(membership.CheckerParams{
		Users:   usersRepo,
		Events:  recorder,
		Logger:  logg,
		Metrics: membershipMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create expiry checker", err)
		os.Exit(1)
	}

	if cfg.Polar.WebhookSecret == "" {
		logg.Warn(ctx, "YOGAFLOW_POLAR_WEBHOOK_SECRET is empty; webhook signatures are NOT verified")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, registry, readiness, usersRepo, checker, polarService, webhookMetrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

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
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

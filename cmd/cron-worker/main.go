package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/yogaflow-backend/internal/cron"
	"github.com/angelmondragon/yogaflow-backend/internal/membership"
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
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var (
		lock         cron.Lock
		sessionCache users.SessionCache
	)
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
		redisLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName, lockEnv(cfg.App.Env)), 0)
		if err != nil {
			logg.Error(ctx, "failed to create cron lock", err)
			os.Exit(1)
		}
		lock = redisLock
		// expiries must evict the cached snapshot the api serves
		cache, err := users.NewRedisSessionCache(redisClient, cfg.Session.CacheTTL)
		if err != nil {
			logg.Error(ctx, "failed to create session cache", err)
			os.Exit(1)
		}
		sessionCache = cache
	} else {
		logg.Warn(ctx, "redis not configured; using an in-process lock, run a single cron worker")
		lock = &cron.LocalLock{}
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
	}

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

	checker, err := membership.NewChecker(membership.CheckerParams{
		Users:   usersRepo,
		Events:  recorder,
		Logger:  logg,
		Metrics: metrics.NewMembershipMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create expiry checker", err)
		os.Exit(1)
	}

	ledger, err := polar.NewLedger(store, cfg.Polar.LedgerTTL, logg)
	if err != nil {
		logg.Error(ctx, "failed to create webhook ledger", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewSubscriptionExpiryJob(cron.SubscriptionExpiryJobParams{
		Logger:    logg,
		Users:     usersRepo,
		Checker:   checker,
		BatchSize: cfg.Cron.ExpiryBatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to create subscription expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewWebhookLedgerRetentionJob(cron.WebhookLedgerRetentionJobParams{
		Logger:    logg,
		Ledger:    ledger,
		BatchSize: cfg.Cron.LedgerBatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook ledger retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
		"jobs":        registry.Names(),
		"interval":    cfg.Cron.Interval.String(),
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/internal/callbacks"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/merchants"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
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

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
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

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+lockEnv(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	reg := metrics.NewRegistry()
	gormDB := dbClient.DB()
	ordersRepo := orders.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)

	dispatcher, err := callbacks.NewDispatcher(callbacks.DispatcherParams{
		Orders:     ordersRepo,
		Merchants:  merchants.NewRepository(gormDB),
		HTTPClient: &http.Client{},
		Config:     cfg.Callbacks,
		Logger:     logg,
		Metrics:    metrics.NewCallbackMetrics(reg),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create callback dispatcher", err)
		os.Exit(1)
	}

	reaper, err := cron.NewUnpaidOrderReaper(cron.UnpaidOrderReaperParams{
		Logger:   logg,
		DB:       dbClient,
		Orders:   ordersRepo,
		Products: products.NewRepository(gormDB),
		Outbox:   outbox.NewService(outboxRepo, logg),
		Notifier: dispatcher,
		Timeout:  cfg.Payments.UnpaidOrderTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create unpaid order reaper", err)
		os.Exit(1)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(reaper)
	if err := registry.Schedule(retention, cfg.Cron.RetentionEvery); err != nil {
		logg.Error(context.Background(), "failed to schedule outbox retention", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- dispatcher.Run(context.Background())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	metricsDone := make(chan error, 1)
	go func() {
		metricsDone <- metrics.Serve(ctx, ":"+cfg.App.Port, reg)
	}()

	runErr := service.Run(ctx)

	stop()
	if err := <-metricsDone; err != nil {
		logg.Error(context.Background(), "metrics server stopped with error", err)
	}

	dispatcher.Close()
	if err := <-dispatcherDone; err != nil {
		logg.Error(context.Background(), "callback dispatcher stopped with error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", runErr)
		os.Exit(1)
	}

	logg.Info(context.Background(), "cron worker shutting down gracefully")
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

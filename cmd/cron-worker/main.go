package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/refermint-backend/internal/clicks"
	"github.com/angelmondragon/refermint-backend/internal/commissions"
	"github.com/angelmondragon/refermint-backend/internal/cron"
	"github.com/angelmondragon/refermint-backend/internal/postbacks"
	"github.com/angelmondragon/refermint-backend/internal/subscriptions"
	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/db"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/metrics"
	"github.com/angelmondragon/refermint-backend/pkg/migrate"
	"github.com/angelmondragon/refermint-backend/pkg/redis"
)

const lockKeyFormat = "rm:cron-worker:lock:%s"

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

	clickRepo := clicks.NewRepository(dbClient.DB())
	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())
	commissionRepo := commissions.NewRepository(dbClient.DB())
	postbackRepo := postbacks.NewRepository(dbClient.DB())

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:   subscriptionRepo,
		Logger: logg,
	})
	exitOnErr(logg, err, "failed to create subscription service")

	commissionService, err := commissions.NewService(commissions.ServiceParams{
		Repo:          commissionRepo,
		Subscriptions: subscriptionService,
		Tx:            dbClient,
		Logger:        logg,
	})
	exitOnErr(logg, err, "failed to create commission service")

	postbackService, err := postbacks.NewService(postbacks.ServiceParams{
		Repo:           postbackRepo,
		Config:         cfg.Postbacks,
		Metrics:        metrics.NewPostbackMetrics(prometheus.DefaultRegisterer),
		Logger:         logg,
		OwnStoreDomain: cfg.Shopify.StoreDomain,
	})
	exitOnErr(logg, err, "failed to create postback service")

	postbackJob, err := cron.NewPostbackRetryJob(cron.PostbackRetryJobParams{
		Logger:    logg,
		Postbacks: postbackService,
	})
	exitOnErr(logg, err, "failed to create postback retry job")

	eligibilityJob, err := cron.NewCommissionEligibilityJob(cron.CommissionEligibilityJobParams{
		Logger:      logg,
		Commissions: commissionService,
	})
	exitOnErr(logg, err, "failed to create commission eligibility job")

	retentionJob, err := cron.NewClickRetentionJob(cron.ClickRetentionJobParams{
		Logger:        logg,
		Clicks:        clickRepo,
		RetentionDays: cfg.Clicks.RetentionDays,
	})
	exitOnErr(logg, err, "failed to create click retention job")

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	exitOnErr(logg, err, "failed to create cron lock")

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(postbackJob, eligibilityJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	exitOnErr(logg, err, "failed to create cron service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func exitOnErr(logg *logger.Logger, err error, msg string) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/refermint-backend/api/routes"
	"github.com/angelmondragon/refermint-backend/internal/affiliates"
	"github.com/angelmondragon/refermint-backend/internal/attribution"
	"github.com/angelmondragon/refermint-backend/internal/clicks"
	"github.com/angelmondragon/refermint-backend/internal/commissions"
	"github.com/angelmondragon/refermint-backend/internal/fraud"
	"github.com/angelmondragon/refermint-backend/internal/ingest"
	"github.com/angelmondragon/refermint-backend/internal/postbacks"
	"github.com/angelmondragon/refermint-backend/internal/subscriptions"
	"github.com/angelmondragon/refermint-backend/pkg/config"
	"github.com/angelmondragon/refermint-backend/pkg/db"
	"github.com/angelmondragon/refermint-backend/pkg/logger"
	"github.com/angelmondragon/refermint-backend/pkg/metrics"
	"github.com/angelmondragon/refermint-backend/pkg/migrate"
	"github.com/angelmondragon/refermint-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

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

	registry := prometheus.NewRegistry()

	clickRepo := clicks.NewRepository(dbClient.DB())
	affiliateRepo := affiliates.NewRepository(dbClient.DB())
	attributionRepo := attribution.NewRepository(dbClient.DB())
	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())
	commissionRepo := commissions.NewRepository(dbClient.DB())
	fraudRepo := fraud.NewRepository(dbClient.DB())
	postbackRepo := postbacks.NewRepository(dbClient.DB())

	clickService, err := clicks.NewService(clicks.ServiceParams{
		Repo:        clickRepo,
		Logger:      logg,
		DedupWindow: cfg.Clicks.DedupWindow,
	})
	exitOnErr(logg, err, "failed to create click service")

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

	attributionService, err := attribution.NewService(attribution.ServiceParams{
		Repo:                    attributionRepo,
		Clicks:                  clickRepo,
		Affiliates:              affiliateRepo,
		Commissions:             commissionRepo,
		Tx:                      dbClient,
		Logger:                  logg,
		DefaultWindowDays:       cfg.Attribution.DefaultWindowDays,
		FingerprintLookbackDays: cfg.Attribution.FingerprintLookbackDays,
	})
	exitOnErr(logg, err, "failed to create attribution service")

	fraudService, err := fraud.NewService(fraud.ServiceParams{
		Repo:        fraudRepo,
		Clicks:      clickRepo,
		Commissions: commissionRepo,
		Config:      cfg.Fraud,
		Logger:      logg,
	})
	exitOnErr(logg, err, "failed to create fraud service")

	postbackService, err := postbacks.NewService(postbacks.ServiceParams{
		Repo:           postbackRepo,
		Config:         cfg.Postbacks,
		Metrics:        metrics.NewPostbackMetrics(registry),
		Logger:         logg,
		OwnStoreDomain: cfg.Shopify.StoreDomain,
	})
	exitOnErr(logg, err, "failed to create postback service")

	ingestService, err := ingest.NewService(ingest.ServiceParams{
		Attribution:   attributionService,
		Subscriptions: subscriptionService,
		Commissions:   commissionService,
		Affiliates:    affiliateRepo,
		Fraud:         fraudService,
		Postbacks:     postbackService,
		Guard:         redisClient,
		Metrics:       metrics.NewWebhookMetrics(registry),
		Logger:        logg,
		Config:        cfg.Ingest,
	})
	exitOnErr(logg, err, "failed to create ingest service")

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg,
			dbClient, redisClient,
			clickService, affiliateRepo, ingestService,
			registry,
		),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-stopCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func exitOnErr(logg *logger.Logger, err error, msg string) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}

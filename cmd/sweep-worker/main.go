package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/cron"
	"github.com/mandexhq/mandex-backend/internal/decision"
	"github.com/mandexhq/mandex-backend/internal/messaging"
	"github.com/mandexhq/mandex-backend/internal/orders"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/metrics"
	"github.com/mandexhq/mandex-backend/pkg/migrate"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
	"github.com/mandexhq/mandex-backend/pkg/pubsub"
	"github.com/mandexhq/mandex-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweep-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
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

	var locker cron.Locker
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err := redis.New(context.Background(), cfg.Redis)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		locker = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured, sweeping without a distributed lock")
	}

	var sender messaging.Sender = messaging.NewLogSender(logg)
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		sender = messaging.NewPubSubSender(pubsubClient, logg)
	}

	gormDB := dbClient.DB()
	orderRepo := orders.NewRepository(gormDB)
	supplierRepo := suppliers.NewRepository(gormDB)
	offerRepo := auction.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)
	events := outbox.NewService(outboxRepo, logg)

	auctionSvc, err := auction.NewService(cfg.Auction, offerRepo, orderRepo, supplierRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auction service", err)
		os.Exit(1)
	}
	ordersSvc, err := orders.NewService(gormDB, orderRepo, supplierRepo, offerRepo, events, sender, cfg.Auction, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	coordinator, err := decision.NewCoordinator(gormDB, orderRepo, auctionSvc, offerRepo, supplierRepo,
		events, sender, metrics.NewDecisionMetrics(prometheus.DefaultRegisterer), cfg.Decision, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create decision coordinator", err)
		os.Exit(1)
	}

	sweeper := cron.NewService(cfg.Sweep, locker, metrics.NewSweepJobMetrics(prometheus.DefaultRegisterer), logg)
	sweeper.Register(cron.NewBidExpiryJob(gormDB, orderRepo, offerRepo, coordinator, events, logg))
	sweeper.Register(cron.NewStaleOrderJob(ordersSvc, orderRepo, cfg.Sweep.StaleOrderTTL, logg))
	sweeper.Register(cron.NewInventoryAuditJob(gormDB, events, logg))
	sweeper.Register(cron.NewOutboxRetentionJob(outboxRepo, cfg.Outbox.RetentionDays, logg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweep worker")

	if err := sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/mandexhq/mandex-backend/api/controllers"
	"github.com/mandexhq/mandex-backend/api/routes"
	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/credit"
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
	"github.com/prometheus/client_golang/prometheus"
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

	var redisPinger controllers.Pinger
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
		redisPinger = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured, readiness check will skip it")
	}

	var sender messaging.Sender = messaging.NewLogSender(logg)
	var pubsubPinger controllers.Pinger
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
		pubsubPinger = pubsubClient
	} else {
		logg.Warn(context.Background(), "pubsub not configured, notifications go to the log")
	}

	gormDB := dbClient.DB()
	orderRepo := orders.NewRepository(gormDB)
	supplierRepo := suppliers.NewRepository(gormDB)
	offerRepo := auction.NewRepository(gormDB)
	creditRepo := credit.NewRepository(gormDB)
	events := outbox.NewService(outbox.NewRepository(gormDB), logg)

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
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          gormDB,
			OrdersRepo:  orderRepo,
			OrdersSvc:   ordersSvc,
			AuctionSvc:  auctionSvc,
			Coordinator: coordinator,
			SupplierRep: supplierRepo,
			CreditRepo:  creditRepo,
			ReadyDeps:   controllers.ReadyDeps(dbClient, redisPinger, pubsubPinger),
		}),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shutting down gracefully")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/preorder-backend/internal/inventory"
	"github.com/angelmondragon/preorder-backend/internal/orders"
	"github.com/angelmondragon/preorder-backend/internal/payments"
	"github.com/angelmondragon/preorder-backend/internal/realtime"
	"github.com/angelmondragon/preorder-backend/internal/refunds"
	"github.com/angelmondragon/preorder-backend/internal/users"
	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/db"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/metrics"
	"github.com/angelmondragon/preorder-backend/pkg/outbox"
	"github.com/angelmondragon/preorder-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/preorder-backend/pkg/pubsub"
	"github.com/angelmondragon/preorder-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/preorder-backend/pkg/stripe"
)

const serviceKind = "worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer func() {
		err = multierr.Append(err, pubsubClient.Close())
	}()

	stripeClient, err := pkgstripe.NewClient(bootCtx, cfg.Stripe, logg)
	if err != nil {
		return fmt.Errorf("bootstrap stripe: %w", err)
	}
	gateway, err := payments.NewStripeGateway(stripeClient, orderMetrics, logg)
	if err != nil {
		return fmt.Errorf("build payment gateway: %w", err)
	}

	lookup, err := inventory.NewLookup(inventory.NewRepository(dbClient.DB()))
	if err != nil {
		return fmt.Errorf("build inventory lookup: %w", err)
	}

	// Refund outcomes reach dashboards through the API replicas' relays.
	broker, err := realtime.NewRedisBroker(
		redisClient,
		realtime.NewHub(cfg.Realtime.BufferSize, orderMetrics, logg),
		cfg.Realtime.ChannelPrefix,
		logg,
	)
	if err != nil {
		return fmt.Errorf("build realtime broker: %w", err)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(dbClient.DB()),
		TxRunner: dbClient,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Catalog:  lookup,
		Users:    users.NewRepository(dbClient.DB()),
		Gateway:  gateway,
		Notifier: broker,
		Metrics:  orderMetrics,
		Logger:   logg,
		Config:   cfg.Orders,
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("build idempotency manager: %w", err)
	}
	consumer, err := refunds.NewConsumer(gateway, orderService, manager, logg)
	if err != nil {
		return fmt.Errorf("build refund consumer: %w", err)
	}
	refundWorker, err := refunds.NewWorker(pubsubClient.RefundsSubscription(), consumer, logg)
	if err != nil {
		return fmt.Errorf("build refund worker: %w", err)
	}

	service, err := NewService(ServiceParams{
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		PubSub:  pubsubClient,
		Refunds: refundWorker,
	})
	if err != nil {
		return fmt.Errorf("create worker service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
	})
	logg.Info(ctx, "worker.starting")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "worker.shutdown")
	return nil
}

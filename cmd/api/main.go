package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/preorder-backend/api/routes"
	"github.com/angelmondragon/preorder-backend/internal/inventory"
	"github.com/angelmondragon/preorder-backend/internal/orders"
	"github.com/angelmondragon/preorder-backend/internal/payments"
	"github.com/angelmondragon/preorder-backend/internal/realtime"
	"github.com/angelmondragon/preorder-backend/internal/users"
	stripewebhook "github.com/angelmondragon/preorder-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/db"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/metrics"
	"github.com/angelmondragon/preorder-backend/pkg/migrate"
	"github.com/angelmondragon/preorder-backend/pkg/outbox"
	"github.com/angelmondragon/preorder-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/preorder-backend/pkg/stripe"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

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
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
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

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run dev migrations: %w", err)
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
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

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookDedupeTTL, "")
	if err != nil {
		return fmt.Errorf("build webhook guard: %w", err)
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:   orderService,
		Metrics:  orderMetrics,
		Logger:   logg,
		Livemode: stripeClient.Livemode(),
	})
	if err != nil {
		return fmt.Errorf("build stripe webhook service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": serviceKind,
		"stripe_env":  stripeClient.Environment(),
	})

	relayErr := make(chan error, 1)
	go func() {
		relayErr <- broker.Run(ctx)
	}()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:               cfg,
			Logger:               logg,
			DB:                   dbClient,
			Redis:                redisClient,
			IdempotencyStore:     redisClient,
			MetricsHandler:       promhttp.Handler(),
			Orders:               orderService,
			Restaurants:          lookup,
			Payments:             gateway,
			Realtime:             broker,
			StripeSigner:         stripeClient,
			StripeWebhookService: webhookService,
			StripeWebhookGuard:   webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api.starting")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case err := <-relayErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			stop()
			return multierr.Append(fmt.Errorf("realtime relay: %w", err), shutdown(server))
		}
	case <-ctx.Done():
	}

	logg.Info(ctx, "api.shutdown")
	return shutdown(server)
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/preorder-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/preorder-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/preorder-backend/api/controllers/payments"
	realtimecontrollers "github.com/angelmondragon/preorder-backend/api/controllers/realtime"
	webhookcontrollers "github.com/angelmondragon/preorder-backend/api/controllers/webhooks"
	"github.com/angelmondragon/preorder-backend/api/middleware"
	"github.com/angelmondragon/preorder-backend/internal/orders"
	"github.com/angelmondragon/preorder-backend/internal/realtime"
	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/preorder-backend/pkg/redis"
)

type restaurantLookup interface {
	Restaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
}

type publishableKeySource interface {
	PublishableKey() string
}

type stripeSigner interface {
	SigningSecret() string
}

type stripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Params carries everything the HTTP surface depends on.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis controllers.Pinger

	// IdempotencyStore may be nil, which disables replay protection.
	IdempotencyStore pkgredis.IdempotencyStore
	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler http.Handler

	Orders      orders.Service
	Restaurants restaurantLookup
	Payments    publishableKeySource
	Realtime    realtime.Subscriber

	StripeSigner         stripeSigner
	StripeWebhookService stripeWebhookService
	StripeWebhookGuard   stripeWebhookGuard
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	heartbeat := cfg.Realtime.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = realtimecontrollers.DefaultHeartbeat
	}
	metricsHandler := p.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.NamedPinger{Name: "database", Pinger: p.DB},
			controllers.NamedPinger{Name: "redis", Pinger: p.Redis},
		))
	})
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhookService, p.StripeSigner, p.StripeWebhookGuard, logg))
	})

	customer := middleware.RequireRole(logg, enums.UserRoleCustomer)
	restaurant := middleware.RequireRole(logg, enums.UserRoleRestaurant)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.IdempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(customer).Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/mine", ordercontrollers.Mine(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
			r.With(customer).Put("/{orderId}/cancel", ordercontrollers.Cancel(p.Orders, logg))
			r.With(restaurant).Put("/{orderId}/status", ordercontrollers.SetStatus(p.Orders, logg))
			r.With(restaurant).Put("/{orderId}/reject", ordercontrollers.Reject(p.Orders, logg))
		})
		r.With(restaurant).Get("/restaurants/{restaurantId}/orders", ordercontrollers.RestaurantOrders(p.Orders, logg))

		r.Route("/payments", func(r chi.Router) {
			r.With(customer).Post("/intents", paymentcontrollers.CreateIntent(p.Orders, logg))
			r.Get("/key", paymentcontrollers.PublishableKey(p.Payments, logg))
		})

		r.Route("/realtime", func(r chi.Router) {
			r.With(restaurant).Get("/restaurants/{restaurantId}", realtimecontrollers.Restaurant(p.Realtime, p.Restaurants, heartbeat, logg))
			r.Get("/me", realtimecontrollers.Me(p.Realtime, heartbeat, logg))
		})
	})

	return r
}

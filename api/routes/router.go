package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/duka-backend/api/controllers"
	"github.com/angelmondragon/duka-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/duka-backend/internal/checkout"
	"github.com/angelmondragon/duka-backend/internal/inventory"
	"github.com/angelmondragon/duka-backend/internal/orders"
	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/metrics"
	"github.com/angelmondragon/duka-backend/pkg/pagination"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

// RedisStore is the slice of the Redis client the HTTP layer needs for
// idempotent replays and checkout rate limits.
type RedisStore interface {
	controllers.Pinger
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

type notificationLogs interface {
	ListByRecipient(ctx context.Context, recipient string, params pagination.Params) ([]models.NotificationLog, string, error)
}

type queueStats interface {
	Stats(ctx context.Context) (map[string]queue.Stats, error)
}

// Params wires the router. Registry defaults to the global Prometheus registry.
type Params struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               controllers.Pinger
	Redis            RedisStore
	GCS              controllers.Pinger
	Queues           queueStats
	Checkout         checkoutsvc.Service
	Orders           orders.Service
	Inventory        inventory.Service
	NotificationLogs notificationLogs
	OutboxDLQ        controllers.DeadLetters
	Registry         prometheus.Registerer
	Gatherer         prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	registry, gatherer := p.Registry, p.Gatherer
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Observe(logg, metrics.NewHTTPMetrics(registry)),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, controllers.ReadinessDeps{
			DB:     p.DB,
			Redis:  p.Redis,
			GCS:    p.GCS,
			Queues: p.Queues,
		}, logg))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// replays are answered before the rate limit counts them
		r.With(
			middleware.OptionalAuth(cfg.JWT, logg),
			middleware.Idempotency(p.Redis, middleware.CheckoutReplayTTL, logg),
			middleware.CheckoutRateLimit(cfg.Checkout, p.Redis, logg),
		).Post("/checkout", controllers.Checkout(p.Checkout, logg))

		r.Route("/supplier", func(r chi.Router) {
			r.Use(
				middleware.Auth(cfg.JWT, logg),
				middleware.RequireRole(logg, enums.ActorRoleSupplier, enums.ActorRoleAdmin),
			)
			r.With(middleware.Idempotency(p.Redis, middleware.MutationReplayTTL, logg)).
				Patch("/order-items/{itemId}/fulfillment", controllers.SupplierItemFulfillment(p.Orders, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(logg, enums.ActorRoleAdmin),
		)
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderDetail(p.Orders, logg))
			r.With(middleware.Idempotency(p.Redis, middleware.MutationReplayTTL, logg)).
				Patch("/status", controllers.AdminUpdateOrderStatus(p.Orders, logg))
			r.Get("/notifications", controllers.AdminOrderNotifications(p.Orders, logg))
		})
		r.Get("/notifications", controllers.AdminNotificationsByRecipient(p.NotificationLogs, logg))
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/logs", controllers.AdminInventoryLogs(p.Inventory, logg))
			r.With(middleware.Idempotency(p.Redis, middleware.MutationReplayTTL, logg)).
				Post("/adjustments", controllers.AdminInventoryAdjust(p.Inventory, logg))
		})
		r.Route("/outbox/dlq", func(r chi.Router) {
			r.Get("/", controllers.AdminOutboxDeadLetters(p.OutboxDLQ, logg))
			r.With(middleware.Idempotency(p.Redis, middleware.MutationReplayTTL, logg)).
				Post("/{eventId}/replay", controllers.AdminOutboxReplay(p.OutboxDLQ, logg))
		})
	})

	return r
}

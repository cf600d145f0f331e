package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/duka-backend/api/routes"
	"github.com/angelmondragon/duka-backend/internal/checkout"
	"github.com/angelmondragon/duka-backend/internal/inventory"
	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/internal/notifications/providers"
	"github.com/angelmondragon/duka-backend/internal/orders"
	"github.com/angelmondragon/duka-backend/internal/settings"
	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/db"
	"github.com/angelmondragon/duka-backend/pkg/instance"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/migrate"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/queue"
	"github.com/angelmondragon/duka-backend/pkg/redis"
	"github.com/angelmondragon/duka-backend/pkg/storage/gcs"
)

const (
	serviceKind   = "api"
	shutdownGrace = 20 * time.Second
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
		Env:         cfg.App.Env,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(context.Background(), cfg, logg); err != nil {
		logg.Error(context.Background(), "api exited", err)
		os.Exit(1)
	}
}

func run(bootCtx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(bootCtx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing gcs", err)
		}
	}()

	queues, err := queue.NewSet(redisClient, cfg.Notifications)
	if err != nil {
		return err
	}

	params, err := buildServices(cfg, logg, dbClient, queues)
	if err != nil {
		return err
	}
	params.Config = cfg
	params.Logger = logg
	params.DB = dbClient
	params.Redis = redisClient
	params.GCS = gcsClient
	params.Queues = queues

	addr := ":" + cfg.App.Port
	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(serviceKind),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// buildServices wires the domain services behind the HTTP routes.
func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, queues *queue.Set) (routes.Params, error) {
	conn := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	logs := notifications.NewLogRepository(conn)

	var direct providers.EmailProvider
	if cfg.Notifications.DirectEmailOnSale {
		provider, err := providers.NewEmailProvider(cfg.Notifications.EmailProvider, providers.SettingsFromConfig(cfg))
		if err != nil {
			return routes.Params{}, err
		}
		direct = provider
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Queues:          notifications.QueuesFromSet(queues),
		DirectEmail:     direct,
		Logs:            logs,
		Logger:          logg,
		WhatsAppEnabled: cfg.FeatureFlags.WhatsAppEnabled,
		TrackingBaseURL: cfg.Checkout.TrackingBaseURL,
	})
	if err != nil {
		return routes.Params{}, err
	}

	inventoryRepo := inventory.NewRepository(conn)
	ledger, err := inventory.NewLedger(inventoryRepo, cfg.FeatureFlags.RejectOversell)
	if err != nil {
		return routes.Params{}, err
	}
	inventorySvc, err := inventory.NewService(dbClient, inventoryRepo, ledger)
	if err != nil {
		return routes.Params{}, err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		TxRunner:   dbClient,
		Repository: checkout.NewRepository(conn),
		Ledger:     ledger,
		Pricing: settings.NewProvider(conn, settings.DeliveryPricing{
			DefaultFee:    cfg.Checkout.DefaultDeliveryFeeAmount(),
			FreeThreshold: cfg.Checkout.FreeDeliveryThresholdAmount(),
		}),
		Outbox:      outboxSvc,
		Notifier:    dispatcher,
		Logger:      logg,
		Config:      cfg.Checkout,
		DirectEmail: cfg.Notifications.DirectEmailOnSale,

		DispatchTimeout: cfg.Notifications.EnqueueTimeout,
	})
	if err != nil {
		return routes.Params{}, err
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		TxRunner:   dbClient,
		Repository: orders.NewRepository(conn),
		Outbox:     outboxSvc,
		Notifier:   dispatcher,
		Logs:       logs,
		Logger:     logg,

		DispatchTimeout: cfg.Notifications.EnqueueTimeout,
	})
	if err != nil {
		return routes.Params{}, err
	}

	return routes.Params{
		Checkout:         checkoutSvc,
		Orders:           ordersSvc,
		Inventory:        inventorySvc,
		NotificationLogs: logs,
		OutboxDLQ:        outbox.NewDLQRepository(conn),
	}, nil
}

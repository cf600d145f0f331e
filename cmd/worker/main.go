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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/duka-backend/internal/documents"
	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/internal/notifications/providers"
	"github.com/angelmondragon/duka-backend/internal/notifications/worker"
	"github.com/angelmondragon/duka-backend/internal/orders"
	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/db"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/instance"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/metrics"
	"github.com/angelmondragon/duka-backend/pkg/migrate"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/duka-backend/pkg/phone"
	"github.com/angelmondragon/duka-backend/pkg/pubsub"
	"github.com/angelmondragon/duka-backend/pkg/queue"
	"github.com/angelmondragon/duka-backend/pkg/redis"
	"github.com/angelmondragon/duka-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Env:         cfg.App.Env,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		logg.Error(bootCtx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing pubsub", err)
		}
	}()

	gcsClient, err := gcs.NewClient(bootCtx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing gcs", err)
		}
	}()

	queues, err := queue.NewSet(redisClient, cfg.Notifications)
	if err != nil {
		logg.Error(bootCtx, "failed to build notification queues", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	logs := notifications.NewLogRepository(dbClient.DB())

	supervisor, err := buildSupervisor(cfg, logg, dbClient, gcsClient, queues, outboxSvc, logs)
	if err != nil {
		logg.Error(bootCtx, "failed to build notification pools", err)
		os.Exit(1)
	}

	payments, err := buildPaymentConsumer(cfg, logg, dbClient, redisClient, pubsubClient, queues, outboxSvc, logs)
	if err != nil {
		logg.Error(bootCtx, "failed to build payment consumer", err)
		os.Exit(1)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	service, err := NewService(ServiceParams{
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		PubSub:     pubsubClient,
		GCS:        gcsClient,
		Supervisor: supervisor,
		Payments:   payments,
		Metrics: &http.Server{
			Addr:              ":" + cfg.App.Port,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	})
	if err != nil {
		logg.Error(bootCtx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(cfg.Service.Kind),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker exited", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

func buildSupervisor(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	gcsClient *gcs.Client,
	queues *queue.Set,
	outboxSvc *outbox.Service,
	logs notifications.LogRepository,
) (*worker.Supervisor, error) {
	settings := providers.SettingsFromConfig(cfg)
	nc := cfg.Notifications

	phones, err := phone.NewNormalizer(nc.PhoneCountryCode, nc.PhoneLocalLength)
	if err != nil {
		return nil, err
	}
	emailProvider, err := providers.NewEmailProvider(nc.EmailProvider, settings)
	if err != nil {
		return nil, err
	}
	smsProvider, err := providers.NewSMSProvider(nc.SMSProvider, settings)
	if err != nil {
		return nil, err
	}
	docs, err := documents.NewService(documents.ServiceParams{
		TxRunner:        dbClient,
		Repository:      documents.NewRepository(dbClient.DB()),
		Generator:       documents.NewGenerator(logg),
		Uploader:        gcsClient,
		Outbox:          outboxSvc,
		Logger:          logg,
		TrackingBaseURL: cfg.Checkout.TrackingBaseURL,
		DocumentsPath:   cfg.GCS.DocumentsPath,
	})
	if err != nil {
		return nil, err
	}

	emailHandler, err := worker.NewEmailHandler(emailProvider)
	if err != nil {
		return nil, err
	}
	smsHandler, err := worker.NewSMSHandler(smsProvider, phones)
	if err != nil {
		return nil, err
	}
	pdfHandler, err := worker.NewPDFHandler(docs)
	if err != nil {
		return nil, err
	}

	poolMetrics := metrics.NewNotificationMetrics(prometheus.DefaultRegisterer)
	newPool := func(channel enums.NotificationChannel, handler worker.Handler, concurrency int, ratePerSecond float64) (*worker.Pool, error) {
		return worker.NewPool(worker.PoolParams{
			Queue:   queues.Get(channel),
			Handler: handler,
			Logs:    logs,
			Logger:  logg,
			Metrics: poolMetrics,
			Config: worker.PoolConfig{
				Concurrency:   concurrency,
				RatePerSecond: ratePerSecond,
				PollInterval:  nc.PollInterval,
				Lease:         nc.JobLease,
			},
		})
	}

	var pools []*worker.Pool
	for _, ch := range []struct {
		channel     enums.NotificationChannel
		handler     worker.Handler
		concurrency int
		rate        float64
	}{
		{enums.NotificationChannelEmail, emailHandler, nc.EmailConcurrency, nc.EmailRatePerSecond},
		{enums.NotificationChannelSMS, smsHandler, nc.SMSConcurrency, nc.SMSRatePerSecond},
		{enums.NotificationChannelPDF, pdfHandler, nc.PDFConcurrency, nc.PDFRatePerSecond},
	} {
		pool, err := newPool(ch.channel, ch.handler, ch.concurrency, ch.rate)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}

	if cfg.FeatureFlags.WhatsAppEnabled {
		waProvider, err := providers.NewWhatsAppProvider(nc.WhatsAppProvider, settings)
		if err != nil {
			return nil, err
		}
		waHandler, err := worker.NewWhatsAppHandler(waProvider, phones)
		if err != nil {
			return nil, err
		}
		pool, err := newPool(enums.NotificationChannelWhatsApp, waHandler, nc.WhatsAppConcurrency, nc.WhatsAppRate)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}

	return worker.NewSupervisor(logg, pools...)
}

func buildPaymentConsumer(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	pubsubClient *pubsub.Client,
	queues *queue.Set,
	outboxSvc *outbox.Service,
	logs notifications.LogRepository,
) (*orders.PaymentConsumer, error) {
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Queues:          notifications.QueuesFromSet(queues),
		Logs:            logs,
		Logger:          logg,
		WhatsAppEnabled: cfg.FeatureFlags.WhatsAppEnabled,
		TrackingBaseURL: cfg.Checkout.TrackingBaseURL,
	})
	if err != nil {
		return nil, err
	}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		TxRunner:   dbClient,
		Repository: orders.NewRepository(dbClient.DB()),
		Outbox:     outboxSvc,
		Notifier:   dispatcher,
		Logs:       logs,
		Logger:     logg,

		DispatchTimeout: cfg.Notifications.EnqueueTimeout,
	})
	if err != nil {
		return nil, err
	}
	guard, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL,
		idempotency.WithLease(cfg.Eventing.OutboxIdempotencyLease))
	if err != nil {
		return nil, err
	}
	return orders.NewPaymentConsumer(ordersSvc, guard, pubsubClient.PaymentsSubscription(), logg)
}

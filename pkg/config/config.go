package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Checkout      CheckoutConfig
	Notifications NotificationsConfig
	Sendgrid      SendgridConfig
	Twilio        TwilioConfig
	MetaWhatsApp  MetaWhatsAppConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"DUKA_APP_ENV" required:"true"`
	Port         string   `envconfig:"DUKA_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"DUKA_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"DUKA_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"DUKA_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"DUKA_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DUKA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DUKA_DB_DSN"`
	Driver string `envconfig:"DUKA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DUKA_DB_HOST"`
	LegacyPort     int    `envconfig:"DUKA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DUKA_DB_USER"`
	LegacyPassword string `envconfig:"DUKA_DB_PASSWORD"`
	LegacyName     string `envconfig:"DUKA_DB_NAME"`
	LegacySSLMode  string `envconfig:"DUKA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DUKA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DUKA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DUKA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DUKA_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxTimeout bounds long transactions such as order commitment.
	TxTimeout time.Duration `envconfig:"DUKA_DB_TX_TIMEOUT" default:"30s"`
	// TxRetries is how many times a serialization failure or deadlock is retried.
	TxRetries uint64 `envconfig:"DUKA_DB_TX_RETRIES" default:"2"`

	ConnectAttempts    uint64        `envconfig:"DUKA_DB_CONNECT_ATTEMPTS" default:"5"`
	SlowQueryThreshold time.Duration `envconfig:"DUKA_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DUKA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DUKA_REDIS_ADDR"`
	Password     string        `envconfig:"DUKA_REDIS_PASSWORD"`
	DB           int           `envconfig:"DUKA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DUKA_REDIS_POOL_SIZE" default:"20"`
	MinIdleConns int           `envconfig:"DUKA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DUKA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DUKA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DUKA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DUKA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DUKA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DUKA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"DUKA_AUTO_MIGRATE" default:"false"`
	WhatsAppEnabled bool `envconfig:"DUKA_FEATURE_WHATSAPP" default:"false"`
	RejectOversell  bool `envconfig:"DUKA_FEATURE_REJECT_OVERSELL" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL   time.Duration `envconfig:"DUKA_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	OutboxIdempotencyLease time.Duration `envconfig:"DUKA_EVENTING_IDEMPOTENCY_LEASE" default:"5m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DUKA_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"DUKA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DUKA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"DUKA_GCS_BUCKET_NAME" required:"true"`
	PublicBaseURL string `envconfig:"DUKA_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	DocumentsPath string `envconfig:"DUKA_GCS_DOCUMENTS_PATH" default:"documents"`
	// Endpoint overrides the JSON API base URL, e.g. for fake-gcs-server.
	Endpoint     string `envconfig:"DUKA_GCS_ENDPOINT"`
	CacheControl string `envconfig:"DUKA_GCS_CACHE_CONTROL" default:"private, max-age=300"`
}

type PubSubConfig struct {
	OrdersTopic          string `envconfig:"DUKA_PUBSUB_ORDERS_TOPIC" required:"true"`
	PaymentsTopic        string `envconfig:"DUKA_PUBSUB_PAYMENTS_TOPIC"`
	PaymentsSubscription string `envconfig:"DUKA_PUBSUB_PAYMENTS_SUBSCRIPTION" required:"true"`
	// EmulatorHost points the client at a local emulator and provisions
	// missing topics and subscriptions on boot.
	EmulatorHost string `envconfig:"DUKA_PUBSUB_EMULATOR_HOST"`
	AckDeadline  int    `envconfig:"DUKA_PUBSUB_ACK_DEADLINE_SECONDS" default:"60"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DUKA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DUKA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DUKA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval                 time.Duration `envconfig:"DUKA_CRON_INTERVAL" default:"1h"`
	LockTTL                  time.Duration `envconfig:"DUKA_CRON_LOCK_TTL" default:"2h"`
	OutboxRetentionDays      int           `envconfig:"DUKA_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationLogRetention int           `envconfig:"DUKA_CRON_NOTIFICATION_LOG_RETENTION_DAYS" default:"180"`
}

type CheckoutConfig struct {
	DefaultDeliveryFee    string `envconfig:"DUKA_CHECKOUT_DEFAULT_DELIVERY_FEE" default:"1500"`
	FreeDeliveryThreshold string `envconfig:"DUKA_CHECKOUT_FREE_DELIVERY_THRESHOLD" default:"20000"`
	PlatformCommission    string `envconfig:"DUKA_CHECKOUT_PLATFORM_COMMISSION_RATE" default:"0"`
	Currency              string `envconfig:"DUKA_CHECKOUT_CURRENCY" default:"RWF"`
	OrderNumberAttempts   int    `envconfig:"DUKA_CHECKOUT_ORDER_NUMBER_ATTEMPTS" default:"5"`
	TrackingBaseURL       string `envconfig:"DUKA_CHECKOUT_TRACKING_BASE_URL" default:"https://duka.rw/track"`

	RateLimitWindow time.Duration `envconfig:"DUKA_CHECKOUT_RATE_LIMIT_WINDOW" default:"10m"`
	RateLimitIP     int           `envconfig:"DUKA_CHECKOUT_RATE_LIMIT_IP" default:"30"`
	RateLimitPhone  int           `envconfig:"DUKA_CHECKOUT_RATE_LIMIT_PHONE" default:"10"`
}

// DefaultDeliveryFeeAmount parses the configured default fee.
func (c CheckoutConfig) DefaultDeliveryFeeAmount() decimal.Decimal {
	return parseAmount(c.DefaultDeliveryFee)
}

// FreeDeliveryThresholdAmount parses the configured free-delivery threshold.
func (c CheckoutConfig) FreeDeliveryThresholdAmount() decimal.Decimal {
	return parseAmount(c.FreeDeliveryThreshold)
}

// PlatformCommissionRate is applied to items without a supplier.
func (c CheckoutConfig) PlatformCommissionRate() decimal.Decimal {
	return parseAmount(c.PlatformCommission)
}

func (c CheckoutConfig) validate() error {
	for env, raw := range map[string]string{
		EnvCheckoutDefaultFee:    c.DefaultDeliveryFee,
		EnvCheckoutFreeThreshold:  c.FreeDeliveryThreshold,
		EnvCheckoutPlatformRate:  c.PlatformCommission,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := decimal.NewFromString(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s must be a decimal: %w", env, err)
		}
	}
	return nil
}

func parseAmount(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
}

type NotificationsConfig struct {
	EmailProvider    string `envconfig:"DUKA_NOTIFY_EMAIL_PROVIDER" default:"mock"`
	SMSProvider      string `envconfig:"DUKA_NOTIFY_SMS_PROVIDER" default:"mock"`
	WhatsAppProvider string `envconfig:"DUKA_NOTIFY_WHATSAPP_PROVIDER" default:"mock"`

	EmailConcurrency    int     `envconfig:"DUKA_NOTIFY_EMAIL_CONCURRENCY" default:"5"`
	EmailRatePerSecond  float64 `envconfig:"DUKA_NOTIFY_EMAIL_RATE" default:"10"`
	EmailAttempts       int     `envconfig:"DUKA_NOTIFY_EMAIL_ATTEMPTS" default:"3"`
	SMSConcurrency      int     `envconfig:"DUKA_NOTIFY_SMS_CONCURRENCY" default:"10"`
	SMSRatePerSecond    float64 `envconfig:"DUKA_NOTIFY_SMS_RATE" default:"20"`
	SMSAttempts         int     `envconfig:"DUKA_NOTIFY_SMS_ATTEMPTS" default:"3"`
	WhatsAppConcurrency int     `envconfig:"DUKA_NOTIFY_WHATSAPP_CONCURRENCY" default:"5"`
	WhatsAppRate        float64 `envconfig:"DUKA_NOTIFY_WHATSAPP_RATE" default:"10"`
	WhatsAppAttempts    int     `envconfig:"DUKA_NOTIFY_WHATSAPP_ATTEMPTS" default:"3"`
	PDFConcurrency      int     `envconfig:"DUKA_NOTIFY_PDF_CONCURRENCY" default:"2"`
	PDFRatePerSecond    float64 `envconfig:"DUKA_NOTIFY_PDF_RATE" default:"0"`
	PDFAttempts         int     `envconfig:"DUKA_NOTIFY_PDF_ATTEMPTS" default:"2"`

	BackoffBase    time.Duration `envconfig:"DUKA_NOTIFY_BACKOFF_BASE" default:"2s"`
	PDFBackoff     time.Duration `envconfig:"DUKA_NOTIFY_PDF_BACKOFF" default:"5s"`
	PollInterval   time.Duration `envconfig:"DUKA_NOTIFY_POLL_INTERVAL" default:"1s"`
	JobLease       time.Duration `envconfig:"DUKA_NOTIFY_JOB_LEASE" default:"2m"`
	EnqueueTimeout time.Duration `envconfig:"DUKA_NOTIFY_ENQUEUE_TIMEOUT" default:"3s"`
	DeadRetention  int64         `envconfig:"DUKA_NOTIFY_DEAD_RETENTION" default:"1000"`

	PhoneCountryCode  string `envconfig:"DUKA_PHONE_COUNTRY_CODE" default:"250"`
	PhoneLocalLength  int    `envconfig:"DUKA_PHONE_LOCAL_LENGTH" default:"9"`
	DirectEmailOnSale bool   `envconfig:"DUKA_NOTIFY_DIRECT_EMAIL" default:"true"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"DUKA_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"DUKA_SENDGRID_FROM_EMAIL" default:"orders@duka.rw"`
	BaseURL     string `envconfig:"DUKA_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
}

type TwilioConfig struct {
	AccountSID string `envconfig:"DUKA_TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"DUKA_TWILIO_AUTH_TOKEN"`
	FromNumber string `envconfig:"DUKA_TWILIO_FROM_NUMBER"`
	Region     string `envconfig:"DUKA_TWILIO_REGION"`
	Edge       string `envconfig:"DUKA_TWILIO_EDGE"`
}

type MetaWhatsAppConfig struct {
	AccessToken   string `envconfig:"DUKA_META_WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID string `envconfig:"DUKA_META_WHATSAPP_PHONE_NUMBER_ID"`
	APIVersion    string `envconfig:"DUKA_META_WHATSAPP_API_VERSION" default:"v19.0"`
	Language      string `envconfig:"DUKA_META_WHATSAPP_LANGUAGE" default:"en"`
	BaseURL       string `envconfig:"DUKA_META_WHATSAPP_BASE_URL" default:"https://graph.facebook.com"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

package config

const (
	EnvPrefix = "DUKA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "DUKA_APP_ENV"
	EnvPort   = "DUKA_APP_PORT"

	EnvCORSOrigins = "DUKA_CORS_ORIGINS"

	EnvDBDSN  = "DUKA_DB_DSN"
	EnvDBHost = "DUKA_DB_HOST"
	EnvDBUser = "DUKA_DB_USER"
	EnvDBName = "DUKA_DB_NAME"

	EnvDBTxTimeout = "DUKA_DB_TX_TIMEOUT"

	EnvRedisURL = "DUKA_REDIS_URL"

	EnvJWTSecret  = "DUKA_JWT_SECRET"
	EnvJWTIssuer  = "DUKA_JWT_ISSUER"
	EnvJWTExpMins = "DUKA_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "DUKA_GCP_PROJECT_ID"
	EnvGCSBucket    = "DUKA_GCS_BUCKET_NAME"

	EnvPubSubOrdersTopic = "DUKA_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPaymentsSub = "DUKA_PUBSUB_PAYMENTS_SUBSCRIPTION"

	EnvCheckoutDefaultFee    = "DUKA_CHECKOUT_DEFAULT_DELIVERY_FEE"
	EnvCheckoutFreeThreshold = "DUKA_CHECKOUT_FREE_DELIVERY_THRESHOLD"
	EnvCheckoutPlatformRate  = "DUKA_CHECKOUT_PLATFORM_COMMISSION_RATE"
	EnvCheckoutRateWindow    = "DUKA_CHECKOUT_RATE_LIMIT_WINDOW"
	EnvCheckoutRateIP        = "DUKA_CHECKOUT_RATE_LIMIT_IP"
	EnvCheckoutRatePhone     = "DUKA_CHECKOUT_RATE_LIMIT_PHONE"

	EnvFeatureWhatsApp       = "DUKA_FEATURE_WHATSAPP"
	EnvFeatureRejectOversell = "DUKA_FEATURE_REJECT_OVERSELL"

	EnvNotifySMSProvider = "DUKA_NOTIFY_SMS_PROVIDER"
	EnvPhoneCountryCode  = "DUKA_PHONE_COUNTRY_CODE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

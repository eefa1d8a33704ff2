package config

// EnvPrefix is handed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "STOREFRONT_APP_ENV"
	EnvPort         = "STOREFRONT_APP_PORT"
	EnvLogLevel     = "STOREFRONT_LOG_LEVEL"
	EnvDBDSN        = "STOREFRONT_DB_DSN"
	EnvDBHost       = "STOREFRONT_DB_HOST"
	EnvDBUser       = "STOREFRONT_DB_USER"
	EnvDBName       = "STOREFRONT_DB_NAME"
	EnvRedisURL     = "STOREFRONT_REDIS_URL"
	EnvUseSQLite    = "STOREFRONT_USE_SQLITE"
	EnvSessionTTL   = "STOREFRONT_CHECKOUT_SESSION_TTL"
	EnvCallbackTO   = "STOREFRONT_CALLBACK_TIMEOUT"
	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"
	EnvOrdersTopic  = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvStripeAPIKey = "STOREFRONT_STRIPE_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

const EnvPrefix = "SHOPLEDGER"

const (
	AppEnvDev        = "dev"
	AppEnvProd       = "prod"
	AppEnvProduction = "production"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:shopledger.db?_foreign_keys=on"
)

const (
	EnvAppEnv   = "SHOPLEDGER_APP_ENV"
	EnvPort     = "SHOPLEDGER_APP_PORT"
	EnvLogLevel = "SHOPLEDGER_LOG_LEVEL"

	EnvDBDSN    = "SHOPLEDGER_DB_DSN"
	EnvDBDriver = "SHOPLEDGER_DB_DRIVER"
	EnvDBHost   = "SHOPLEDGER_DB_HOST"
	EnvDBUser   = "SHOPLEDGER_DB_USER"
	EnvDBName   = "SHOPLEDGER_DB_NAME"

	EnvRedisURL  = "SHOPLEDGER_REDIS_URL"
	EnvUseSQLite = "SHOPLEDGER_USE_SQLITE"

	EnvCheckoutSessionTTL      = "SHOPLEDGER_CHECKOUT_SESSION_TTL"
	EnvCheckoutPendingTimeout  = "SHOPLEDGER_CHECKOUT_PENDING_ORDER_TIMEOUT"
	EnvCheckoutDefaultTaxRate  = "SHOPLEDGER_CHECKOUT_DEFAULT_TAX_RATE"
	EnvInventoryReorderDefault = "SHOPLEDGER_INVENTORY_REORDER_THRESHOLD"

	EnvPubSubOrdersTopic    = "SHOPLEDGER_PUBSUB_ORDERS_TOPIC"
	EnvPubSubInventoryTopic = "SHOPLEDGER_PUBSUB_INVENTORY_TOPIC"

	EnvStripeAPIKey = "SHOPLEDGER_STRIPE_API_KEY"
	EnvStripeEnv    = "SHOPLEDGER_STRIPE_ENV"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

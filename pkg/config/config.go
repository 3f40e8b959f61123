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
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Checkout     CheckoutConfig
	Inventory    InventoryConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
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
	Env          string `envconfig:"SHOPLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPLEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, AppEnvProduction)
}

type ServiceConfig struct {
	Kind        string   `envconfig:"SHOPLEDGER_SERVICE_KIND" default:"api"`
	CORSOrigins []string `envconfig:"SHOPLEDGER_CORS_ORIGINS"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPLEDGER_DB_DSN"`
	Driver string `envconfig:"SHOPLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"SHOPLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SHOPLEDGER_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOPLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOPLEDGER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SHOPLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type CheckoutConfig struct {
	SessionTTL                time.Duration `envconfig:"SHOPLEDGER_CHECKOUT_SESSION_TTL" default:"1h"`
	PendingOrderTimeout       time.Duration `envconfig:"SHOPLEDGER_CHECKOUT_PENDING_ORDER_TIMEOUT" default:"30m"`
	Currency                  string        `envconfig:"SHOPLEDGER_CHECKOUT_CURRENCY" default:"usd"`
	DefaultTaxRate            string        `envconfig:"SHOPLEDGER_CHECKOUT_DEFAULT_TAX_RATE" default:"0.0825"`
	FreeShippingThresholdCent int           `envconfig:"SHOPLEDGER_CHECKOUT_FREE_SHIPPING_THRESHOLD_CENTS" default:"5000"`
	IdempotencyTTL            time.Duration `envconfig:"SHOPLEDGER_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
}

// TaxRate parses the configured default tax rate.
func (c CheckoutConfig) TaxRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultTaxRate))
	if err != nil {
		return decimal.RequireFromString("0.0825")
	}
	return rate
}

func (c CheckoutConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultTaxRate))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvCheckoutDefaultTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0, 1)", EnvCheckoutDefaultTaxRate)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutSessionTTL)
	}
	if c.PendingOrderTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutPendingTimeout)
	}
	return nil
}

type InventoryConfig struct {
	DefaultReorderThreshold int `envconfig:"SHOPLEDGER_INVENTORY_REORDER_THRESHOLD" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SHOPLEDGER_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"SHOPLEDGER_CRON_LOCK_TTL" default:"55s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHOPLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHOPLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHOPLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic    string `envconfig:"SHOPLEDGER_PUBSUB_ORDERS_TOPIC" default:"sl-order-events"`
	InventoryTopic string `envconfig:"SHOPLEDGER_PUBSUB_INVENTORY_TOPIC" default:"sl-inventory-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SHOPLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SHOPLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SHOPLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"SHOPLEDGER_OUTBOX_RETENTION" default:"720h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SHOPLEDGER_STRIPE_API_KEY"`
	Env    string `envconfig:"SHOPLEDGER_STRIPE_ENV" default:"test"`
	// ManualCapture leaves confirmed intents authorized until an admin
	// captures the pending order.
	ManualCapture bool `envconfig:"SHOPLEDGER_STRIPE_MANUAL_CAPTURE" default:"false"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether a Stripe key has been configured.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
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

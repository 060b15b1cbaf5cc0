package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Orders   OrdersConfig
	Realtime RealtimeConfig
	Eventing EventingConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Stripe   StripeConfig
	Outbox   OutboxConfig

	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PREORDER_APP_ENV" required:"true"`
	Port         string `envconfig:"PREORDER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PREORDER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PREORDER_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"PREORDER_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PREORDER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PREORDER_DB_DSN"`
	Driver string `envconfig:"PREORDER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PREORDER_DB_HOST"`
	LegacyPort     int    `envconfig:"PREORDER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PREORDER_DB_USER"`
	LegacyPassword string `envconfig:"PREORDER_DB_PASSWORD"`
	LegacyName     string `envconfig:"PREORDER_DB_NAME"`
	LegacySSLMode  string `envconfig:"PREORDER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PREORDER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PREORDER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PREORDER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PREORDER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PREORDER_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PREORDER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PREORDER_REDIS_ADDR"`
	Password     string        `envconfig:"PREORDER_REDIS_PASSWORD"`
	DB           int           `envconfig:"PREORDER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PREORDER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PREORDER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PREORDER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PREORDER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PREORDER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PREORDER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PREORDER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PREORDER_JWT_EXPIRATION_MINUTES" required:"true"`
}

// OrdersConfig holds the lifecycle policy knobs.
type OrdersConfig struct {
	Timezone     string        `envconfig:"PREORDER_ORDERS_TIMEZONE" default:"Asia/Kolkata"`
	CancelWindow time.Duration `envconfig:"PREORDER_ORDERS_CANCEL_WINDOW" default:"5m"`
	Currency     string        `envconfig:"PREORDER_ORDERS_CURRENCY" default:"INR"`
}

// Location resolves the reference timezone used for operating hours.
func (o OrdersConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(o.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}

func (o OrdersConfig) validate() error {
	if o.CancelWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvOrdersCancelWindow)
	}
	if len(strings.TrimSpace(o.Currency)) != 3 {
		return fmt.Errorf("%s must be a 3 letter ISO code", EnvOrdersCurrency)
	}
	if _, err := o.Location(); err != nil {
		return err
	}
	return nil
}

type RealtimeConfig struct {
	BufferSize        int           `envconfig:"PREORDER_REALTIME_BUFFER_SIZE" default:"32"`
	HeartbeatInterval time.Duration `envconfig:"PREORDER_REALTIME_HEARTBEAT" default:"25s"`
	ChannelPrefix     string        `envconfig:"PREORDER_REALTIME_CHANNEL_PREFIX" default:"preorder:realtime"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PREORDER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookDedupeTTL     time.Duration `envconfig:"PREORDER_EVENTING_WEBHOOK_DEDUPE_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PREORDER_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PREORDER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PREORDER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic         string `envconfig:"PREORDER_PUBSUB_ORDERS_TOPIC" required:"true"`
	RefundsSubscription string `envconfig:"PREORDER_PUBSUB_REFUNDS_SUBSCRIPTION" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PREORDER_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PREORDER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PREORDER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PREORDER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey         string `envconfig:"PREORDER_STRIPE_API_KEY"`
	PublishableKey string `envconfig:"PREORDER_STRIPE_PUBLISHABLE_KEY"`
	SigningSecret  string `envconfig:"PREORDER_STRIPE_WEBHOOK_SECRET"`
	Env            string `envconfig:"PREORDER_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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

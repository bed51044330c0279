package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Stripe  StripeConfig
	Webhook WebhookConfig
	CORS    CORSConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Outbox  OutboxConfig
	Cron    CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BILLING_APP_ENV" required:"true"`
	Port         string `envconfig:"BILLING_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BILLING_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BILLING_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BILLING_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BILLING_DB_DSN"`
	Driver string `envconfig:"BILLING_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BILLING_DB_HOST"`
	LegacyPort     int    `envconfig:"BILLING_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BILLING_DB_USER"`
	LegacyPassword string `envconfig:"BILLING_DB_PASSWORD"`
	LegacyName     string `envconfig:"BILLING_DB_NAME"`
	LegacySSLMode  string `envconfig:"BILLING_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"BILLING_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"BILLING_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BILLING_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BILLING_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BILLING_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"BILLING_REDIS_URL"`
	Address      string        `envconfig:"BILLING_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"BILLING_REDIS_PASSWORD"`
	DB           int           `envconfig:"BILLING_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BILLING_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BILLING_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BILLING_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BILLING_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"BILLING_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BILLING_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BILLING_JWT_ISSUER"`
	Audience          string `envconfig:"BILLING_JWT_AUDIENCE"`
	ExpirationMinutes int    `envconfig:"BILLING_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the lifetime of tokens minted by this service.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type StripeConfig struct {
	APIKey         string        `envconfig:"BILLING_STRIPE_API_KEY"`
	Secret         string        `envconfig:"BILLING_STRIPE_SECRET"`
	Env            string        `envconfig:"BILLING_STRIPE_ENV" default:"test"`
	RequestTimeout time.Duration `envconfig:"BILLING_STRIPE_REQUEST_TIMEOUT" default:"10s"`
	MaxRetries     int64         `envconfig:"BILLING_STRIPE_MAX_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"BILLING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	MaxBodyBytes   int64         `envconfig:"BILLING_WEBHOOK_MAX_BODY_BYTES" default:"65536"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"BILLING_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxAge         int      `envconfig:"BILLING_CORS_MAX_AGE" default:"300"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BILLING_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BILLING_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BILLING_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic        string `envconfig:"BILLING_PUBSUB_BILLING_TOPIC" default:"billing-subscription-events"`
	BillingSubscription string `envconfig:"BILLING_PUBSUB_BILLING_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BILLING_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BILLING_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BILLING_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"BILLING_CRON_INTERVAL" default:"1h"`
	ReconcileLimit  int           `envconfig:"BILLING_CRON_RECONCILE_LIMIT" default:"250"`
	OutboxRetention time.Duration `envconfig:"BILLING_CRON_OUTBOX_RETENTION" default:"720h"`
	LockTTL         time.Duration `envconfig:"BILLING_CRON_LOCK_TTL" default:"55m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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

package config

const (
	EnvPrefix = "BILLING"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:billing.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv             = "BILLING_APP_ENV"
	EnvPort               = "BILLING_APP_PORT"
	EnvDBDSN              = "BILLING_DB_DSN"
	EnvDBDriver           = "BILLING_DB_DRIVER"
	EnvDBHost             = "BILLING_DB_HOST"
	EnvDBUser             = "BILLING_DB_USER"
	EnvDBPassword         = "BILLING_DB_PASSWORD"
	EnvDBName             = "BILLING_DB_NAME"
	EnvRedisURL           = "BILLING_REDIS_URL"
	EnvJWTSecret          = "BILLING_JWT_SECRET"
	EnvJWTIssuer          = "BILLING_JWT_ISSUER"
	EnvStripeAPIKey       = "BILLING_STRIPE_API_KEY"
	EnvStripeSecret       = "BILLING_STRIPE_SECRET"
	EnvStripeTimeout      = "BILLING_STRIPE_REQUEST_TIMEOUT"
	EnvCORSOrigins        = "BILLING_CORS_ALLOWED_ORIGINS"
	EnvGCPProjectID       = "BILLING_GCP_PROJECT_ID"
	EnvPubSubBillingTopic = "BILLING_PUBSUB_BILLING_TOPIC"
	EnvEnvFile            = "BILLING_ENV_FILE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

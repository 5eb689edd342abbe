package config

const (
	EnvPrefix = "YOGAFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "YOGAFLOW_APP_ENV"
	EnvPort         = "YOGAFLOW_APP_PORT"
	EnvLogLevel     = "YOGAFLOW_LOG_LEVEL"
	EnvLogWarnStack = "YOGAFLOW_LOG_WARN_STACK"

	EnvDBDSN      = "YOGAFLOW_DB_DSN"
	EnvDBDriver   = "YOGAFLOW_DB_DRIVER"
	EnvDBHost     = "YOGAFLOW_DB_HOST"
	EnvDBPort     = "YOGAFLOW_DB_PORT"
	EnvDBUser     = "YOGAFLOW_DB_USER"
	EnvDBPassword = "YOGAFLOW_DB_PASSWORD"
	EnvDBName     = "YOGAFLOW_DB_NAME"
	EnvDBSSLMode  = "YOGAFLOW_DB_SSLMODE"

	EnvRedisURL = "YOGAFLOW_REDIS_URL"

	EnvJWTSecret = "YOGAFLOW_JWT_SECRET"
	EnvJWTIssuer = "YOGAFLOW_JWT_ISSUER"

	EnvPolarWebhookSecret = "YOGAFLOW_POLAR_WEBHOOK_SECRET"
	EnvPolarLedgerTTL     = "YOGAFLOW_POLAR_LEDGER_TTL"
	EnvPolarGracePeriod   = "YOGAFLOW_POLAR_DEFAULT_GRACE_PERIOD"

	EnvSessionCacheTTL = "YOGAFLOW_SESSION_CACHE_TTL"

	EnvCronInterval        = "YOGAFLOW_CRON_INTERVAL"
	EnvCronExpiryBatchSize = "YOGAFLOW_CRON_EXPIRY_BATCH_SIZE"
	EnvCronLedgerBatchSize = "YOGAFLOW_CRON_LEDGER_BATCH_SIZE"

	EnvGCPProjectID          = "YOGAFLOW_GCP_PROJECT_ID"
	EnvPubSubMembershipTopic = "YOGAFLOW_PUBSUB_MEMBERSHIP_TOPIC"

	EnvUseSQLite   = "YOGAFLOW_USE_SQLITE"
	EnvAutoMigrate = "YOGAFLOW_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

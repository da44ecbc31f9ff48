package config

const EnvPrefix = "LOYALTY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv    = "LOYALTY_APP_ENV"
	EnvPort      = "LOYALTY_APP_PORT"
	EnvLogLevel  = "LOYALTY_LOG_LEVEL"
	EnvDBDSN     = "LOYALTY_DB_DSN"
	EnvDBDriver  = "LOYALTY_DB_DRIVER"
	EnvDBHost    = "LOYALTY_DB_HOST"
	EnvDBUser    = "LOYALTY_DB_USER"
	EnvDBName    = "LOYALTY_DB_NAME"
	EnvRedisURL  = "LOYALTY_REDIS_URL"
	EnvRedisAddr = "LOYALTY_REDIS_ADDR"
	EnvJWTSecret = "LOYALTY_JWT_SECRET"
	EnvJWTIssuer = "LOYALTY_JWT_ISSUER"
	EnvJWTExpMin = "LOYALTY_JWT_EXPIRATION_MINUTES"

	EnvCORSOrigins      = "LOYALTY_CORS_ALLOWED_ORIGINS"
	EnvPubSubLedger     = "LOYALTY_PUBSUB_LEDGER_TOPIC"
	EnvNotifyBufferSize = "LOYALTY_NOTIFY_BUFFER_SIZE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

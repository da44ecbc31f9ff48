package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	CORS          CORSConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Notifications NotificationsConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOYALTY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOYALTY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOYALTY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOYALTY_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"LOYALTY_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOYALTY_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"LOYALTY_WORKER_METRICS_ADDR" default:":9102"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOYALTY_DB_DSN"`
	Driver string `envconfig:"LOYALTY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LOYALTY_DB_HOST"`
	Port     int    `envconfig:"LOYALTY_DB_PORT" default:"5432"`
	User     string `envconfig:"LOYALTY_DB_USER"`
	Password string `envconfig:"LOYALTY_DB_PASSWORD"`
	Name     string `envconfig:"LOYALTY_DB_NAME"`
	SSLMode  string `envconfig:"LOYALTY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOYALTY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOYALTY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the threshold above which statements are logged at warn. 0 disables it.
	SlowQuery time.Duration `envconfig:"LOYALTY_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOYALTY_REDIS_URL"`
	Address      string        `envconfig:"LOYALTY_REDIS_ADDR"`
	Password     string        `envconfig:"LOYALTY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOYALTY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOYALTY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOYALTY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOYALTY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOYALTY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOYALTY_REDIS_WRITE_TIMEOUT" default:"5s"`
	// Namespace prefixes every key so several environments can share one instance.
	Namespace string `envconfig:"LOYALTY_REDIS_NAMESPACE" default:"loyalty"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOYALTY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOYALTY_JWT_ISSUER" default:"campus-loyalty"`
	ExpirationMinutes int    `envconfig:"LOYALTY_JWT_EXPIRATION_MINUTES" default:"10080"`
}

// TokenTTL is the lifetime of access tokens and their backing sessions.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LOYALTY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LOYALTY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LOYALTY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LOYALTY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LOYALTY_ARGON_KEY_LEN" default:"32"`

	ActivationTTL time.Duration `envconfig:"LOYALTY_ACTIVATION_TOKEN_TTL" default:"168h"`
	ResetTTL      time.Duration `envconfig:"LOYALTY_RESET_TOKEN_TTL" default:"1h"`
}

type AuthRateLimitConfig struct {
	LoginWindow      time.Duration `envconfig:"LOYALTY_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginUtoridLimit int           `envconfig:"LOYALTY_AUTH_RATE_LIMIT_LOGIN_UTORID_LIMIT" default:"5"`
	LoginIPLimit     int           `envconfig:"LOYALTY_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	ResetWindow      time.Duration `envconfig:"LOYALTY_AUTH_RATE_LIMIT_RESET_WINDOW" default:"1m"`
	ResetUtoridLimit int           `envconfig:"LOYALTY_AUTH_RATE_LIMIT_RESET_UTORID_LIMIT" default:"3"`
	ResetIPLimit     int           `envconfig:"LOYALTY_AUTH_RATE_LIMIT_RESET_IP_LIMIT" default:"10"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"LOYALTY_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

type FeatureFlagsConfig struct {
	AutoMigrate         bool `envconfig:"LOYALTY_AUTO_MIGRATE" default:"false"`
	RealtimeNotifyRedis bool `envconfig:"LOYALTY_REALTIME_NOTIFY_REDIS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"LOYALTY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	// RequestIdempotencyTTL is how long an Idempotency-Key response is replayed.
	RequestIdempotencyTTL time.Duration `envconfig:"LOYALTY_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LOYALTY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LOYALTY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LOYALTY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic           string `envconfig:"LOYALTY_PUBSUB_LEDGER_TOPIC" default:"loyalty-ledger-events"`
	AnalyticsSubscription string `envconfig:"LOYALTY_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"loyalty-ledger-analytics"`
	// AnalyticsMaxOutstanding caps unacked messages held by the analytics worker.
	AnalyticsMaxOutstanding int `envconfig:"LOYALTY_PUBSUB_ANALYTICS_MAX_OUTSTANDING" default:"100"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"LOYALTY_BIGQUERY_DATASET" default:"campus_loyalty"`
	LedgerTable string `envconfig:"LOYALTY_BIGQUERY_LEDGER_TABLE" default:"ledger_transactions"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOYALTY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOYALTY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOYALTY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"LOYALTY_OUTBOX_RETENTION_DAYS" default:"30"`
}

type NotificationsConfig struct {
	BufferSize    int `envconfig:"LOYALTY_NOTIFY_BUFFER_SIZE" default:"256"`
	Workers       int `envconfig:"LOYALTY_NOTIFY_WORKERS" default:"2"`
	RetentionDays int `envconfig:"LOYALTY_NOTIFY_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LOYALTY_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"LOYALTY_CRON_LOCK_TTL" default:"10m"`
}

// resolveDSN checks the driver and, for postgres without an explicit DSN,
// assembles one from the discrete LOYALTY_DB_* parts.
func (db *DBConfig) resolveDSN() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case "", DriverPostgres:
		db.Driver = DriverPostgres
	case DriverSQLite:
		db.Driver = DriverSQLite
		if db.DSN == "" {
			return fmt.Errorf("%s is required for the %s driver", EnvDBDSN, DriverSQLite)
		}
		return nil
	default:
		return fmt.Errorf("%s: unsupported driver %q", EnvDBDriver, db.Driver)
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	discrete := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if discrete[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

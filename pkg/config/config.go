package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Polar        PolarConfig
	Session      SessionConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = "file:yogaflow.db?_foreign_keys=on"
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"YOGAFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"YOGAFLOW_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"YOGAFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"YOGAFLOW_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"YOGAFLOW_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"YOGAFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"YOGAFLOW_DB_DSN"`
	Driver string `envconfig:"YOGAFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"YOGAFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"YOGAFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"YOGAFLOW_DB_USER"`
	LegacyPassword string `envconfig:"YOGAFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"YOGAFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"YOGAFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"YOGAFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"YOGAFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"YOGAFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"YOGAFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"YOGAFLOW_REDIS_URL"`
	Address      string        `envconfig:"YOGAFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"YOGAFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"YOGAFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"YOGAFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"YOGAFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"YOGAFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"YOGAFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"YOGAFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"YOGAFLOW_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"YOGAFLOW_JWT_ISSUER" default:"yogaflow"`

	ExpirationMinutes int `envconfig:"YOGAFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PolarConfig carries the billing provider webhook settings. An empty
// WebhookSecret disables signature verification.
type PolarConfig struct {
	WebhookSecret      string        `envconfig:"YOGAFLOW_POLAR_WEBHOOK_SECRET"`
	LedgerTTL          time.Duration `envconfig:"YOGAFLOW_POLAR_LEDGER_TTL" default:"720h"`
	DefaultGracePeriod time.Duration `envconfig:"YOGAFLOW_POLAR_DEFAULT_GRACE_PERIOD" default:"720h"`
}

type SessionConfig struct {
	CacheTTL time.Duration `envconfig:"YOGAFLOW_SESSION_CACHE_TTL" default:"5m"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"YOGAFLOW_CRON_INTERVAL" default:"1h"`
	ExpiryBatchSize int           `envconfig:"YOGAFLOW_CRON_EXPIRY_BATCH_SIZE" default:"200"`
	LedgerBatchSize int           `envconfig:"YOGAFLOW_CRON_LEDGER_BATCH_SIZE" default:"500"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"YOGAFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"YOGAFLOW_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"YOGAFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	MembershipTopic string `envconfig:"YOGAFLOW_PUBSUB_MEMBERSHIP_TOPIC"`
}

// Enabled reports whether membership notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.MembershipTopic) != ""
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

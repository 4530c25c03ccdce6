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
	DB           DBConfig
	Redis        RedisConfig
	Availability AvailabilityConfig
	Allocation   AllocationConfig
	Cron         CronConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LENSRENT_APP_ENV" required:"true"`
	Port         string `envconfig:"LENSRENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LENSRENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LENSRENT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LENSRENT_DB_DSN"`
	Driver string `envconfig:"LENSRENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LENSRENT_DB_HOST"`
	LegacyPort     int    `envconfig:"LENSRENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LENSRENT_DB_USER"`
	LegacyPassword string `envconfig:"LENSRENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"LENSRENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"LENSRENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LENSRENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LENSRENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LENSRENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LENSRENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LENSRENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LENSRENT_REDIS_ADDR"`
	Password     string        `envconfig:"LENSRENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"LENSRENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LENSRENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LENSRENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LENSRENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LENSRENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LENSRENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AvailabilityConfig tunes the read path. The cache is advisory and feeds
// display responses only; allocation always recomputes against live rows.
type AvailabilityConfig struct {
	CacheTTL     time.Duration `envconfig:"LENSRENT_AVAILABILITY_CACHE_TTL" default:"5m"`
	CacheEnabled bool          `envconfig:"LENSRENT_AVAILABILITY_CACHE_ENABLED" default:"true"`
	QueryTimeout time.Duration `envconfig:"LENSRENT_AVAILABILITY_QUERY_TIMEOUT" default:"800ms"`
}

type AllocationConfig struct {
	MaxRetries   int           `envconfig:"LENSRENT_ALLOCATION_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `envconfig:"LENSRENT_ALLOCATION_RETRY_BACKOFF" default:"50ms"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"LENSRENT_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"LENSRENT_CRON_LOCK_TTL" default:"65m"`
	PendingHoldTTL  time.Duration `envconfig:"LENSRENT_CRON_PENDING_HOLD_TTL" default:"24h"`
	OverdueGrace    time.Duration `envconfig:"LENSRENT_CRON_OVERDUE_GRACE" default:"6h"`
	MetricsAddr     string        `envconfig:"LENSRENT_CRON_METRICS_ADDR" default:":9464"`
	MetricsDisabled bool          `envconfig:"LENSRENT_CRON_METRICS_DISABLED" default:"false"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LENSRENT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LENSRENT_AUTO_MIGRATE" default:"false"`
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

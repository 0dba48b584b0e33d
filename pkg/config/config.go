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
	Shopify      ShopifyConfig
	Clicks       ClicksConfig
	Attribution  AttributionConfig
	Ingest       IngestConfig
	Fraud        FraudConfig
	Postbacks    PostbacksConfig
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
	Env          string `envconfig:"REFERMINT_APP_ENV" required:"true"`
	Port         string `envconfig:"REFERMINT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"REFERMINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"REFERMINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"REFERMINT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"REFERMINT_DB_DSN"`
	Driver string `envconfig:"REFERMINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REFERMINT_DB_HOST"`
	LegacyPort     int    `envconfig:"REFERMINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REFERMINT_DB_USER"`
	LegacyPassword string `envconfig:"REFERMINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"REFERMINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"REFERMINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REFERMINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REFERMINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REFERMINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REFERMINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"REFERMINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"REFERMINT_REDIS_ADDR"`
	Password     string        `envconfig:"REFERMINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"REFERMINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REFERMINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REFERMINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REFERMINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REFERMINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REFERMINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type ShopifyConfig struct {
	WebhookSecret string `envconfig:"REFERMINT_SHOPIFY_WEBHOOK_SECRET" required:"true"`
	// StoreDomain is the merchant's own storefront; postbacks targeting it are refused.
	StoreDomain string `envconfig:"REFERMINT_SHOPIFY_STORE_DOMAIN" required:"true"`
}

type ClicksConfig struct {
	DedupWindow   time.Duration `envconfig:"REFERMINT_CLICKS_DEDUP_WINDOW" default:"5m"`
	RetentionDays int           `envconfig:"REFERMINT_CLICKS_RETENTION_DAYS" default:"180"`
}

type AttributionConfig struct {
	DefaultWindowDays       int `envconfig:"REFERMINT_ATTRIBUTION_DEFAULT_WINDOW_DAYS" default:"90"`
	FingerprintLookbackDays int `envconfig:"REFERMINT_ATTRIBUTION_FINGERPRINT_LOOKBACK_DAYS" default:"90"`
}

type IngestConfig struct {
	// AllowZeroTotal keeps the source behavior of commissioning $0 test orders
	// even when the financial status is not paid.
	AllowZeroTotal bool          `envconfig:"REFERMINT_INGEST_ALLOW_ZERO_TOTAL" default:"true"`
	EventGuardTTL  time.Duration `envconfig:"REFERMINT_INGEST_EVENT_GUARD_TTL" default:"24h"`
}

type FraudConfig struct {
	SelfReferralThreshold int `envconfig:"REFERMINT_FRAUD_SELF_REFERRAL_THRESHOLD" default:"50"`
	ClickBurstThreshold   int `envconfig:"REFERMINT_FRAUD_CLICK_BURST_THRESHOLD" default:"100"`
	RefundRatePercent     int `envconfig:"REFERMINT_FRAUD_REFUND_RATE_PERCENT" default:"30"`
}

type PostbacksConfig struct {
	Timeout     time.Duration `envconfig:"REFERMINT_POSTBACK_TIMEOUT" default:"10s"`
	MaxAttempts int           `envconfig:"REFERMINT_POSTBACK_MAX_ATTEMPTS" default:"5"`
	RetryGap    time.Duration `envconfig:"REFERMINT_POSTBACK_RETRY_GAP" default:"1h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"REFERMINT_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"REFERMINT_CRON_LOCK_TTL" default:"2h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"REFERMINT_AUTO_MIGRATE" default:"false"`
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

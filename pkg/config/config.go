package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "DUKAPOS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Daraja       DarajaConfig
	Reconcile    ReconcileConfig
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
	if err := cfg.Daraja.ensureCredentials(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DUKAPOS_APP_ENV" required:"true"`
	Port         string `envconfig:"DUKAPOS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DUKAPOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DUKAPOS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DUKAPOS_DB_DSN"`
	Driver string `envconfig:"DUKAPOS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DUKAPOS_DB_HOST"`
	LegacyPort     int    `envconfig:"DUKAPOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DUKAPOS_DB_USER"`
	LegacyPassword string `envconfig:"DUKAPOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"DUKAPOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"DUKAPOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DUKAPOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DUKAPOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DUKAPOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DUKAPOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.LegacyHost == "" || d.LegacyUser == "" || d.LegacyName == "" {
		return fmt.Errorf("either DUKAPOS_DB_DSN or DUKAPOS_DB_HOST/USER/NAME must be set")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.LegacyUser),
		url.QueryEscape(d.LegacyPassword),
		d.LegacyHost,
		d.LegacyPort,
		d.LegacyName,
		d.LegacySSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"DUKAPOS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DUKAPOS_REDIS_ADDR"`
	Password     string        `envconfig:"DUKAPOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"DUKAPOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DUKAPOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DUKAPOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DUKAPOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DUKAPOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DUKAPOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DUKAPOS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DUKAPOS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DUKAPOS_JWT_EXPIRATION_MINUTES" default:"480"`
}

// DarajaConfig holds the M-Pesa gateway credentials. Every credential is
// required at startup; a missing value is a configuration error, never a
// runtime error.
type DarajaConfig struct {
	Environment    string        `envconfig:"DUKAPOS_DARAJA_ENV" required:"true"`
	ConsumerKey    string        `envconfig:"DUKAPOS_DARAJA_CONSUMER_KEY" required:"true"`
	ConsumerSecret string        `envconfig:"DUKAPOS_DARAJA_CONSUMER_SECRET" required:"true"`
	ShortCode      string        `envconfig:"DUKAPOS_DARAJA_SHORT_CODE" required:"true"`
	Passkey        string        `envconfig:"DUKAPOS_DARAJA_PASSKEY" required:"true"`
	CallbackURL    string        `envconfig:"DUKAPOS_DARAJA_CALLBACK_URL" required:"true"`
	Timeout        time.Duration `envconfig:"DUKAPOS_DARAJA_TIMEOUT" default:"30s"`
	TokenMargin    time.Duration `envconfig:"DUKAPOS_DARAJA_TOKEN_MARGIN" default:"60s"`
}

// envconfig's required tag only fires on unset variables; a set-but-empty
// credential has to be caught here.
func (d DarajaConfig) ensureCredentials() error {
	fields := map[string]string{
		"DUKAPOS_DARAJA_ENV":             d.Environment,
		"DUKAPOS_DARAJA_CONSUMER_KEY":    d.ConsumerKey,
		"DUKAPOS_DARAJA_CONSUMER_SECRET": d.ConsumerSecret,
		"DUKAPOS_DARAJA_SHORT_CODE":      d.ShortCode,
		"DUKAPOS_DARAJA_PASSKEY":         d.Passkey,
		"DUKAPOS_DARAJA_CALLBACK_URL":    d.CallbackURL,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// ReconcileConfig tunes the till-deposit matching heuristics.
type ReconcileConfig struct {
	Window          time.Duration `envconfig:"DUKAPOS_RECONCILE_WINDOW" default:"5m"`
	AmountTolerance string        `envconfig:"DUKAPOS_RECONCILE_TOLERANCE" default:"1"`
	ReceiptLookback time.Duration `envconfig:"DUKAPOS_RECEIPT_LOOKBACK" default:"24h"`
	MinReceiptLen   int           `envconfig:"DUKAPOS_MIN_RECEIPT_LEN" default:"8"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DUKAPOS_AUTO_MIGRATE" default:"false"`
}

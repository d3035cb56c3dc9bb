package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MULTIVEND"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MULTIVEND_DB_DSN"
	EnvDBHost = "MULTIVEND_DB_HOST"
	EnvDBUser = "MULTIVEND_DB_USER"
	EnvDBName = "MULTIVEND_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Checkout CheckoutConfig
	Oracles  OracleConfig
	Webhooks WebhookConfig
	Gateways GatewayConfig
	Outbox   OutboxConfig
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
	Env            string   `envconfig:"MULTIVEND_APP_ENV" required:"true"`
	Port           string   `envconfig:"MULTIVEND_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"MULTIVEND_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"MULTIVEND_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"MULTIVEND_CORS_ORIGINS" default:"http://localhost:3000"`
	Currency       string   `envconfig:"MULTIVEND_CURRENCY" default:"USD"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MULTIVEND_DB_DSN"`
	Driver string `envconfig:"MULTIVEND_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MULTIVEND_DB_HOST"`
	LegacyPort     int    `envconfig:"MULTIVEND_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MULTIVEND_DB_USER"`
	LegacyPassword string `envconfig:"MULTIVEND_DB_PASSWORD"`
	LegacyName     string `envconfig:"MULTIVEND_DB_NAME"`
	LegacySSLMode  string `envconfig:"MULTIVEND_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"MULTIVEND_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"MULTIVEND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MULTIVEND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MULTIVEND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MULTIVEND_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds row-lock waits inside domain transactions so a
	// blocked checkout surfaces as a retryable failure instead of hanging.
	LockTimeout time.Duration `envconfig:"MULTIVEND_DB_LOCK_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MULTIVEND_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MULTIVEND_REDIS_ADDR"`
	Password     string        `envconfig:"MULTIVEND_REDIS_PASSWORD"`
	DB           int           `envconfig:"MULTIVEND_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MULTIVEND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MULTIVEND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MULTIVEND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MULTIVEND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MULTIVEND_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CheckoutConfig struct {
	SessionTTL time.Duration `envconfig:"MULTIVEND_CHECKOUT_SESSION_TTL" default:"30m"`
}

type OracleConfig struct {
	TaxRatePercent      float64 `envconfig:"MULTIVEND_ORACLE_TAX_RATE_PERCENT" default:"8.5"`
	FlatShippingCents   int64   `envconfig:"MULTIVEND_ORACLE_FLAT_SHIPPING_CENTS" default:"500"`
	ExpressSurchargePct float64 `envconfig:"MULTIVEND_ORACLE_EXPRESS_SURCHARGE_PERCENT" default:"50"`
}

type WebhookConfig struct {
	// DedupTTL is the retention window for webhook event ids in the shared
	// dedup store.
	DedupTTL time.Duration `envconfig:"MULTIVEND_WEBHOOK_DEDUP_TTL" default:"720h"`
}

type GatewayConfig struct {
	RazorpayKeyID         string `envconfig:"MULTIVEND_RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `envconfig:"MULTIVEND_RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `envconfig:"MULTIVEND_RAZORPAY_WEBHOOK_SECRET"`
	RazorpayBaseURL       string `envconfig:"MULTIVEND_RAZORPAY_BASE_URL" default:"https://api.razorpay.com/v1"`

	PaystackSecretKey string `envconfig:"MULTIVEND_PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string `envconfig:"MULTIVEND_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"MULTIVEND_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"MULTIVEND_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"MULTIVEND_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Publisher      string `envconfig:"MULTIVEND_OUTBOX_PUBLISHER" default:"log"`
	GCPProjectID   string `envconfig:"MULTIVEND_GCP_PROJECT_ID"`
	Topic          string `envconfig:"MULTIVEND_OUTBOX_TOPIC" default:"marketplace-domain-events"`
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

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the envconfig prefix shared by every service binary.
const EnvPrefix = "armoryline"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Identity     IdentityConfig
	Escrow       EscrowConfig
	Reservation  ReservationConfig
	Compliance   ComplianceConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"ARMORYLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"ARMORYLINE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ARMORYLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ARMORYLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ARMORYLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ARMORYLINE_DB_DSN"`
	Driver string `envconfig:"ARMORYLINE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"ARMORYLINE_DB_HOST"`
	Port     int    `envconfig:"ARMORYLINE_DB_PORT" default:"5432"`
	User     string `envconfig:"ARMORYLINE_DB_USER"`
	Password string `envconfig:"ARMORYLINE_DB_PASSWORD"`
	Name     string `envconfig:"ARMORYLINE_DB_NAME"`
	SSLMode  string `envconfig:"ARMORYLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ARMORYLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ARMORYLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ARMORYLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARMORYLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Host == "" || db.User == "" || db.Name == "" {
		return fmt.Errorf("either ARMORYLINE_DB_DSN or ARMORYLINE_DB_HOST/USER/NAME are required")
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

type RedisConfig struct {
	URL          string        `envconfig:"ARMORYLINE_REDIS_URL"`
	Address      string        `envconfig:"ARMORYLINE_REDIS_ADDR"`
	Password     string        `envconfig:"ARMORYLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARMORYLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARMORYLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARMORYLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARMORYLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARMORYLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARMORYLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ARMORYLINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ARMORYLINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ARMORYLINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TokenTTL returns the session token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// IdentityConfig points at the external identity verifier service.
type IdentityConfig struct {
	BaseURL string        `envconfig:"ARMORYLINE_IDENTITY_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"ARMORYLINE_IDENTITY_TIMEOUT" default:"10s"`

	// Fixed-window cap on verification code sends per email.
	OTPMaxSends int           `envconfig:"ARMORYLINE_IDENTITY_OTP_MAX_SENDS" default:"5"`
	OTPWindow   time.Duration `envconfig:"ARMORYLINE_IDENTITY_OTP_WINDOW" default:"10m"`
}

// EscrowConfig points at the external payment/escrow processor.
type EscrowConfig struct {
	BaseURL string        `envconfig:"ARMORYLINE_ESCROW_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"ARMORYLINE_ESCROW_API_KEY"`
	Timeout time.Duration `envconfig:"ARMORYLINE_ESCROW_TIMEOUT" default:"15s"`
}

type ReservationConfig struct {
	TTL           time.Duration `envconfig:"ARMORYLINE_RESERVATION_TTL" default:"15m"`
	SweepInterval time.Duration `envconfig:"ARMORYLINE_RESERVATION_SWEEP_INTERVAL" default:"1m"`
}

type ComplianceConfig struct {
	RequiredKinds []string `envconfig:"ARMORYLINE_COMPLIANCE_REQUIRED_KINDS" default:"kyc,background_check,vendor_license"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ARMORYLINE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ARMORYLINE_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"ARMORYLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"ARMORYLINE_PUBSUB_DOMAIN_TOPIC" default:"al-domain-events"`
	ComplianceTopic    string `envconfig:"ARMORYLINE_PUBSUB_COMPLIANCE_TOPIC" default:"al-compliance-requests"`
	PayoutTopic        string `envconfig:"ARMORYLINE_PUBSUB_PAYOUT_TOPIC" default:"al-payout-requests"`
	DomainSubscription string `envconfig:"ARMORYLINE_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ARMORYLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ARMORYLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ARMORYLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

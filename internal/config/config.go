package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Backends selectable for the user-record store and the guest store.
const (
	StoreHTTP     = "http"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

const defaultJWTSecret = "dev-secret-change-me"

// Config holds all configuration for the cart session server.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"CART_HTTP_PORT" envDefault:"8003"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Store selection
	UserStore  string `env:"USER_STORE" envDefault:"http"`
	GuestStore string `env:"GUEST_STORE" envDefault:"redis"`

	// REST backend holding users and products
	BackendURL string `env:"BACKEND_URL" envDefault:"http://localhost:3001"`

	// Circuit breaker for the REST backend
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"15"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB            string `env:"STOREFRONT_DB_NAME" envDefault:"storefront_db"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int    `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int    `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`
	SlowQueryThresholdMs  int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cart sessions
	GuestCartTTLHours     int `env:"GUEST_CART_TTL_HOURS" envDefault:"168"`
	SessionIdleTTLMinutes int `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`
	SyncTimeoutSeconds    int `env:"SYNC_TIMEOUT_SECONDS" envDefault:"10"`
	CatalogTTLSeconds     int `env:"CATALOG_TTL_SECONDS" envDefault:"60"`

	// Session tokens
	JWTSecret      string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTExpiryHours int    `env:"JWT_EXPIRY_HOURS" envDefault:"24"`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}

	switch c.UserStore {
	case StoreHTTP:
		if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid BACKEND_URL: %q", c.BackendURL))
		}
	case StorePostgres:
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid postgres port: %d", c.PostgresPort))
		}
	default:
		errs = append(errs, fmt.Errorf("USER_STORE must be %q or %q, got %q", StoreHTTP, StorePostgres, c.UserStore))
	}

	if c.GuestStore != StoreRedis && c.GuestStore != StoreMemory {
		errs = append(errs, fmt.Errorf("GUEST_STORE must be %q or %q, got %q", StoreRedis, StoreMemory, c.GuestStore))
	}

	if c.GuestCartTTLHours < 1 {
		errs = append(errs, fmt.Errorf("GUEST_CART_TTL_HOURS must be positive: %d", c.GuestCartTTLHours))
	}
	if c.SessionIdleTTLMinutes < 1 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TTL_MINUTES must be positive: %d", c.SessionIdleTTLMinutes))
	}
	if c.SyncTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("SYNC_TIMEOUT_SECONDS must be positive: %d", c.SyncTimeoutSeconds))
	}
	if c.CatalogTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("CATALOG_TTL_SECONDS must not be negative: %d", c.CatalogTTLSeconds))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if c.Environment == "production" && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}

	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1]: %g", c.OTELSampleRate))
	}

	return errors.Join(errs...)
}

// GuestCartTTL is how long a guest cart survives without writes.
func (c *Config) GuestCartTTL() time.Duration {
	return time.Duration(c.GuestCartTTLHours) * time.Hour
}

// SessionIdleTTL is how long an unused cart session stays in memory.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

// SyncTimeout bounds each store call made by a session.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// CatalogTTL is how long the product catalog is cached.
func (c *Config) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

// JWTExpiry is the lifetime of issued session tokens.
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryHours) * time.Hour
}

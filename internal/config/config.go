package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/utafrali/storefront/internal/pricing"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/httpclient"
)

// Store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration for the storefront.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`

	// Cart storage
	StoreBackend   string `env:"STORE_BACKEND" envDefault:"redis"`
	CartKeyPrefix  string `env:"CART_KEY_PREFIX" envDefault:"storefront:"`
	CartTTL        int    `env:"CART_TTL_HOURS" envDefault:"168"`
	DefaultCartKey string `env:"DEFAULT_CART_KEY" envDefault:"so-cart"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns           int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns           int32 `env:"DB_MIN_CONNS" envDefault:"1"`
	SlowQueryThresholdMs int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Checkout and catalog server
	ServerURL string `env:"SERVER_URL" envDefault:"http://localhost:3000/"`

	// Pricing
	TaxRate                   float64 `env:"TAX_RATE" envDefault:"0.06"`
	ShippingBase              float64 `env:"SHIPPING_BASE" envDefault:"10"`
	ShippingPerAdditionalItem float64 `env:"SHIPPING_PER_ADDITIONAL_ITEM" envDefault:"2"`

	// Outbound HTTP
	HTTPClientTimeout    int `env:"HTTP_CLIENT_TIMEOUT_SECONDS" envDefault:"10"`
	HTTPClientMaxRetries int `env:"HTTP_CLIENT_MAX_RETRIES" envDefault:"2"`

	// OpenTelemetry
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StoreBackend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of redis, postgres, memory, got %q", c.StoreBackend)
	}
	if c.StoreBackend == BackendRedis {
		if _, _, err := splitAddr(c.RedisAddr); err != nil {
			return fmt.Errorf("invalid REDIS_ADDR %q: %w", c.RedisAddr, err)
		}
	}
	if c.StoreBackend == BackendPostgres && c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.DefaultCartKey == "" {
		return fmt.Errorf("DEFAULT_CART_KEY is required")
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_HOURS must not be negative, got %d", c.CartTTL)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.TaxRate < 0 || c.TaxRate > 1 {
		return fmt.Errorf("TAX_RATE must be between 0.0 and 1.0, got %f", c.TaxRate)
	}
	if c.ShippingBase < 0 || c.ShippingPerAdditionalItem < 0 {
		return fmt.Errorf("shipping rates must not be negative")
	}
	if c.HTTPClientTimeout < 1 {
		return fmt.Errorf("HTTP_CLIENT_TIMEOUT_SECONDS must be positive, got %d", c.HTTPClientTimeout)
	}
	if c.HTTPClientMaxRetries < 0 {
		return fmt.Errorf("HTTP_CLIENT_MAX_RETRIES must not be negative, got %d", c.HTTPClientMaxRetries)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1.0 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.TracingSampleRate)
	}
	if c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("invalid SERVER_URL %q: %w", c.ServerURL, err)
	}
	return nil
}

// Rates returns the pricing rates.
func (c *Config) Rates() pricing.Rates {
	return pricing.Rates{
		TaxRate:                   c.TaxRate,
		ShippingBase:              c.ShippingBase,
		ShippingPerAdditionalItem: c.ShippingPerAdditionalItem,
	}
}

// CartTTLDuration returns the cart expiry. Zero keeps carts forever.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// RedisConfig returns the Redis connection settings.
func (c *Config) RedisConfig() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	if host, port, err := splitAddr(c.RedisAddr); err == nil {
		cfg.Host, cfg.Port = host, port
	}
	cfg.Password = c.RedisPass
	cfg.DB = c.RedisDB
	return cfg
}

// PostgresConfig returns the PostgreSQL pool settings.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = c.PostgresHost
	cfg.Port = c.PostgresPort
	cfg.User = c.PostgresUser
	cfg.Password = c.PostgresPass
	cfg.DBName = c.PostgresDB
	cfg.SSLMode = c.PostgresSSL
	cfg.MaxConns = c.DBMaxConns
	cfg.MinConns = c.DBMinConns
	return &cfg
}

// HTTPClientConfig returns the outbound HTTP client settings.
func (c *Config) HTTPClientConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = time.Duration(c.HTTPClientTimeout) * time.Second
	cfg.MaxRetries = c.HTTPClientMaxRetries
	return cfg
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

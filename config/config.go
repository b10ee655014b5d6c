package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig  `envPrefix:"DB_"`
	Redis         RedisConfig     `envPrefix:"REDIS_"`
	Google        GoogleConfig    `envPrefix:"GOOGLE_"`
	JWT           JWTConfig       `envPrefix:"JWT_"`
	Client        ClientConfig    `envPrefix:"CLIENT_"`
	RateLimit     RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Cleanup       CleanupConfig   `envPrefix:"CLEANUP_"`
	Audit         AuditConfig     `envPrefix:"AUDIT_"`
	Observability ObservabilityConfig
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	Version       string `env:"APP_VERSION" envDefault:"1.0.0"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"3002"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
	// TrustProxy takes the client address from forwarding headers. Enable it
	// only behind a proxy that overwrites them.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string        // DATABASE_URL, read outside the DB_ prefix
	Host             string        `env:"HOST" envDefault:"localhost"`
	Port             int           `env:"PORT" envDefault:"5432"`
	User             string        `env:"USER" envDefault:"dev"`
	Password         string        `env:"PASSWORD"`
	Database         string        `env:"NAME" envDefault:"alumni"`
	SSLMode          string        `env:"SSLMODE" envDefault:"disable"`
	MaxOpenConns     int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns     int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime  time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate      bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig holds the shared attempt store connection settings
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"alumni:rl:"`
}

// GoogleConfig holds Google OAuth 2.0 client configuration
type GoogleConfig struct {
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	CallbackURL  string        `env:"CALLBACK_URL" envDefault:"http://localhost:3002/api/auth/google/callback"`
	AuthURL      string        `env:"AUTH_URL"`
	TokenURL     string        `env:"TOKEN_URL"`
	JWKSURL      string        `env:"JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
}

// JWTConfig holds token signing configuration
type JWTConfig struct {
	Secret          string        `env:"SECRET"`
	Issuer          string        `env:"ISSUER" envDefault:"tech-talk"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

// ClientConfig describes the single-page client the API redirects to
type ClientConfig struct {
	URL string `env:"URL" envDefault:"http://localhost:5173"`
}

// RateLimitConfig configures the auth endpoint limiter
type RateLimitConfig struct {
	Store       string        `env:"STORE" envDefault:"memory"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Window      time.Duration `env:"WINDOW" envDefault:"15m"`
}

// CleanupConfig configures the refresh token sweep
type CleanupConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`
}

// AuditConfig configures the auth event workers
type AuditConfig struct {
	Enabled     bool `env:"ENABLED" envDefault:"true"`
	BufferSize  int  `env:"BUFFER_SIZE" envDefault:"1000"`
	WorkerCount int  `env:"WORKERS" envDefault:"2"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"json"` // json or text
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// Rate limit store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load("server/.env")
	_ = godotenv.Load(".env")

	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load parses the environment into a Config without validating it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Database.ConnectionString = os.Getenv("DATABASE_URL")
	cfg.Client.URL = strings.TrimRight(cfg.Client.URL, "/")
	cfg.RateLimit.Store = strings.ToLower(cfg.RateLimit.Store)
	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}

	if c.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET of at least 32 bytes is required in production")
		}
		if !c.GoogleConfigured() {
			return fmt.Errorf("google client ID and secret are required in production")
		}
	}

	switch c.RateLimit.Store {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown rate limit store %q", c.RateLimit.Store)
	}
	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit attempts and window must be positive")
	}

	if c.Cleanup.Enabled && c.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// GoogleConfigured reports whether the Google OAuth client is usable
func (c *Config) GoogleConfigured() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// JWTConfigured reports whether a signing secret was provided
func (c *Config) JWTConfigured() bool {
	return c.JWT.Secret != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil && u.Host != "" {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

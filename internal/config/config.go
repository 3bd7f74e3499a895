// Package config loads application configuration from a YAML file and
// environment variables. Environment variables use the SIGNALFIELD_ prefix
// with "__" as the section separator, e.g. SIGNALFIELD_SERVER__PORT=8080.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SIGNALFIELD_"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Fallback FallbackConfig `koanf:"fallback"`
	Auth     AuthConfig     `koanf:"auth"`
	Admin    AdminConfig    `koanf:"admin"`
	Blob     BlobConfig     `koanf:"blob"`
	Geocode  GeocodeConfig  `koanf:"geocode"`
	Billing  BillingConfig  `koanf:"billing"`
	Notify   NotifyConfig   `koanf:"notify"`
	CORS     CORSConfig     `koanf:"cors"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds Postgres configuration. When Enabled is false the
// application runs entirely on the in-memory store.
type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

// RedisConfig holds the listing cache configuration.
type RedisConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// FallbackConfig holds in-memory fallback store configuration.
type FallbackConfig struct {
	Capacity int `koanf:"capacity"`
}

// AuthConfig holds anonymous token issuance configuration.
type AuthConfig struct {
	SecretKey     string        `koanf:"secret_key"`
	TokenDuration time.Duration `koanf:"token_duration"`
}

// AdminConfig holds moderation configuration. KeyHash is a bcrypt hash of
// the admin key; when empty the admin routes are hidden.
type AdminConfig struct {
	KeyHash string `koanf:"key_hash"`
}

// BlobConfig holds photo storage configuration.
type BlobConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Endpoint  string        `koanf:"endpoint"`
	Bucket    string        `koanf:"bucket"`
	APIKey    string        `koanf:"api_key"`
	PublicURL string        `koanf:"public_url"`
	Timeout   time.Duration `koanf:"timeout"`
}

// GeocodeConfig holds address resolution configuration.
type GeocodeConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Endpoint  string        `koanf:"endpoint"`
	UserAgent string        `koanf:"user_agent"`
	RateLimit float64       `koanf:"rate_limit"`
	Timeout   time.Duration `koanf:"timeout"`
}

// BillingConfig holds payment webhook configuration. Billing requires the
// durable database; it is ignored when the database is disabled.
type BillingConfig struct {
	Enabled       bool   `koanf:"enabled"`
	WebhookSecret string `koanf:"webhook_secret"`
}

// NotifyConfig holds websocket change feed configuration.
type NotifyConfig struct {
	Enabled bool `koanf:"enabled"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration defaults. Load layers file and
// environment values on top of these.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			CacheTTL: 3 * time.Second,
		},
		Fallback: FallbackConfig{
			Capacity: 100,
		},
		Auth: AuthConfig{
			TokenDuration: 24 * time.Hour,
		},
		Blob: BlobConfig{
			Timeout: 10 * time.Second,
		},
		Geocode: GeocodeConfig{
			Endpoint:  "https://nominatim.openstreetmap.org",
			RateLimit: 1,
			Timeout:   10 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the given YAML file (optional) and the
// environment, layered over defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	// SIGNALFIELD_SERVER__METRICS_PORT -> server.metrics_port
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.Enabled && c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required when database is enabled"))
	}
	if c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("auth.secret_key is required"))
	}
	if c.Billing.Enabled && c.Billing.WebhookSecret == "" {
		errs = append(errs, errors.New("billing.webhook_secret is required when billing is enabled"))
	}
	if c.Blob.Enabled {
		if c.Blob.Endpoint == "" {
			errs = append(errs, errors.New("blob.endpoint is required when blob storage is enabled"))
		}
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob.bucket is required when blob storage is enabled"))
		}
	}

	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultFile is the optional YAML configuration file read from the working directory.
const DefaultFile = "config.yaml"

// Config holds all configuration for ekaya-orgchart.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL sink)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional staging and session backend)
	Redis RedisConfig `yaml:"redis"`

	Session SessionConfig `yaml:"session"`
	Staging StagingConfig `yaml:"staging"`
	Upload  UploadConfig  `yaml:"upload"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"orgchart"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"orgchart"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection configuration. An empty host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SessionConfig controls the browser session that carries ingestion state.
type SessionConfig struct {
	// Secret signs the session cookie. Required outside local development.
	Secret     string `yaml:"-" env:"SESSION_SECRET"`
	TTLMinutes int    `yaml:"ttl_minutes" env:"SESSION_TTL_MINUTES" env-default:"60"`
}

// StagingConfig controls where parsed uploads wait for their column mapping.
type StagingConfig struct {
	Backend              string `yaml:"backend" env:"STAGING_BACKEND" env-default:"disk"`
	Dir                  string `yaml:"dir" env:"STAGING_DIR" env-default:"tmp"`
	TTLSeconds           int    `yaml:"ttl_seconds" env:"STAGING_TTL_SECONDS" env-default:"360"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds" env:"STAGING_SWEEP_INTERVAL_SECONDS" env-default:"60"`
	// EncryptionKey seals staged datasets at rest when set. A base64 32-byte
	// key or any passphrase.
	EncryptionKey string `yaml:"-" env:"STAGING_ENCRYPTION_KEY"` // Secret - not in YAML
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	// MaxBytes rejects uploads strictly larger than this many bytes.
	MaxBytes int64 `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES" env-default:"16777216"`
	// UnzipSizeLimit caps the decompressed size of a workbook.
	UnzipSizeLimit int64 `yaml:"unzip_size_limit" env:"UPLOAD_UNZIP_SIZE_LIMIT" env-default:"268435456"`
}

const (
	StagingBackendDisk  = "disk"
	StagingBackendRedis = "redis"
)

// localSessionSecret is only accepted when Env is local or test.
const localSessionSecret = "local-development-session-secret"

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml is absent only the environment is read.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultFile, version)
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks cross-field rules and fills the local session secret.
func (c *Config) validate() error {
	if c.Session.Secret == "" {
		if !c.IsLocal() {
			return fmt.Errorf("SESSION_SECRET is required in environment %q", c.Env)
		}
		c.Session.Secret = localSessionSecret
	}

	switch c.Staging.Backend {
	case StagingBackendDisk:
		if c.Staging.Dir == "" {
			return fmt.Errorf("staging.dir is required for the disk backend")
		}
	case StagingBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("staging backend redis requires redis.host")
		}
	default:
		return fmt.Errorf("unknown staging backend %q", c.Staging.Backend)
	}

	if c.Staging.TTLSeconds <= 0 {
		return fmt.Errorf("staging.ttl_seconds must be positive")
	}
	if c.Staging.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("staging.sweep_interval_seconds must be positive")
	}
	if c.Session.TTLMinutes <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	return nil
}

// IsLocal reports whether the server runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test" || c.Env == "dev"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// SecureCookies reports whether session cookies should be HTTPS-only.
func (c *Config) SecureCookies() bool {
	return !c.IsLocal()
}

// SessionTTL returns the session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

// StagingTTL returns how long a staged upload is kept.
func (c *Config) StagingTTL() time.Duration {
	return time.Duration(c.Staging.TTLSeconds) * time.Second
}

// SweepInterval returns the period of the background sweeper.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Staging.SweepIntervalSeconds) * time.Second
}

// Enabled reports whether Redis is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Package config manages environment variables.
//
// It reads variables from the process environment (and a `.env` file when
// one exists), loads them into structured Go types and validates them so the
// rest of the application can rely on them.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Fill defaults for optional blocks (sqlite, retry, github, observability).
//   - Validate required values so the app fails fast on bad/missing config.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	// Side-effect import: loads `.env` into the process env before we read it.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

/*
	Env vars are read with the DBKIT_ prefix. The prefix is removed, keys are
	lowercased and a double underscore marks nesting:

	  DBKIT_DATABASE__HOST       -> database.host      -> Config.Database.Host
	  DBKIT_RETRY__MAX_ATTEMPTS  -> retry.max_attempts -> Config.Retry.MaxAttempts
*/

// EnvPrefix is the prefix every configuration variable carries.
const EnvPrefix = "DBKIT_"

// Config is the root configuration object for the application.
//
// Pointer blocks are optional. Missing ones get defaults in Load.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	SQLite        *SQLiteConfig        `koanf:"sqlite"`
	Redis         *RedisConfig         `koanf:"redis"`
	Retry         *RetryConfig         `koanf:"retry"`
	GitHub        *GitHubConfig        `koanf:"github"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// DatabaseConfig contains PostgreSQL connection parameters and pool tuning.
//
// ConnMaxLifetime and ConnMaxIdleTime are seconds.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required,min=1,max=65535"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"min=0"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"min=0"`
}

// SQLiteConfig points at the embedded SQLite database used by the
// single-file exercises. ":memory:" keeps everything in process.
type SQLiteConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// RedisConfig contains Redis connection details.
// Address is "host:port". Redis is optional; an empty address disables it.
type RedisConfig struct {
	Address string `koanf:"address" validate:"required,hostname_port"`
}

// RetryConfig is the default retry policy for database and HTTP calls.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1"`
	Delay       time.Duration `koanf:"delay" validate:"min=0"`
}

// GitHubConfig configures the GitHub organization client.
type GitHubConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// DSN builds the postgres URL for pgx.
//
// The password is URL-escaped and host:port is joined with net.JoinHostPort,
// so IPv6 hosts and special characters don't break the URL.
func (d DatabaseConfig) DSN() string {
	hostPort := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))

	userInfo := url.QueryEscape(d.User)
	if d.Password != "" {
		userInfo += ":" + url.QueryEscape(d.Password)
	}

	return fmt.Sprintf("postgres://%s@%s/%s?sslmode=%s",
		userInfo,
		hostPort,
		d.Name,
		d.SSLMode,
	)
}

// applyDefaults fills zero values for a local setup.
func (c *Config) applyDefaults() {
	if c.Primary.Env == "" {
		c.Primary.Env = "local"
	}

	db := &c.Database
	if db.Host == "" {
		db.Host = "localhost"
	}
	if db.Port == 0 {
		db.Port = 5432
	}
	if db.User == "" {
		db.User = "postgres"
	}
	if db.Name == "" {
		db.Name = "dbkit"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = 5
	}

	if c.SQLite == nil {
		c.SQLite = &SQLiteConfig{Path: "users.db"}
	}
	if c.Retry == nil {
		// Three attempts, two seconds apart.
		c.Retry = &RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second}
	}
	if c.GitHub == nil {
		c.GitHub = &GitHubConfig{BaseURL: "https://api.github.com", Timeout: 10 * time.Second}
	}
	if c.Redis != nil && c.Redis.Address == "" {
		c.Redis = nil
	}

	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}
	// Service name is fixed so logs and traces are always grouped the same way.
	c.Observability.ServiceName = "dbkit"
	c.Observability.Environment = c.Primary.Env
}

// Load reads configuration from the environment, applies defaults and
// validates the result.
//
// Unlike a main package it never exits the process: every problem is
// returned so the caller decides how to report it.
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	mainConfig.applyDefaults()

	if err := validator.New().Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return mainConfig, nil
}

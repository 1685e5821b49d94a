// Package config handles loading application configuration. Values come from
// built-in defaults, then an optional TOML file named by SITEWALK_CONFIG, then
// environment variables, each layer overriding the one before. All config is
// centralized here so no other package reads env vars directly.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Passed to other packages via
// dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `toml:"env"`

	// Port is the HTTP listen port (default: 8080).
	Port int `toml:"port"`

	// BaseURL is the public-facing URL used for links and CORS.
	BaseURL string `toml:"base_url"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`

	// MigrationsPath is the directory holding the SQL migration files.
	MigrationsPath string `toml:"migrations_path"`

	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Upload   UploadConfig   `toml:"upload"`
	Markers  MarkerConfig   `toml:"markers"`
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so container
// orchestrators can manage each independently. If DATABASE_URL is set, it
// takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host     string `toml:"host"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`

	// URL bypasses the individual fields when set.
	URL string `toml:"url"`

	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// DSN returns the go-sql-driver/mysql connection string. If a URL was
// configured it is returned as-is. Otherwise the DSN is built from the
// individual fields using the driver's Config.FormatDSN() to safely handle
// special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `toml:"url"`
}

// UploadConfig holds floorplan upload settings.
type UploadConfig struct {
	// MaxSize is the maximum upload file size in bytes.
	MaxSize int64 `toml:"max_size"`

	// RateLimit is the number of uploads allowed per IP per minute.
	RateLimit int `toml:"rate_limit"`
}

// MarkerConfig holds marker list caching settings.
type MarkerConfig struct {
	// CacheTTL bounds how long a cached marker list may be served. Mutations
	// invalidate the cache immediately; the TTL only limits stale reads after
	// out-of-band database edits.
	CacheTTL time.Duration `toml:"cache_ttl"`
}

// defaults returns the development configuration.
func defaults() *Config {
	return &Config{
		Env:            "development",
		Port:           8080,
		BaseURL:        "http://localhost:8080",
		LogLevel:       "debug",
		MigrationsPath: "db/migrations",
		Database: DatabaseConfig{
			Host:            "localhost:3306",
			User:            "sitewalk",
			Password:        "sitewalk",
			Name:            "sitewalk",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Upload: UploadConfig{
			MaxSize:   50 * 1024 * 1024, // 50MB, architectural PDFs are large.
			RateLimit: 20,
		},
		Markers: MarkerConfig{
			CacheTTL: 10 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file and
// the environment. Returns an error if the file cannot be decoded or a
// production-only requirement is not met.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("SITEWALK_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.Upload.MaxSize <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if cfg.Upload.RateLimit <= 0 {
		return nil, fmt.Errorf("UPLOAD_RATE_LIMIT must be positive")
	}

	// Production must not silently talk to the development database.
	if cfg.IsProduction() && cfg.Database.URL == "" && cfg.Database.Password == "sitewalk" {
		return nil, fmt.Errorf("DB_PASSWORD must be set in production")
	}

	return cfg, nil
}

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg *Config) {
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.BaseURL = getEnv("BASE_URL", cfg.BaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.MigrationsPath)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)

	cfg.Upload.MaxSize = getEnvInt64("MAX_UPLOAD_SIZE", cfg.Upload.MaxSize)
	cfg.Upload.RateLimit = getEnvInt("UPLOAD_RATE_LIMIT", cfg.Upload.RateLimit)

	cfg.Markers.CacheTTL = getEnvDuration("MARKER_CACHE_TTL", cfg.Markers.CacheTTL)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" and its common variants.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64 reads an int64 env var or returns the default.
func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "10m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Package config loads and validates the platform configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the LPG_ prefix (e.g., LPG_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/leadpilot/governance/internal/audit"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Audit      AuditConfig      `mapstructure:"audit"`
	AITools    AIToolsConfig    `mapstructure:"ai_tools"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the Redis connection used for rate limiting
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds perimeter authentication configuration. The platform
// resolves caller identity here; identities themselves are issued externally.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens. Required; minimum 32 bytes.
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
	// ServiceKeys are bcrypt-hashed machine credentials mapped to user ids
	ServiceKeys []ServiceKeyConfig `mapstructure:"service_keys"`
}

// ServiceKeyConfig maps one stored service key hash to the user id it acts as
type ServiceKeyConfig struct {
	UserID string `mapstructure:"user_id"`
	Hash   string `mapstructure:"hash"`
}

// GovernanceConfig holds governance engine tunables
type GovernanceConfig struct {
	// PermissionCacheTTL bounds staleness of cached permission sets
	PermissionCacheTTL time.Duration `mapstructure:"permission_cache_ttl"`
}

// WorkflowConfig holds workflow engine tunables
type WorkflowConfig struct {
	// MaxDelay caps delay steps regardless of their configured duration
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	CORS         CORSConfig         `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// Shippers configures secondary audit destinations (file, webhook).
	// The database trail is always on; shipping is additive.
	Shippers []audit.ShipperConfig `mapstructure:"shippers"`
}

// AIToolsConfig holds the AI-inference collaborator endpoint used by
// workflow ai_tool steps
type AIToolsConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested
// structs during Unmarshal. viper.BindEnv only errors when called with zero
// keys; since every key here is a non-empty hardcoded string, any error
// indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.jwt_secret",
		"auth.jwt_issuer",

		// Governance / workflow tunables
		"governance.permission_cache_ttl",
		"workflow.max_delay",

		// Security
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// AI tools
		"ai_tools.endpoint",
		"ai_tools.api_key",
		"ai_tools.call_timeout",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg, _, err := load(configPath)
	return cfg, err
}

// LoadAndWatch loads configuration and invokes onChange with a freshly
// parsed Config whenever the file changes on disk. Reload failures are
// logged and the previous configuration stays in effect.
func LoadAndWatch(configPath string, onChange func(*Config)) (*Config, error) {
	cfg, v, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if onChange != nil && v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				slog.Warn("Config reload failed to parse, keeping previous config", "file", e.Name, "error", err)
				return
			}
			next.Database.Password = expandEnv(next.Database.Password)
			next.Auth.JWTSecret = expandEnv(next.Auth.JWTSecret)
			if err := next.Validate(); err != nil {
				slog.Warn("Config reload failed validation, keeping previous config", "file", e.Name, "error", err)
				return
			}
			slog.Info("Configuration reloaded", "file", e.Name)
			onChange(&next)
		})
		v.WatchConfig()
	}
	return cfg, nil
}

func load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/leadpilot")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("LPG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Auth.JWTSecret = expandEnv(cfg.Auth.JWTSecret)
	cfg.AITools.APIKey = expandEnv(cfg.AITools.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, v, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "leadpilot_governance")
	v.SetDefault("database.user", "governance")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.jwt_issuer", "leadpilot")

	// Governance / workflow defaults
	v.SetDefault("governance.permission_cache_ttl", "15m")
	v.SetDefault("workflow.max_delay", "5m")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// AI tool defaults
	v.SetDefault("ai_tools.call_timeout", "120s")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	for i, key := range c.Auth.ServiceKeys {
		if key.UserID == "" || key.Hash == "" {
			return fmt.Errorf("auth.service_keys[%d] requires both user_id and hash", i)
		}
	}

	if c.Security.RateLimiting.Enabled && c.Security.RateLimiting.RequestsPerMinute < 1 {
		return fmt.Errorf("security.rate_limiting.requests_per_minute must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

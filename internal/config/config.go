package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" yaml:"go_env" default:"development"`

	// Channel Ports
	HTTPPort int `env:"HTTP_PORT" yaml:"http_port" default:"8080"`
	TCPPort  int `env:"TCP_PORT" yaml:"tcp_port" default:"8081"`

	// Remote API used by the users and llm handlers
	APIBaseURL string `env:"API_BASE_URL" yaml:"api_base_url" default:"http://localhost:3000"`

	// Key/value persistence
	StoreBackend  string `env:"STORE_BACKEND" yaml:"store_backend" default:"memory"`
	RedisURL      string `env:"REDIS_URL" yaml:"redis_url" default:"redis://localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" yaml:"redis_password"`
	DatabaseURL   string `env:"DATABASE_URL" yaml:"database_url"`

	// Sender identity. Empty disables token checks.
	SenderSecret string `env:"SENDER_SECRET" yaml:"sender_secret"`

	// Deadlines
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout" default:"30s"`
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" yaml:"handler_timeout" default:"30s"`

	// Per-sender rate limiting. Zero disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" yaml:"rate_limit_rps" default:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" yaml:"rate_limit_burst" default:"20"`

	// Development
	LogLevel       string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" yaml:"log_format" default:"json"`
	SeedDemoTasks  bool   `env:"SEED_DEMO_TASKS" yaml:"seed_demo_tasks" default:"true"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		GoEnv:          "development",
		HTTPPort:       8080,
		TCPPort:        8081,
		APIBaseURL:     "http://localhost:3000",
		StoreBackend:   StoreMemory,
		RedisURL:       "redis://localhost:6379",
		RequestTimeout: 30 * time.Second,
		HandlerTimeout: 30 * time.Second,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
		LogLevel:       "info",
		LogFormat:      "json",
		SeedDemoTasks:  true,
		MetricsEnabled: true,
	}
}

// LoadConfig loads configuration from defaults, the optional CONFIG_FILE
// YAML overlay and environment variables, in that order.
func LoadConfig() (*Config, error) {
	// .env is optional; system env vars still apply without it
	_ = godotenv.Load(".env")

	base := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(&base, path); err != nil {
			return nil, err
		}
	}
	return loadEnv(base)
}

func loadYAML(target *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func loadEnv(base Config) (*Config, error) {
	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", base.GoEnv); err != nil {
		return nil, err
	}

	// Ports
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", base.HTTPPort); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.TCPPort, "TCP_PORT", base.TCPPort); err != nil {
		return nil, err
	}

	// Remote API
	if err := loadEnvString(&config.APIBaseURL, "API_BASE_URL", base.APIBaseURL); err != nil {
		return nil, err
	}

	// Storage
	if err := loadEnvString(&config.StoreBackend, "STORE_BACKEND", base.StoreBackend); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", base.RedisURL); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", base.RedisPassword); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", base.DatabaseURL); err != nil {
		return nil, err
	}

	// Sender identity
	if err := loadEnvString(&config.SenderSecret, "SENDER_SECRET", base.SenderSecret); err != nil {
		return nil, err
	}

	// Deadlines
	if err := loadEnvDuration(&config.RequestTimeout, "REQUEST_TIMEOUT", base.RequestTimeout); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.HandlerTimeout, "HANDLER_TIMEOUT", base.HandlerTimeout); err != nil {
		return nil, err
	}

	// Rate limiting
	if err := loadEnvFloat(&config.RateLimitRPS, "RATE_LIMIT_RPS", base.RateLimitRPS); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.RateLimitBurst, "RATE_LIMIT_BURST", base.RateLimitBurst); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", base.LogLevel); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", base.LogFormat); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.SeedDemoTasks, "SEED_DEMO_TASKS", base.SeedDemoTasks); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.MetricsEnabled, "METRICS_ENABLED", base.MetricsEnabled); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}
	if c.TCPPort < 1 || c.TCPPort > 65535 {
		errors = append(errors, "TCP_PORT must be between 1 and 65535")
	}
	if c.HTTPPort == c.TCPPort {
		errors = append(errors, "HTTP_PORT and TCP_PORT must differ")
	}

	validBackends := []string{StoreMemory, StoreRedis, StorePostgres}
	if !slices.Contains(validBackends, c.StoreBackend) {
		errors = append(errors, fmt.Sprintf("STORE_BACKEND must be one of: %s", strings.Join(validBackends, ", ")))
	}
	if c.StoreBackend == StorePostgres && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required for the postgres store")
	}

	if c.RequestTimeout <= 0 {
		errors = append(errors, "REQUEST_TIMEOUT must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errors = append(errors, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	// HS256 keys shorter than 32 bytes are rejected
	if c.SenderSecret != "" && len(c.SenderSecret) < 32 {
		errors = append(errors, "SENDER_SECRET should be at least 32 characters long")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// AuthEnabled reports whether channels must verify sender tokens.
func (c *Config) AuthEnabled() bool {
	return c.SenderSecret != ""
}

// HTTPAddr is the listen address of the HTTP gateway.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// TCPAddr is the listen address of the TCP channel.
func (c *Config) TCPAddr() string {
	return fmt.Sprintf(":%d", c.TCPPort)
}

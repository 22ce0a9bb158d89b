package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "GO_ENV", "HTTP_PORT", "TCP_PORT", "API_BASE_URL", "STORE_BACKEND",
	"REDIS_URL", "REDIS_PASSWORD", "DATABASE_URL", "SENDER_SECRET", "REQUEST_TIMEOUT",
	"HANDLER_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FORMAT",
	"SEED_DEMO_TASKS", "METRICS_ENABLED",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 8081, cfg.TCPPort)
	assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.True(t, cfg.SeedDemoTasks)
	assert.False(t, cfg.AuthEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TCP_PORT", "9001")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("SEED_DEMO_TASKS", "false")
	t.Setenv("STORE_BACKEND", "redis")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.TCPPort)
	assert.Equal(t, ":9001", cfg.TCPAddr())
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.False(t, cfg.SeedDemoTasks)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"HTTP_PORT", "eighty"},
		{"REQUEST_TIMEOUT", "soon"},
		{"SEED_DEMO_TASKS", "maybe"},
		{"RATE_LIMIT_RPS", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestLoadConfig_YAMLOverlayUnderEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sidebridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_port: 9090
api_base_url: https://api.example.com
store_backend: postgres
database_url: postgres://localhost/sidebridge
handler_timeout: 2s
log_format: text
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9191")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.HTTPPort)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, 2*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port range", func(c *Config) { c.HTTPPort = 0 }, "HTTP_PORT must be between"},
		{"port clash", func(c *Config) { c.TCPPort = c.HTTPPort }, "must differ"},
		{"backend", func(c *Config) { c.StoreBackend = "sqlite" }, "STORE_BACKEND"},
		{"postgres url", func(c *Config) { c.StoreBackend = StorePostgres }, "DATABASE_URL"},
		{"short secret", func(c *Config) { c.SenderSecret = "short" }, "SENDER_SECRET"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "LOG_LEVEL"},
		{"timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("message_failed", "type", "TASKS_CREATE")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "message_failed", line["msg"])
	assert.Equal(t, "TASKS_CREATE", line["type"])
}

package main

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "GO_ENV", "HTTP_PORT", "TCP_PORT", "STORE_BACKEND", "DATABASE_URL",
	"SENDER_SECRET", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_RejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"short secret", "SENDER_SECRET", "short", "SENDER_SECRET should be at least 32 characters"},
		{"negative rate", "RATE_LIMIT_RPS", "-1", "RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative"},
		{"bogus log level", "LOG_LEVEL", "loud", "LOG_LEVEL must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := loadConfig()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadConfig_ProductionUsesReleaseMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("GO_ENV", "production")
	previous := gin.Mode()
	t.Cleanup(func() { gin.SetMode(previous) })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}

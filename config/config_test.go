package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "billing.db", cfg.DBPath)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 120, cfg.RateLimit)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsJSONLogging())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("BILLING_ADDR", ":9090")
	t.Setenv("BILLING_DB_PATH", "/tmp/ledger.db")
	t.Setenv("BILLING_LOG_FORMAT", "json")
	t.Setenv("BILLING_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("BILLING_CORS_ORIGINS", "https://app.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/tmp/ledger.db", cfg.DBPath)
	assert.True(t, cfg.IsJSONLogging())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown log format", "BILLING_LOG_FORMAT", "xml"},
		{"negative rate limit", "BILLING_RATE_LIMIT", "-1"},
		{"unparsable duration", "BILLING_READ_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ZeroRateLimitDisablesLimiting(t *testing.T) {
	t.Setenv("BILLING_RATE_LIMIT", "0")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.RateLimit)
}

func TestIsJSONLogging_NilConfig(t *testing.T) {
	var cfg *config.Config
	assert.False(t, cfg.IsJSONLogging())
}

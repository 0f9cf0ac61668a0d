package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CSRF_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.SessionIdleTimeout)
	assert.Equal(t, []string{"/sensitive", "/settings"}, cfg.SensitivePathMarkers)
	assert.Equal(t, 24*time.Hour, cfg.VerificationTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CSRF_SECRET", "s3cret")
	t.Setenv("SESSION_IDLE_TIMEOUT", "15m")
	t.Setenv("SENSITIVE_PATH_MARKERS", " /billing , ,/settings")
	t.Setenv("PUBLIC_BASE_URL", "https://civic.example/")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, []string{"/billing", "/settings"}, cfg.SensitivePathMarkers)
	assert.Equal(t, "https://civic.example", cfg.PublicBaseURL)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRequiresCSRFSecret(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestRefreshTestMode(t *testing.T) {
	t.Cleanup(func() { RefreshTestMode() })

	t.Setenv(testModeEnv, "true")
	assert.True(t, RefreshTestMode())
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

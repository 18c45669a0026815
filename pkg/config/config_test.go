package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PLATFORM_FACTORY_AUTH_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 30, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 60, cfg.RateLimit.WindowSec)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.LLMTimeout())
	assert.Equal(t, "memory", cfg.Builds.Store)
	assert.Equal(t, 120*time.Minute, cfg.Builds.TTL())
	assert.Equal(t, "session", cfg.Auth.CookieName)
	assert.False(t, cfg.SQLite.Enabled)
	assert.Equal(t, 30, cfg.SQLite.RetentionDays)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("PLATFORM_FACTORY_AUTH_JWTSECRET", "s3cret")
	t.Setenv("PLATFORM_FACTORY_LLM_PROVIDER", "gemini")
	t.Setenv("PLATFORM_FACTORY_RATELIMIT_MAXREQUESTS", "5")
	t.Setenv("PLATFORM_FACTORY_BUILDS_STORE", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
	assert.Equal(t, "redis", cfg.Builds.Store)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("PLATFORM_FACTORY_AUTH_DISABLED", "false")
	t.Setenv("PLATFORM_FACTORY_AUTH_JWTSECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwtSecret")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("PLATFORM_FACTORY_AUTH_DISABLED", "true")
	t.Setenv("PLATFORM_FACTORY_LLM_PROVIDER", "llama")

	_, err := Load()
	require.Error(t, err)
}

package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetConfigFromEnvVarsAppliesDefaults(t *testing.T) {
	cfg := &Config{}

	require.NoError(t, SetConfigFromEnvVars(cfg))

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(30), cfg.PublishRateLimit)
}

func TestSetConfigFromEnvVarsReadsEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":3000")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("PUBLISH_RATE_LIMIT", "5")

	cfg := &Config{}

	require.NoError(t, SetConfigFromEnvVars(cfg))

	assert.Equal(t, ":3000", cfg.ServerAddress)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(5), cfg.PublishRateLimit)
}

func TestSetConfigFromEnvVarsRejectsMalformedValue(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg := &Config{}

	require.Error(t, SetConfigFromEnvVars(cfg))
}

func TestValidateRequiresDBAndSigningKey(t *testing.T) {
	cfg := &Config{}
	require.ErrorIs(t, cfg.Validate(), ErrMisconfiguration)

	cfg.PrimaryDBConnection = "postgres://localhost/cratery"
	require.ErrorIs(t, cfg.Validate(), ErrMisconfiguration)

	cfg.SessionSigningKey = "secret"
	require.NoError(t, cfg.Validate())
}

func TestUpstreamAllowListParsing(t *testing.T) {
	cfg := &Config{UpstreamAllowList: "serde, tokio ,,log"}

	assert.Equal(t, []string{"serde", "tokio", "log"}, cfg.upstreamAllowList())
	assert.Empty(t, (&Config{}).upstreamAllowList())
}

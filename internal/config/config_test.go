package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "CATALOG_PATH",
		"AI_ENABLED", "AI_DELAY_MS", "HUMAN_ONLY_MAX_WAIT_MS",
		"TURN_TIME_LIMIT_SECONDS", "MAX_CONNECTIONS",
	} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.AIEnabled)
	assert.Equal(t, 60, cfg.TurnTimeLimitSeconds)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("AI_ENABLED", "false")
	defer os.Unsetenv("PORT")
	defer os.Unsetenv("AI_ENABLED")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.AIEnabled)
}

func TestValidate_RejectsNonPositiveTurnTimeLimit(t *testing.T) {
	cfg := &Config{TurnTimeLimitSeconds: 0}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeDelays(t *testing.T) {
	cfg := &Config{TurnTimeLimitSeconds: 60, AIDelayMs: -1}
	assert.Error(t, cfg.Validate())

	cfg2 := &Config{TurnTimeLimitSeconds: 60, HumanOnlyMaxWaitMs: -1}
	assert.Error(t, cfg2.Validate())
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "skip-missing", cfg.Skills.DependencyPolicy)
	assert.Equal(t, "ddl", cfg.Skills.DDLPolicy)
	assert.Equal(t, "silent", cfg.EventBus.Mode)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.False(t, cfg.Metrics.Enabled)
	assert.NotNil(t, cfg.Skills.Config)
	assert.NoError(t, cfg.Validate())
}

func TestConfigDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout())
	assert.Equal(t, 30*time.Second, cfg.StatementTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce())
	assert.Equal(t, time.Duration(0), cfg.CacheTTL())
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Skills.DependencyPolicy = "strict"
		cfg.Skills.DDLPolicy = "write"
		cfg.EventBus.Mode = "collect"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Skills.DependencyPolicy = "lenient"
		cfg.Skills.DDLPolicy = "never"
		cfg.EventBus.Mode = "loud"
		cfg.Logging.Level = "verbose"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dependency policy")
		assert.Contains(t, err.Error(), "ddl_policy")
		assert.Contains(t, err.Error(), "event bus mode")
		assert.Contains(t, err.Error(), "log level")
	})

	t.Run("metrics address checked only when enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metrics.Addr = "nope"
		assert.NoError(t, cfg.Validate())

		cfg.Metrics.Enabled = true
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	assert.Contains(t, cfg.String(), `"dependency_policy": "skip-missing"`)
}

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	t.Run("log level", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			assert.NoError(t, v.ValidateLogLevel(level), level)
		}
		assert.Error(t, v.ValidateLogLevel("trace"))
	})

	t.Run("dependency policy", func(t *testing.T) {
		assert.NoError(t, v.ValidateDependencyPolicy("strict"))
		assert.NoError(t, v.ValidateDependencyPolicy("skip-missing"))
		assert.NoError(t, v.ValidateDependencyPolicy(""))
		assert.Error(t, v.ValidateDependencyPolicy("sometimes"))
	})

	t.Run("ddl policy", func(t *testing.T) {
		assert.NoError(t, v.ValidateDDLPolicy("ddl"))
		assert.NoError(t, v.ValidateDDLPolicy("write"))
		assert.Error(t, v.ValidateDDLPolicy("read"))
	})

	t.Run("bus mode", func(t *testing.T) {
		assert.NoError(t, v.ValidateBusMode("fail-fast"))
		assert.Error(t, v.ValidateBusMode("panic"))
	})

	t.Run("addr", func(t *testing.T) {
		assert.NoError(t, v.ValidateAddr("127.0.0.1:9464"))
		assert.NoError(t, v.ValidateAddr(":9464"))
		assert.Error(t, v.ValidateAddr("localhost"))
	})
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	assert.Empty(t, v.ValidateConfig(cfg))

	cfg.Cache.Size = -1
	cfg.Database.StatementTimeoutMs = -5
	cfg.Skills.DebounceMs = -1
	errs := v.ValidateConfig(cfg)
	assert.Len(t, errs, 3)

	var joined []string
	for _, err := range errs {
		joined = append(joined, err.Error())
	}
	assert.Contains(t, strings.Join(joined, "\n"), "cache.size")
}

func TestValidateTracing(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Tracing.SampleRatio = 1.5
	cfg.Tracing.ServiceName = ""
	assert.Len(t, v.ValidateConfig(cfg), 2)

	cfg.Tracing.Enabled = false
	assert.Empty(t, v.ValidateConfig(cfg))
}

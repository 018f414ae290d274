package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "skip-missing", cfg.Skills.DependencyPolicy)
		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "skills"), cfg.Skills.LocalDir)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"data_dir": "` + filepath.ToSlash(tmpDir) + `",
			"skills": {
				"dependency_policy": "strict",
				"config": {
					"notes": {"maxItems": 10, "title": "Notes"}
				}
			},
			"event_bus": {"mode": "collect"}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "strict", cfg.Skills.DependencyPolicy)
		assert.Equal(t, "collect", cfg.EventBus.Mode)
		assert.Equal(t, "ddl", cfg.Skills.DDLPolicy, "unset keys keep defaults")
		assert.EqualValues(t, 10, cfg.Skills.Config["notes"]["maxItems"], "option names keep their case")
		assert.Equal(t, "Notes", cfg.Skills.Config["notes"]["title"])
		assert.Equal(t, filepath.Join(tmpDir, "skillhost.db"), cfg.Database.Path)
		assert.Equal(t, filepath.Join(tmpDir, "skillhost.log"), cfg.Logging.File)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "warn"}}`), 0644))
		t.Setenv("SKILLHOST_LOGGING_LEVEL", "debug")

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "skillhost.json")

	cfg := DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Skills.DependencyPolicy = "strict"
	cfg.Skills.Config["notes"] = map[string]any{"pageSize": 25}

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "strict", loaded.Skills.DependencyPolicy)
	assert.EqualValues(t, 25, loaded.Skills.Config["notes"]["pageSize"])
}

func TestLoadConvenience(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

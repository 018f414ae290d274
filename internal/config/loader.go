package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	dirName  = ".skillhost"
	fileName = "skillhost.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file. A missing file yields the defaults.
// SKILLHOST_* environment variables override file values, for example
// SKILLHOST_LOGGING_LEVEL=debug.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("SKILLHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_, statErr := os.Stat(configPath)
	fileExists := statErr == nil
	if fileExists {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// viper folds keys to lower case; option names are case sensitive
	if fileExists {
		skillConfig, err := readSkillConfig(configPath)
		if err != nil {
			return nil, err
		}
		if skillConfig != nil {
			cfg.Skills.Config = skillConfig
		}
	}
	if cfg.Skills.Config == nil {
		cfg.Skills.Config = map[string]map[string]any{}
	}

	if err := applyPaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.busy_timeout_ms", cfg.Database.BusyTimeoutMs)
	v.SetDefault("database.statement_timeout_ms", cfg.Database.StatementTimeoutMs)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("skills.local_dir", cfg.Skills.LocalDir)
	v.SetDefault("skills.dependency_policy", cfg.Skills.DependencyPolicy)
	v.SetDefault("skills.ddl_policy", cfg.Skills.DDLPolicy)
	v.SetDefault("skills.watch", cfg.Skills.Watch)
	v.SetDefault("skills.debounce_ms", cfg.Skills.DebounceMs)
	v.SetDefault("event_bus.mode", cfg.EventBus.Mode)
	v.SetDefault("cache.size", cfg.Cache.Size)
	v.SetDefault("cache.default_ttl_seconds", cfg.Cache.DefaultTTLSeconds)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)
	v.SetDefault("audit.enabled", cfg.Audit.Enabled)
	v.SetDefault("audit.file", cfg.Audit.File)
}

func readSkillConfig(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var raw struct {
		Skills struct {
			Config map[string]map[string]any `json:"config"`
		} `json:"skills"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse skills.config: %w", err)
	}
	return raw.Skills.Config, nil
}

// applyPaths fills paths left empty relative to the data directory
func applyPaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, dirName)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "skillhost.db")
	}
	if cfg.Skills.LocalDir == "" {
		cfg.Skills.LocalDir = filepath.Join(cfg.DataDir, "skills")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "skillhost.log")
	}
	if cfg.Audit.File == "" {
		cfg.Audit.File = filepath.Join(cfg.DataDir, "audit.log")
	}
	return nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// written as plain JSON so skills.config keeps its key case
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, dirName, fileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

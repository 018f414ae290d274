package config

import (
	"encoding/json"
	"errors"
	"time"
)

// Config represents the main skillhost configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Shared database
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Skills
	Skills SkillsConfig `json:"skills" mapstructure:"skills"`

	// Event bus
	EventBus EventBusConfig `json:"event_bus" mapstructure:"event_bus"`

	// Shared cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Audit log
	Audit AuditConfig `json:"audit" mapstructure:"audit"`
}

// DatabaseConfig holds the shared SQLite settings
type DatabaseConfig struct {
	Path               string `json:"path" mapstructure:"path"` // ":memory:" for a private in-memory database
	BusyTimeoutMs      int    `json:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	StatementTimeoutMs int    `json:"statement_timeout_ms" mapstructure:"statement_timeout_ms"`
}

// SkillsConfig holds discovery and loading settings
type SkillsConfig struct {
	LocalDir         string `json:"local_dir" mapstructure:"local_dir"`
	DependencyPolicy string `json:"dependency_policy" mapstructure:"dependency_policy"` // strict, skip-missing
	DDLPolicy        string `json:"ddl_policy" mapstructure:"ddl_policy"`               // ddl, write
	Watch            bool   `json:"watch" mapstructure:"watch"`
	DebounceMs       int    `json:"debounce_ms" mapstructure:"debounce_ms"`

	// Config holds the supplied options per skill name
	Config map[string]map[string]any `json:"config" mapstructure:"config"`
}

// EventBusConfig holds event bus settings
type EventBusConfig struct {
	Mode string `json:"mode" mapstructure:"mode"` // silent, fail-fast, collect
}

// CacheConfig holds shared cache settings
type CacheConfig struct {
	Size              int `json:"size" mapstructure:"size"`
	DefaultTTLSeconds int `json:"default_ttl_seconds" mapstructure:"default_ttl_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			BusyTimeoutMs:      5000,
			StatementTimeoutMs: 30000,
		},
		Skills: SkillsConfig{
			DependencyPolicy: "skip-missing",
			DDLPolicy:        "ddl",
			Watch:            false,
			DebounceMs:       500,
			Config:           map[string]map[string]any{},
		},
		EventBus: EventBusConfig{
			Mode: "silent",
		},
		Cache: CacheConfig{
			Size:              1024,
			DefaultTTLSeconds: 0,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "skillhost",
			SampleRatio: 1,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

// BusyTimeout returns the database busy timeout
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Database.BusyTimeoutMs) * time.Millisecond
}

// StatementTimeout returns the per-statement timeout
func (c *Config) StatementTimeout() time.Duration {
	return time.Duration(c.Database.StatementTimeoutMs) * time.Millisecond
}

// Debounce returns the watcher quiet period
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Skills.DebounceMs) * time.Millisecond
}

// CacheTTL returns the default cache entry lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTLSeconds) * time.Second
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}

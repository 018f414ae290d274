package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/harun/skillhost/pkg/eventbus"
	"github.com/harun/skillhost/pkg/skill"
	"github.com/harun/skillhost/pkg/sqlguard"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateDependencyPolicy validates the dependency failure policy
func (v *Validator) ValidateDependencyPolicy(policy string) error {
	if _, err := skill.ParsePolicy(policy); err != nil {
		return fmt.Errorf("skills.dependency_policy: %w", err)
	}
	return nil
}

// ValidateDDLPolicy validates the DDL capability policy
func (v *Validator) ValidateDDLPolicy(policy string) error {
	if _, ok := sqlguard.ParseDDLPolicy(policy); !ok {
		return fmt.Errorf("invalid skills.ddl_policy: %s (must be one of: ddl, write)", policy)
	}
	return nil
}

// ValidateBusMode validates the event bus failure mode
func (v *Validator) ValidateBusMode(mode string) error {
	if _, err := eventbus.ParseMode(mode); err != nil {
		return fmt.Errorf("event_bus.mode: %w", err)
	}
	return nil
}

// ValidateAddr validates a host:port listen address
func (v *Validator) ValidateAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid metrics.addr %q: %w", addr, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateDependencyPolicy(cfg.Skills.DependencyPolicy); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateDDLPolicy(cfg.Skills.DDLPolicy); err != nil {
		errors = append(errors, err)
	}
	if cfg.Skills.DebounceMs < 0 {
		errors = append(errors, fmt.Errorf("skills.debounce_ms must be >= 0"))
	}
	for name := range cfg.Skills.Config {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, fmt.Errorf("skills.config: empty skill name"))
		}
	}

	if err := v.ValidateBusMode(cfg.EventBus.Mode); err != nil {
		errors = append(errors, err)
	}

	if cfg.Database.BusyTimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("database.busy_timeout_ms must be >= 0"))
	}
	if cfg.Database.StatementTimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("database.statement_timeout_ms must be >= 0"))
	}

	if cfg.Cache.Size < 0 {
		errors = append(errors, fmt.Errorf("cache.size must be >= 0"))
	}
	if cfg.Cache.DefaultTTLSeconds < 0 {
		errors = append(errors, fmt.Errorf("cache.default_ttl_seconds must be >= 0"))
	}

	if cfg.Metrics.Enabled {
		if err := v.ValidateAddr(cfg.Metrics.Addr); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.ServiceName == "" {
			errors = append(errors, fmt.Errorf("tracing.service_name is required when tracing is enabled"))
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}

package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/parserdesk/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry and that a provider is
// configured, then validates the designer, logging and tracing sections.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	hasProvider := false
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		if core.ModuleID(id).Namespace() == "provider" {
			hasProvider = true
		}
	}
	if len(cfg.Modules) > 0 && !hasProvider {
		errs = append(errs, errors.New("config: a provider module is required"))
	}

	errs = append(errs, validateDesigner(&cfg.Designer)...)
	errs = append(errs, validateLogging(cfg.Logging)...)
	errs = append(errs, validateTracing(cfg.Tracing)...)

	return errors.Join(errs...)
}

func validateDesigner(d *DesignerConfig) []error {
	var errs []error
	nonNegative := map[string]int{
		"max_tool_rounds":    d.MaxToolRounds,
		"loop_threshold":     d.LoopThreshold,
		"token_budget":       d.TokenBudget,
		"memory_value_limit": d.MemoryValueLimit,
		"max_tokens":         d.MaxTokens,
		"reserved_tokens":    d.Reserved,
		"max_sessions":       d.MaxSessions,
	}
	for name, v := range nonNegative {
		if v < 0 {
			errs = append(errs, fmt.Errorf("config: designer.%s must not be negative, got %d", name, v))
		}
	}
	if d.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: designer.timeout must not be negative, got %s", d.Timeout))
	}
	if d.Idle < 0 {
		errs = append(errs, fmt.Errorf("config: designer.session_idle must not be negative, got %s", d.Idle))
	}
	if t := d.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("config: designer.temperature must be within [0, 2], got %g", *t))
	}
	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if _, err := l.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("config: logging.level %q: %w", l.Level, err))
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format must be text or json, got %q", l.Format))
	}
	return errs
}

func validateTracing(t TracingConfig) []error {
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return []error{fmt.Errorf("config: tracing.sample_ratio must be within [0, 1], got %g", t.SampleRatio)}
	}
	return nil
}

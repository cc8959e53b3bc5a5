// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for parserdesk.
package config

import (
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/parserdesk/internal/agent"
	ctxengine "github.com/flemzord/parserdesk/internal/context"
	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/session"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Designer tunes parser design sessions.
	Designer DesignerConfig `yaml:"designer"`

	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Security SecurityConfig `yaml:"security"`
}

// DesignerConfig holds the conversation, session and fetch settings.
type DesignerConfig struct {
	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// FocusMode and EnableFunctions default to true when omitted.
	FocusMode       *bool `yaml:"focus_mode"`
	EnableFunctions *bool `yaml:"enable_functions"`

	MaxToolRounds    int           `yaml:"max_tool_rounds"`
	LoopThreshold    int           `yaml:"loop_threshold"`
	TokenBudget      int           `yaml:"token_budget"`
	Timeout          time.Duration `yaml:"timeout"`
	MemoryValueLimit int           `yaml:"memory_value_limit"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      *float64      `yaml:"temperature"`

	// DomainPrompt is appended to the system prompt.
	DomainPrompt string `yaml:"domain_prompt"`

	ctxengine.ContextConfig `yaml:",inline"`
	session.Config          `yaml:",inline"`

	Fetch scrape.FetchConfig `yaml:"fetch"`
}

func (d *DesignerConfig) defaults() {
	if d.FocusMode == nil {
		d.FocusMode = boolPtr(true)
	}
	if d.EnableFunctions == nil {
		d.EnableFunctions = boolPtr(true)
	}
	d.Fetch.Defaults()
}

// Agent returns the conversation settings.
func (d DesignerConfig) Agent() agent.Config {
	return agent.Config{
		Model:            d.Model,
		FocusMode:        d.FocusMode == nil || *d.FocusMode,
		EnableFunctions:  d.EnableFunctions == nil || *d.EnableFunctions,
		MaxToolRounds:    d.MaxToolRounds,
		LoopThreshold:    d.LoopThreshold,
		TokenBudget:      d.TokenBudget,
		Timeout:          d.Timeout,
		MemoryValueLimit: d.MemoryValueLimit,
		DomainPrompt:     d.DomainPrompt,
		MaxTokens:        d.MaxTokens,
		Temperature:      d.Temperature,
	}
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default info.
	Level string `yaml:"level"`

	// Format is text or json. Default text.
	Format string `yaml:"format"`

	// AuditFile receives the JSONL audit trail. Empty disables it.
	AuditFile string `yaml:"audit_file"`
}

func (l *LoggingConfig) defaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level)))
	return lvl, err
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables export.
	Endpoint string `yaml:"endpoint"`

	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	ServiceName string            `yaml:"service_name"`

	// SampleRatio is the fraction of turns traced. Default 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (t *TracingConfig) defaults() {
	if t.ServiceName == "" {
		t.ServiceName = "parserdesk"
	}
	if t.SampleRatio == 0 {
		t.SampleRatio = 1
	}
}

// Enabled reports whether spans are exported.
func (t TracingConfig) Enabled() bool { return t.Endpoint != "" }

// SecurityConfig holds rate limits and extra secrets to redact.
type SecurityConfig struct {
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	// Redact lists literal values scrubbed from logs and the audit trail.
	Redact []string `yaml:"redact"`
}

// ApplyDefaults fills unset fields across every section.
func (c *Config) ApplyDefaults() {
	c.Designer.defaults()
	c.Logging.defaults()
	c.Tracing.defaults()
}

func boolPtr(b bool) *bool { return &b }

package openaicompat

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/flemzord/parserdesk/internal/provider"
)

// Config is the provider.openai_compatible module section. The top-level
// endpoint is the primary backend; Fallbacks are tried in order when it
// is rate limited or down.
type Config struct {
	Endpoint  `yaml:",inline"`
	Fallbacks []Endpoint            `yaml:"fallbacks"`
	Health    provider.HealthConfig `yaml:"health"`
}

// Endpoint describes one OpenAI-compatible chat completions API.
type Endpoint struct {
	Name          string            `yaml:"name"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIKeys       []string          `yaml:"api_keys"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	Model         string            `yaml:"model"`
	ContextWindow int               `yaml:"context_window"`
	MaxTokens     int               `yaml:"max_tokens"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       time.Duration     `yaml:"timeout"`
}

func (e *Endpoint) defaults(fallbackName string) {
	if e.Name == "" {
		e.Name = fallbackName
	}
	if e.BaseURL == "" {
		e.BaseURL = "https://api.openai.com/v1"
	}
	e.BaseURL = strings.TrimRight(e.BaseURL, "/")
	if e.Timeout <= 0 {
		e.Timeout = 60 * time.Second
	}
	if e.APIKey == "" && e.APIKeyEnv != "" {
		e.APIKey = os.Getenv(e.APIKeyEnv)
	}
}

// keys returns the configured API keys in rotation order.
func (e *Endpoint) keys() []string {
	var out []string
	if e.APIKey != "" {
		out = append(out, e.APIKey)
	}
	for _, k := range e.APIKeys {
		if k != "" && k != e.APIKey {
			out = append(out, k)
		}
	}
	return out
}

func (e *Endpoint) validate() error {
	var errs []error
	u, err := url.Parse(e.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("%s: base_url is not a valid URL: %w", e.Name, err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("%s: base_url scheme must be http or https, got %q", e.Name, u.Scheme))
	}
	if len(e.keys()) == 0 {
		errs = append(errs, fmt.Errorf("%s: one of api_key, api_keys or api_key_env is required", e.Name))
	}
	if e.Model == "" {
		errs = append(errs, fmt.Errorf("%s: model is required", e.Name))
	}
	if e.ContextWindow < 0 || e.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s: context_window and max_tokens must not be negative", e.Name))
	}
	return errors.Join(errs...)
}

func (c *Config) defaults() {
	c.Endpoint.defaults("primary")
	for i := range c.Fallbacks {
		c.Fallbacks[i].defaults(fmt.Sprintf("fallback-%d", i+1))
	}
}

func (c *Config) validate() error {
	errs := []error{c.Endpoint.validate()}
	for i := range c.Fallbacks {
		errs = append(errs, c.Fallbacks[i].validate())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("provider.openai_compatible: %w", err)
	}
	return nil
}

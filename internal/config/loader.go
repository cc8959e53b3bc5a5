package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// varRef matches ${NAME} and ${NAME:-fallback}.
var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// Environment overrides applied after parsing.
const (
	EnvLogLevel = "PARSERDESK_LOG_LEVEL"
	EnvModel    = "PARSERDESK_MODEL"
)

// Load reads the YAML file at path. See Parse.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(raw, path)
}

// Parse expands ${VAR} references in raw, decodes it, applies the
// PARSERDESK_* overrides and fills defaults. source names raw in errors.
func Parse(raw []byte, source string) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", source, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", source, err)
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv(EnvModel); ok && v != "" {
		cfg.Designer.Model = v
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// expandEnv substitutes variable references. A reference to an unset
// variable without a fallback is an error; all of them are reported at
// once.
func expandEnv(raw []byte) ([]byte, error) {
	var missing []string
	out := varRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		m := varRef.FindSubmatch(ref)
		if v, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(v)
		}
		if m[2] != nil {
			return m[2][len(":-"):]
		}
		if name := string(m[1]); !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return ref
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

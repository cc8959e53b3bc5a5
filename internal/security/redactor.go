// Package security holds the cross-cutting guards of parserdesk: secret
// redaction for logs and audit trails, outbound URL filtering for page
// fetches, sliding-window rate limits and request payload checks.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys whose values are secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_?key|credential|authorization)`)

// Redactor scrubs secrets out of strings and config maps. It matches both
// well-known key formats and literal values registered at runtime, such as
// the provider keys read from the configuration.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra pattern.
func (r *Redactor) AddPattern(p *regexp.Regexp) {
	r.mu.Lock()
	r.patterns = append(r.patterns, p)
	r.mu.Unlock()
}

// AddLiteral registers values that must never appear verbatim. Blank values
// are ignored.
func (r *Redactor) AddLiteral(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range secrets {
		if strings.TrimSpace(s) == "" {
			continue
		}
		r.literals = append(r.literals, s)
	}
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// RedactMap rewrites m in place. Non-empty string values under secret-like
// keys are replaced outright; other strings go through Redact. Nested maps
// and lists of maps are walked.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if val != "" && secretKeyPattern.MatchString(k) {
				m[k] = RedactPlaceholder
				continue
			}
			m[k] = r.Redact(val)
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for i, item := range val {
				switch it := item.(type) {
				case map[string]any:
					r.RedactMap(it)
				case string:
					val[i] = r.Redact(it)
				}
			}
		}
	}
}

// DefaultPatterns covers the credential formats parserdesk is likely to see:
// OpenAI-style keys, bearer tokens, GitHub tokens and AWS access key ids.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-(?:[a-zA-Z]+-)?[a-zA-Z0-9_\-]{20,}`),
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._\-~+/]{16,}=*`),
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	}
}

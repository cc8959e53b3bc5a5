package security

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrURLBlocked is returned when the filter rejects a URL.
var ErrURLBlocked = errors.New("URL blocked by filter")

// URLFilterConfig lists the domains page fetches may reach.
type URLFilterConfig struct {
	// AllowDomains restricts fetches to these domains and their subdomains.
	// Empty means any public host.
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains always wins over AllowDomains.
	DenyDomains []string `yaml:"deny_domains"`

	// AllowPrivate lets fetches reach loopback, link-local and private
	// addresses given as IP literals or "localhost".
	AllowPrivate bool `yaml:"allow_private"`
}

// URLFilter decides whether an outbound fetch may go to a URL.
type URLFilter struct {
	allow        []string
	deny         []string
	allowPrivate bool
}

// NewURLFilter normalises the configured domains.
func NewURLFilter(cfg URLFilterConfig) *URLFilter {
	return &URLFilter{
		allow:        normalizeDomains(cfg.AllowDomains),
		deny:         normalizeDomains(cfg.DenyDomains),
		allowPrivate: cfg.AllowPrivate,
	}
}

// Check returns nil when rawURL may be fetched, or an error wrapping
// ErrURLBlocked.
func (f *URLFilter) Check(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrURLBlocked, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrURLBlocked, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrURLBlocked)
	}
	if !f.allowPrivate && isPrivateHost(host) {
		return fmt.Errorf("%w: %s (private address)", ErrURLBlocked, host)
	}

	for _, d := range f.deny {
		if matchDomain(host, d) {
			return fmt.Errorf("%w: %s (denied)", ErrURLBlocked, host)
		}
	}
	if len(f.allow) == 0 {
		return nil
	}
	for _, d := range f.allow {
		if matchDomain(host, d) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (not in allow list)", ErrURLBlocked, host)
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// matchDomain reports whether host is domain or one of its subdomains.
func matchDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func isPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

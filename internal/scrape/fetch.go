package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flemzord/parserdesk/internal/security"
)

// DefaultUserAgent mimics a desktop browser; many news sites serve a
// stripped page to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// FetchConfig controls page retrieval.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`

	// Render loads pages in a headless browser when a Renderer is set.
	Render bool `yaml:"render"`

	// RenderControlURL attaches to a running browser instead of launching one.
	RenderControlURL string `yaml:"render_control_url"`

	security.URLFilterConfig `yaml:",inline"`
}

// Defaults fills zero fields.
func (c *FetchConfig) Defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
}

// Renderer loads a page in a real browser and returns the resulting DOM.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetchOption {
	return func(f *Fetcher) { f.client = c }
}

// WithRenderer sets the browser backend used when FetchConfig.Render is on.
func WithRenderer(r Renderer) FetchOption {
	return func(f *Fetcher) { f.renderer = r }
}

// WithURLFilter rejects URLs the filter does not allow.
func WithURLFilter(filter *security.URLFilter) FetchOption {
	return func(f *Fetcher) { f.filter = filter }
}

// WithFetchLimiter applies the fetch bucket of rl.
func WithFetchLimiter(rl *security.RateLimiter) FetchOption {
	return func(f *Fetcher) { f.limiter = rl }
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *slog.Logger) FetchOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// Fetcher retrieves HTML over HTTP, optionally through a Renderer.
type Fetcher struct {
	cfg      FetchConfig
	client   *http.Client
	renderer Renderer
	filter   *security.URLFilter
	limiter  *security.RateLimiter
	logger   *slog.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetchConfig, opts ...FetchOption) *Fetcher {
	cfg.Defaults()
	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads rawURL. When rendering is enabled and fails, the plain
// HTTP response is used instead.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Page{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if f.filter != nil {
		if err := f.filter.Check(rawURL); err != nil {
			return Page{}, err
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Allow(security.BucketFetch); err != nil {
			return Page{}, err
		}
	}

	if f.cfg.Render && f.renderer != nil {
		html, err := f.renderer.Render(ctx, rawURL)
		if err == nil {
			return Page{URL: rawURL, FinalURL: rawURL, HTML: html, Title: Title(html), Rendered: true}, nil
		}
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		f.logger.Warn("rendered fetch failed, falling back to HTTP", "url", rawURL, "error", err)
	}

	return f.get(ctx, rawURL)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("%w: %d %s", ErrHTTPStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return Page{}, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.cfg.MaxBodyBytes)
	}

	html := string(body)
	page := Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Title:       Title(html),
		HTML:        html,
	}
	f.logger.Debug("page fetched", "url", rawURL, "bytes", len(body), "elapsed", time.Since(start))
	return page, nil
}

// Close releases the renderer, if any.
func (f *Fetcher) Close() error {
	if f.renderer == nil {
		return nil
	}
	return f.renderer.Close()
}

// IsBlocked reports whether err came from the URL filter.
func IsBlocked(err error) bool {
	return errors.Is(err, security.ErrURLBlocked)
}

package tool

import (
	"context"
	"sync"

	"github.com/flemzord/parserdesk/internal/memory"
)

// Env is the per-session state a function may read while it executes.
type Env struct {
	SessionID string
	Memory    *memory.Store
	Pages     *PageCache
}

type envKey struct{}

// WithEnv attaches env to ctx for Registry.Execute.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the Env attached by WithEnv.
func EnvFrom(ctx context.Context) (Env, bool) {
	env, ok := ctx.Value(envKey{}).(Env)
	return env, ok
}

// Page is one fetched document.
type Page struct {
	URL  string
	HTML string
}

// PageCache keeps the pages fetched during a session, most recent last.
// The orchestrator folds the latest page into memory after a fetch.
type PageCache struct {
	mu    sync.Mutex
	pages []Page
	limit int
}

// NewPageCache keeps at most limit pages; limit <= 0 means 4.
func NewPageCache(limit int) *PageCache {
	if limit <= 0 {
		limit = 4
	}
	return &PageCache{limit: limit}
}

// Put records a page, replacing an earlier copy of the same URL.
func (c *PageCache) Put(p Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.pages {
		if existing.URL == p.URL {
			c.pages = append(c.pages[:i], c.pages[i+1:]...)
			break
		}
	}
	c.pages = append(c.pages, p)
	if len(c.pages) > c.limit {
		c.pages = c.pages[len(c.pages)-c.limit:]
	}
}

// Latest returns the most recently stored page.
func (c *PageCache) Latest() (Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pages) == 0 {
		return Page{}, false
	}
	return c.pages[len(c.pages)-1], true
}

// Lookup returns the page fetched from url.
func (c *PageCache) Lookup(url string) (Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.pages {
		if p.URL == url {
			return p, true
		}
	}
	return Page{}, false
}

// Len reports how many pages are cached.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

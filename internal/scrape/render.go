package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodRenderer renders pages in headless Chrome through go-rod. The browser
// is launched (or attached to) on first use.
type RodRenderer struct {
	controlURL string
	timeout    time.Duration

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// Compile-time interface check.
var _ Renderer = (*RodRenderer)(nil)

// NewRodRenderer returns a renderer. An empty controlURL launches a local
// headless browser.
func NewRodRenderer(controlURL string, timeout time.Duration) *RodRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodRenderer{controlURL: controlURL, timeout: timeout}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		r.launcher = l
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	r.browser = b
	return b, nil
}

// Render implements Renderer.
func (r *RodRenderer) Render(ctx context.Context, url string) (string, error) {
	b, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Timeout(r.timeout)
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}
	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read DOM: %w", err)
	}
	return html, nil
}

// Close shuts the browser down.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Cleanup()
		r.launcher = nil
	}
	return err
}

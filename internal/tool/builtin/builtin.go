// Package builtin provides the functions every design session can call:
// fetch_webpage, parse_with_parser and analyze_content.
package builtin

import (
	"context"
	"errors"

	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/tool"
)

// Function names.
const (
	NameFetchWebpage    = "fetch_webpage"
	NameParseWithParser = "parse_with_parser"
	NameAnalyzeContent  = "analyze_content"
)

// ErrNoHTML is returned when a function needs page HTML and none was fetched.
var ErrNoHTML = errors.New("no HTML content available; call fetch_webpage first")

// PageFetcher is implemented by *scrape.Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (scrape.Page, error)
}

// Register adds all built-in functions to reg.
func Register(reg *tool.Registry, fetcher PageFetcher) error {
	return errors.Join(
		reg.Register(&FetchWebpage{Fetcher: fetcher}),
		reg.Register(&ParseWithParser{}),
		reg.Register(&AnalyzeContent{}),
	)
}

// currentPage finds the HTML the session is working on: the "html" memory
// key first, then the latest fetched page.
func currentPage(ctx context.Context) (tool.Page, error) {
	env, _ := tool.EnvFrom(ctx)
	if env.Memory != nil {
		if html, ok := env.Memory.String(memory.KeyHTML); ok {
			url, _ := env.Memory.String(memory.KeyURL)
			return tool.Page{URL: url, HTML: html}, nil
		}
	}
	if env.Pages != nil {
		if p, ok := env.Pages.Latest(); ok {
			return p, nil
		}
	}
	return tool.Page{}, ErrNoHTML
}

package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/tool"
)

// FetchWebpage downloads a page and keeps its HTML in the session page cache.
type FetchWebpage struct {
	Fetcher PageFetcher
}

// FetchResult is what the model sees; the HTML itself stays server-side.
type FetchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	HTMLPreview string `json:"html_preview"`
	HTMLLength  int    `json:"html_length"`
}

func (*FetchWebpage) Name() string { return NameFetchWebpage }

func (*FetchWebpage) Description() string {
	return "Fetch the HTML of a web page. The full HTML is stored in memory under 'html'; only a preview is returned."
}

func (*FetchWebpage) Parameters() tool.Param {
	return tool.Object(map[string]tool.Param{
		"url": {Type: tool.TypeString, Description: "Absolute http(s) URL of the page"},
	}, "url")
}

func (f *FetchWebpage) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", scrape.ErrInvalidURL)
	}

	page, err := f.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if env, ok := tool.EnvFrom(ctx); ok && env.Pages != nil {
		env.Pages.Put(tool.Page{URL: page.URL, HTML: page.HTML})
	}
	return FetchResult{
		URL:         page.URL,
		Title:       page.Title,
		HTMLPreview: scrape.Preview(page.HTML, scrape.HTMLPreviewChars),
		HTMLLength:  scrape.Length(page.HTML),
	}, nil
}

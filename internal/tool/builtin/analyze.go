package builtin

import (
	"context"
	"encoding/json"

	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/tool"
)

// AnalyzeContent runs main-content extraction and language detection over
// the session's HTML.
type AnalyzeContent struct{}

func (*AnalyzeContent) Name() string { return NameAnalyzeContent }

func (*AnalyzeContent) Description() string {
	return "Guess the article title, byline, excerpt, language and main text of the fetched page. " +
		"Use it to pick values to confirm before writing selectors."
}

func (*AnalyzeContent) Parameters() tool.Param { return tool.Object(nil) }

func (*AnalyzeContent) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	page, err := currentPage(ctx)
	if err != nil {
		return nil, err
	}
	return scrape.Analyze(page.HTML, page.URL)
}

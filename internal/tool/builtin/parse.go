package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/tool"
)

// ParseWithParser applies a parser configuration to the session's HTML.
type ParseWithParser struct{}

func (*ParseWithParser) Name() string { return NameParseWithParser }

func (*ParseWithParser) Description() string {
	return "Apply a parser configuration to the fetched HTML. " +
		"A list parser takes 'selector' and 'attribute' (href, text or any attribute name). " +
		"A content parser takes 'title_selector', 'date_selector' and 'body_selector'."
}

func (*ParseWithParser) Parameters() tool.Param {
	return tool.Object(map[string]tool.Param{
		"parser_config": tool.Object(map[string]tool.Param{
			"type":           {Type: tool.TypeString, Description: "list or content"},
			"selector":       {Type: tool.TypeString, Description: "CSS selector matching every list item"},
			"attribute":      {Type: tool.TypeString, Description: "Attribute to read from list items; default href"},
			"title_selector": {Type: tool.TypeString},
			"date_selector":  {Type: tool.TypeString},
			"body_selector":  {Type: tool.TypeString},
		}, "type"),
	}, "parser_config")
}

func (*ParseWithParser) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		ParserConfig scrape.ParserConfig `json:"parser_config"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}

	page, err := currentPage(ctx)
	if err != nil {
		return nil, err
	}
	return scrape.Apply(page.HTML, in.ParserConfig)
}

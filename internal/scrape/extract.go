package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Preview sizes used in parser results.
const (
	ListPreviewItems = 10
	BodyPreviewChars = 500
	HTMLPreviewChars = 1000

	defaultListAttribute = "href"
)

// Content is the full output of a content parser.
type Content struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	Body  string `json:"body"`
}

// ListResult summarises a list parser run.
type ListResult struct {
	ParserType string   `json:"parser_type"`
	URLCount   int      `json:"url_count"`
	URLs       []string `json:"urls"`
	HasMore    bool     `json:"has_more"`
}

// ContentResult summarises a content parser run.
type ContentResult struct {
	ParserType string         `json:"parser_type"`
	Content    ContentPreview `json:"content"`
}

// ContentPreview is Content with the body cut down for display.
type ContentPreview struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	BodyPreview string `json:"body_preview"`
	BodyLength  int    `json:"body_length"`
}

// Apply runs cfg against html and returns a ListResult or a ContentResult.
func Apply(html string, cfg ParserConfig) (any, error) {
	switch cfg.Type {
	case TypeList:
		items, err := ExtractList(html, cfg.Selector, cfg.Attribute)
		if err != nil {
			return nil, err
		}
		shown := items
		if len(shown) > ListPreviewItems {
			shown = shown[:ListPreviewItems]
		}
		return ListResult{
			ParserType: TypeList,
			URLCount:   len(items),
			URLs:       shown,
			HasMore:    len(items) > ListPreviewItems,
		}, nil

	case TypeContent:
		c, err := ExtractContent(html, cfg.TitleSelector, cfg.DateSelector, cfg.BodySelector)
		if err != nil {
			return nil, err
		}
		return ContentResult{
			ParserType: TypeContent,
			Content: ContentPreview{
				Title:       c.Title,
				Date:        c.Date,
				BodyPreview: Preview(c.Body, BodyPreviewChars),
				BodyLength:  Length(c.Body),
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
}

// ExtractList returns one value per element matching selector. attribute
// "text" takes the trimmed element text; any other attribute (default
// "href") takes that attribute and skips elements where it is empty.
func ExtractList(html, selector, attribute string) ([]string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, ErrNoSelector
	}
	if attribute == "" {
		attribute = defaultListAttribute
	}

	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	items := make([]string, 0)
	doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		if attribute == "text" {
			items = append(items, strings.TrimSpace(s.Text()))
			return
		}
		if v, ok := s.Attr(attribute); ok && v != "" {
			items = append(items, v)
		}
	})
	return items, nil
}

// ExtractContent reads the first match of each selector. Empty selectors
// and selectors without a match yield empty fields.
func ExtractContent(html, titleSel, dateSel, bodySel string) (Content, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Content{}, fmt.Errorf("parse HTML: %w", err)
	}

	var c Content
	fields := []struct {
		selector string
		dst      *string
	}{
		{titleSel, &c.Title},
		{dateSel, &c.Date},
		{bodySel, &c.Body},
	}
	for _, f := range fields {
		s := strings.TrimSpace(f.selector)
		if s == "" {
			continue
		}
		m, err := compile(s)
		if err != nil {
			return Content{}, err
		}
		*f.dst = strings.TrimSpace(doc.FindMatcher(m).First().Text())
	}
	return c, nil
}

// Title returns the document <title>, or "" when absent or unparsable.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func compile(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSelector, selector, err)
	}
	return sel, nil
}

package scrape

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"
)

// Analysis is what readability and language detection can tell about a page
// before any parser exists. It gives the model candidate values for title,
// date and body.
type Analysis struct {
	Title       string `json:"title"`
	Byline      string `json:"byline"`
	Excerpt     string `json:"excerpt"`
	SiteName    string `json:"site_name"`
	Published   string `json:"published,omitempty"`
	Language    string `json:"language"`
	TextLength  int    `json:"text_length"`
	TextPreview string `json:"text_preview"`
}

// LanguageUnknown is reported when detection is inconclusive.
const LanguageUnknown = "unknown"

const (
	textPreviewChars = 500
	detectSampleSize = 2000
)

var detector = sync.OnceValue(func() lingua.LanguageDetector {
	return lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English, lingua.French, lingua.German, lingua.Spanish,
			lingua.Italian, lingua.Portuguese, lingua.Dutch,
		).
		WithLowAccuracyMode().
		Build()
})

// Analyze extracts the main article from html. pageURL resolves relative
// links and may be empty.
func Analyze(html, pageURL string) (Analysis, error) {
	base, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		base = &url.URL{Scheme: "http", Host: "localhost"}
	}

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(html), base)
	if err != nil {
		return Analysis{}, fmt.Errorf("readability: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	a := Analysis{
		Title:       strings.TrimSpace(article.Title),
		Byline:      strings.TrimSpace(article.Byline),
		Excerpt:     strings.TrimSpace(article.Excerpt),
		SiteName:    strings.TrimSpace(article.SiteName),
		Language:    DetectLanguage(text),
		TextLength:  Length(text),
		TextPreview: Preview(text, textPreviewChars),
	}
	if article.PublishedTime != nil {
		a.Published = article.PublishedTime.Format("2006-01-02")
	}
	return a, nil
}

// DetectLanguage returns the ISO 639-1 code of text's language.
func DetectLanguage(text string) string {
	sample := []rune(text)
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}
	if len(sample) == 0 {
		return LanguageUnknown
	}
	lang, ok := detector().DetectLanguageOf(string(sample))
	if !ok {
		return LanguageUnknown
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// Package scrape fetches pages and applies parser configurations to them.
//
// A parser configuration is either a "list" parser, which pulls one value
// (usually an article link) out of every element matched by a CSS selector,
// or a "content" parser, which reads a title, a date and a body from a
// single article page.
package scrape

import (
	"errors"
	"unicode/utf8"
)

// Parser types.
const (
	TypeList    = "list"
	TypeContent = "content"
)

// Errors returned by this package.
var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrHTTPStatus      = errors.New("unexpected HTTP status")
	ErrBodyTooLarge    = errors.New("response body too large")
	ErrNoSelector      = errors.New("No selector provided") //nolint:staticcheck // shown to the model verbatim
	ErrInvalidSelector = errors.New("invalid selector")
	ErrUnknownType     = errors.New("Unknown parser type") //nolint:staticcheck // shown to the model verbatim
)

// ParserConfig is the stored definition of a parser.
type ParserConfig struct {
	Type string `json:"type"`

	// List parsers.
	Selector  string `json:"selector,omitempty"`
	Attribute string `json:"attribute,omitempty"`

	// Content parsers.
	TitleSelector string `json:"title_selector,omitempty"`
	DateSelector  string `json:"date_selector,omitempty"`
	BodySelector  string `json:"body_selector,omitempty"`
}

// Page is a fetched document.
type Page struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Rendered    bool   `json:"rendered,omitempty"`
	HTML        string `json:"-"`
}

// Preview returns the first n characters of s followed by "..." when s is
// longer than n characters.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

// Length counts characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

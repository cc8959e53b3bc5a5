package directive

import "strings"

// closers maps each opening tag to the tag that ends it.
var closers = map[string]string{
	"<mem_set>":      "</mem_set>",
	"<mem_get>":      "</mem_get>",
	"<mem_validate>": "</mem_validate>",
	"<state>":        "</state>",
	"<mem>":          "</mem>",
}

// StreamFilter removes directives from a reply that arrives in fragments.
// Text is held back while it could still start or continue a tag, so no
// part of a directive or a <mem> block is ever returned. Directives are
// not applied; the complete reply still goes through Process.
//
// A StreamFilter is not safe for concurrent use.
type StreamFilter struct {
	buf  string
	open string // opening tag at the start of buf, empty outside a tag
}

// Write appends a fragment and returns the text that is safe to show.
func (f *StreamFilter) Write(fragment string) string {
	s := f.buf + fragment
	var out strings.Builder

	for len(s) > 0 {
		if f.open != "" {
			end := strings.Index(s[len(f.open):], closers[f.open])
			if end < 0 {
				break
			}
			s = s[len(f.open)+end+len(closers[f.open]):]
			f.open = ""
			continue
		}

		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			out.WriteString(s)
			s = ""
			break
		}
		out.WriteString(s[:lt])
		s = s[lt:]

		open, partial := matchOpen(s)
		if open != "" {
			f.open = open
			continue
		}
		if partial {
			break
		}
		out.WriteByte('<')
		s = s[1:]
	}
	f.buf = s
	return out.String()
}

// Flush returns whatever is still held once the reply is complete, such
// as an unterminated tag, and resets the filter.
func (f *StreamFilter) Flush() string {
	s := f.buf
	f.buf, f.open = "", ""
	return s
}

// matchOpen reports the opening tag s starts with, or whether s is a
// strict prefix of one.
func matchOpen(s string) (open string, partial bool) {
	for tag := range closers {
		if strings.HasPrefix(s, tag) {
			return tag, false
		}
		if len(s) < len(tag) && strings.HasPrefix(tag, s) {
			partial = true
		}
	}
	return "", partial
}

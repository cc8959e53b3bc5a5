// Package directive extracts the memory micro-language embedded in model
// replies. A reply is lexed into typed tokens, the tokens are applied to
// the session memory and state machine, and the user-visible remainder is
// rendered back to text.
//
// Grammar (tags are case-sensitive, payloads may span lines):
//
//	<mem_set>{"key": value, ...}</mem_set>
//	<mem_get>key | ["k1", "k2"] | all</mem_get>
//	<mem_validate>["k1", "k2"] | key</mem_validate>
//	<state>STATE_NAME</state>
//	<mem> ... </mem>          internal rendering block, always stripped
package directive

import "regexp"

// Kind classifies a token.
type Kind int

// Token kinds.
const (
	Text Kind = iota
	MemSet
	MemGet
	MemValidate
	StateTag
	MemOpen
	MemClose
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case MemSet:
		return "mem_set"
	case MemGet:
		return "mem_get"
	case MemValidate:
		return "mem_validate"
	case StateTag:
		return "state"
	case MemOpen:
		return "mem_open"
	case MemClose:
		return "mem_close"
	default:
		return "unknown"
	}
}

// Token is a lexed span of a reply. For directive tokens Payload is the
// text between the tags; Raw is always the exact source span.
type Token struct {
	Kind    Kind
	Raw     string
	Payload string
}

// tagPattern matches one directive per alternative; the submatch index
// identifies the kind.
var tagPattern = regexp.MustCompile(`(?s)<mem_set>(.*?)</mem_set>` +
	`|<mem_get>(.*?)</mem_get>` +
	`|<mem_validate>(.*?)</mem_validate>` +
	`|<state>(.*?)</state>` +
	`|(<mem>)` +
	`|(</mem>)`)

var groupKinds = []Kind{MemSet, MemGet, MemValidate, StateTag, MemOpen, MemClose}

// Lex splits text into tokens. Adjacent plain text is merged into a single
// Text token, and <mem> markers without a partner are demoted to text.
func Lex(text string) []Token {
	var toks []Token
	pos := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > pos {
			toks = append(toks, Token{Kind: Text, Raw: text[pos:m[0]]})
		}
		tok := Token{Kind: Text, Raw: text[m[0]:m[1]]}
		for g, kind := range groupKinds {
			lo := m[2*(g+1)]
			if lo < 0 {
				continue
			}
			tok.Kind = kind
			if kind != MemOpen && kind != MemClose {
				tok.Payload = text[lo:m[2*(g+1)+1]]
			}
			break
		}
		toks = append(toks, tok)
		pos = m[1]
	}
	if pos < len(text) {
		toks = append(toks, Token{Kind: Text, Raw: text[pos:]})
	}
	return mergeText(pairMemBlocks(toks))
}

// pairMemBlocks turns unmatched <mem> and </mem> markers into text so that
// only well-formed blocks are stripped. Blocks do not nest.
func pairMemBlocks(toks []Token) []Token {
	open := -1
	for i := range toks {
		switch toks[i].Kind {
		case MemOpen:
			if open >= 0 {
				toks[open].Kind = Text
			}
			open = i
		case MemClose:
			if open < 0 {
				toks[i].Kind = Text
			} else {
				open = -1
			}
		}
	}
	if open >= 0 {
		toks[open].Kind = Text
	}
	return toks
}

func mergeText(toks []Token) []Token {
	out := toks[:0]
	for _, t := range toks {
		if n := len(out); n > 0 && t.Kind == Text && out[n-1].Kind == Text {
			out[n-1].Raw += t.Raw
			continue
		}
		out = append(out, t)
	}
	return out
}

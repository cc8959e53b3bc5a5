package ctxengine

import "strings"

// knownWindows maps model names (or name prefixes) to context windows.
var knownWindows = map[string]int{
	"gpt-3.5-turbo":     16385,
	"gpt-3.5-turbo-16k": 16385,
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4-1106":        128000,
	"gpt-4-0125":        128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-4.1":           1047576,
	"o1":                200000,
	"o3":                200000,
	"o4-mini":           200000,
	"claude-3":          200000,
	"claude-3-5":        200000,
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,
	"mistral-large":     128000,
	"mistral-small":     32000,
	"llama3":            8192,
	"llama-3.1":         128000,
	"deepseek-chat":     64000,
}

// MaxContextFor returns the context window of model. Exact names win,
// then the longest matching prefix, then DefaultContextWindow.
func MaxContextFor(model string) int {
	return lookupWindow(nil, model)
}

func lookupWindow(overrides map[string]int, model string) int {
	name := strings.ToLower(strings.TrimSpace(model))
	// Provider-qualified names such as "openai/gpt-4o".
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if n, ok := overrides[name]; ok {
		return n
	}
	if n, ok := knownWindows[name]; ok {
		return n
	}
	best, bestLen := DefaultContextWindow, 0
	for _, table := range []map[string]int{knownWindows, overrides} {
		for prefix, n := range table {
			if len(prefix) >= bestLen && strings.HasPrefix(name, prefix) {
				best, bestLen = n, len(prefix)
			}
		}
	}
	return best
}

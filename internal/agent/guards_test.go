package agent

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/parserdesk/internal/provider"
)

type call struct {
	name string
	args string
}

func TestLoopDetector(t *testing.T) {
	t.Parallel()

	news := call{"fetch_webpage", `{"url":"https://news.test/"}`}
	tests := []struct {
		name      string
		threshold int
		calls     []call
		want      bool
	}{
		{"below threshold", 3, []call{news, news}, false},
		{"at threshold", 3, []call{news, news, news}, true},
		{"different args", 2, []call{news, {"fetch_webpage", `{"url":"https://blog.test/"}`}}, false},
		{"different function", 2, []call{news, {"analyze_content", `{"url":"https://news.test/"}`}}, false},
		{"key order ignored", 2, []call{
			{"parse_with_parser", `{"html":"<ul></ul>","parser_config":{"type":"list"}}`},
			{"parse_with_parser", `{"parser_config":{"type":"list"}, "html":"<ul></ul>"}`},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newLoopDetector(tt.threshold)
			var got bool
			for _, c := range tt.calls {
				got = d.record(c.name, json.RawMessage(c.args))
			}
			if got != tt.want {
				t.Errorf("loop after %d calls = %v, want %v", len(tt.calls), got, tt.want)
			}
		})
	}
}

func TestNormalizeArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: `{"b":2, "a":1}`, want: `{"a":1,"b":2}`},
		{in: ``, want: `{}`},
		{in: `not json`, want: `not json`},
	}
	for _, tt := range tests {
		if got := normalizeArgs(json.RawMessage(tt.in)); got != tt.want {
			t.Errorf("normalizeArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenTracker_Add(t *testing.T) {
	t.Parallel()
	tr := newTokenTracker(1000)

	tr.add(provider.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150})
	tr.add(provider.TokenUsage{PromptTokens: 200, CompletionTokens: 100, TotalTokens: 300})

	want := provider.TokenUsage{PromptTokens: 300, CompletionTokens: 150, TotalTokens: 450}
	if diff := cmp.Diff(want, tr.total()); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
	if tr.calls != 2 {
		t.Errorf("calls = %d, want 2", tr.calls)
	}
}

func TestTokenTracker_Exceeded(t *testing.T) {
	t.Parallel()
	tr := newTokenTracker(500)

	tr.add(provider.TokenUsage{TotalTokens: 500})
	if !tr.exceeded() {
		t.Error("expected exceeded at budget")
	}
}

func TestTokenTracker_UnlimitedBudget(t *testing.T) {
	t.Parallel()
	tr := newTokenTracker(0)

	tr.add(provider.TokenUsage{TotalTokens: 999999})
	if tr.exceeded() {
		t.Error("zero budget should never exceed")
	}
}

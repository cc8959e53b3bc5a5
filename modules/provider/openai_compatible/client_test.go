package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/parserdesk/internal/provider"
	"gopkg.in/yaml.v3"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ep := Endpoint{Name: "test", BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini", Timeout: 5 * time.Second}
	return NewClient(ep, nil, nil)
}

func TestConfigure_InlineEndpointAndFallbacks(t *testing.T) {
	t.Parallel()

	src := `
base_url: "https://api.example.com/v1/"
api_key: "sk-1"
api_keys: ["sk-2"]
model: "gpt-4o"
fallbacks:
  - base_url: "http://localhost:11434/v1"
    api_key: "ollama"
    model: "llama3"
`
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatal(err)
	}
	m.config.defaults()
	if err := m.config.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if m.config.BaseURL != "https://api.example.com/v1" {
		t.Errorf("BaseURL = %q", m.config.BaseURL)
	}
	if got := m.config.keys(); len(got) != 2 {
		t.Errorf("keys = %v", got)
	}
	if len(m.config.Fallbacks) != 1 || m.config.Fallbacks[0].Name != "fallback-1" {
		t.Errorf("fallbacks = %+v", m.config.Fallbacks)
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	c := Config{Endpoint: Endpoint{BaseURL: "ftp://x"}}
	c.defaults()
	err := c.validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"scheme", "api_key", "model"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestClient_CompleteUsesRequestModel(t *testing.T) {
	t.Parallel()

	var got oaiRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi","tool_calls":[{"id":"c1","type":"function","function":{"name":"fetch_webpage","arguments":"{\"url\":\"https://x.test\"}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	})

	resp, err := c.Complete(context.Background(), provider.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hello"}},
		Tools:    []provider.ToolDefinition{{Name: "fetch_webpage", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("model = %q, want override", got.Model)
	}
	if len(got.Tools) != 1 || got.Tools[0].Type != "function" {
		t.Errorf("tools = %+v", got.Tools)
	}
	if resp.Content != "hi" || resp.FinishReason != provider.FinishReasonToolUse {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "fetch_webpage" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, "slow down", provider.ErrRateLimit},
		{http.StatusUnauthorized, "Incorrect API key", provider.ErrAuthentication},
		{http.StatusForbidden, "nope", provider.ErrAuthentication},
		{http.StatusBadGateway, "bad", provider.ErrProviderDown},
		{http.StatusBadRequest, `{"error":{"code":"context_length_exceeded"}}`, provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			})
			_, err := c.Complete(context.Background(), provider.CompletionRequest{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_StreamAccumulatesToolCalls(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data:{"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","function":{"name":"parse_with_parser","arguments":"{\"parser"}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"_config\":{}}"}}]},"finish_reason":"tool_calls"}]}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			_, _ = fmt.Fprintf(w, "%s\n\n", l)
		}
	})

	ch, err := c.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	var text strings.Builder
	var calls []provider.ToolCall
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatal(chunk.Err)
		}
		text.WriteString(chunk.Content)
		calls = append(calls, chunk.ToolCalls...)
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q", text.String())
	}
	if len(calls) != 1 || string(calls[0].Arguments) != `{"parser_config":{}}` {
		t.Errorf("calls = %+v", calls)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprint(w, `{"data":[]}`)
	})
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestNormalizeArgs(t *testing.T) {
	t.Parallel()
	if got := string(normalizeArgs("  ")); got != "{}" {
		t.Errorf("normalizeArgs(blank) = %q", got)
	}
}

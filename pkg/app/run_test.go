package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/core"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/internal/tool/builtin"

	_ "github.com/flemzord/parserdesk/internal/cron"
	_ "github.com/flemzord/parserdesk/internal/gateway"
	_ "github.com/flemzord/parserdesk/modules/provider/openai_compatible"
	_ "github.com/flemzord/parserdesk/modules/store/sqlite"
)

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "parserdesk")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "parserdesk.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestDefaultDataDir_XDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := DefaultDataDir(), "/custom/data/parserdesk"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDataDir_Fallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := DefaultDataDir(), filepath.Join(home, ".local", "share", "parserdesk"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parserdesk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuild_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(*testing.T) string { return "/nonexistent/config.yaml" }},
		{"invalid yaml", func(t *testing.T) string { return writeConfig(t, "not: valid: yaml: [") }},
		{"no version", func(t *testing.T) string { return writeConfig(t, "modules:\n  foo: {}") }},
		{"no provider", func(t *testing.T) string {
			return writeConfig(t, "version: \"1\"\nmodules:\n  store.sqlite: {}\n")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(t.Context(), Params{ConfigPath: tt.path(t), DataDir: t.TempDir()}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// fakeOpenAI answers every chat completion with text.
func fakeOpenAI(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + text + `"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuild_WiresSessions(t *testing.T) {
	llm := fakeOpenAI(t, "Please send the URL of the page to parse.")
	dataDir := t.TempDir()
	path := writeConfig(t, `
version: "1"
modules:
  provider.openai_compatible:
    base_url: `+llm.URL+`
    api_key: sk-very-secret-test-key
    model: gpt-4o-mini
  store.sqlite: {}
  cron.scheduler: {}
designer:
  max_sessions: 3
  autosave: true
logging:
  level: debug
  format: json
  audit_file: audit.jsonl
security:
  redact: [sk-very-secret-test-key]
`)

	var logs bytes.Buffer
	rt, err := Build(t.Context(), Params{
		ConfigPath: path,
		DataDir:    dataDir,
		Version:    "test",
		LogOutput:  &logs,
		Skip:       []string{"gateway"},
		Agent:      func(c *agent.Config) { c.FocusMode = false },
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	if rt.Store == nil || rt.Chain == nil {
		t.Fatalf("store = %v, chain = %v", rt.Store, rt.Chain)
	}
	if got, err := core.Service[*session.Manager](rt.Context, session.ServiceName); err != nil || got != rt.Sessions {
		t.Errorf("session service = %v, %v", got, err)
	}
	for _, name := range []string{builtin.NameFetchWebpage, builtin.NameParseWithParser, builtin.NameAnalyzeContent} {
		if _, ok := rt.Registry.Resolve(name); !ok {
			t.Errorf("function %s not registered", name)
		}
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s, err := rt.Sessions.Create(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	reply, err := s.Converse(t.Context(), "I want to parse a news site", agent.Options{})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply.Text != "Please send the URL of the page to parse." {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Conversation().Config().FocusMode {
		t.Error("Agent hook was not applied")
	}

	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	audit, err := os.ReadFile(filepath.Join(dataDir, "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(audit), `"session_create"`) {
		t.Errorf("audit trail = %s", audit)
	}
	if strings.Contains(logs.String(), "sk-very-secret-test-key") {
		t.Error("API key leaked into logs")
	}
}

func TestFilterModules(t *testing.T) {
	t.Parallel()

	ids := []string{"provider.openai_compatible", "store.sqlite", "gateway.http", "cron.scheduler"}
	got := filterModules(ids, []string{"gateway", "cron"})
	if strings.Join(got, ",") != "provider.openai_compatible,store.sqlite" {
		t.Errorf("filterModules = %v", got)
	}
	if len(ids) != 4 || ids[2] != "gateway.http" {
		t.Errorf("input mutated: %v", ids)
	}
}

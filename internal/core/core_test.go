package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// trackingModule records lifecycle calls into a shared slice.
type trackingModule struct {
	id           ModuleID
	calls        *[]string
	provisionErr error
	startErr     error
	stopErr      error
	key          *string
}

func (m *trackingModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			cp := *m
			return &cp
		},
	}
}

func (m *trackingModule) record(s string) {
	if m.calls != nil {
		*m.calls = append(*m.calls, string(m.id)+":"+s)
	}
}

func (m *trackingModule) Configure(node *yaml.Node) error {
	m.record("configure")
	var parsed struct {
		Key string `yaml:"key"`
	}
	if err := node.Decode(&parsed); err != nil {
		return err
	}
	if m.key != nil {
		*m.key = parsed.Key
	}
	return nil
}

func (m *trackingModule) Provision(ctx *AppContext) error {
	m.record("provision")
	ctx.RegisterService(string(m.id), m)
	return m.provisionErr
}

func (m *trackingModule) Validate() error { m.record("validate"); return nil }
func (m *trackingModule) Start() error    { m.record("start"); return m.startErr }
func (m *trackingModule) Stop(context.Context) error {
	m.record("stop")
	return m.stopErr
}

func TestModuleID_Namespace(t *testing.T) {
	t.Parallel()
	tests := map[ModuleID]string{
		"store.sqlite":               "store",
		"provider.openai_compatible": "provider",
		"bare":                       "bare",
	}
	for id, want := range tests {
		if got := id.Namespace(); got != want {
			t.Errorf("%q.Namespace() = %q, want %q", id, got, want)
		}
	}
}

func TestAppContext_ForModuleTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := NewAppContext(logger, "/data")
	ctx.ForModule("store.sqlite").Logger.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("module=store.sqlite")) {
		t.Errorf("log = %s, want module attribute", buf.String())
	}
}

func TestAppContext_LoadModuleLifecycle(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	var key string
	RegisterModule(&trackingModule{id: "test.mod", calls: &calls, key: &key})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("key: hello"), &node); err != nil {
		t.Fatal(err)
	}
	ctx := NewAppContext(nil, "/data").WithModuleConfigs(map[string]yaml.Node{
		"test.mod": *node.Content[0],
	})

	if _, err := ctx.LoadModule("test.mod"); err != nil {
		t.Fatal(err)
	}
	want := []string{"test.mod:configure", "test.mod:provision", "test.mod:validate"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	if key != "hello" {
		t.Errorf("key = %q, want hello", key)
	}

	svc, err := Service[*trackingModule](ctx, "test.mod")
	if err != nil || svc == nil {
		t.Fatalf("Service() = %v, %v", svc, err)
	}
	if _, err := Service[string](ctx, "test.mod"); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestAppContext_LoadModuleErrors(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.bad", provisionErr: errors.New("boom")})
	ctx := NewAppContext(nil, "/data")

	if _, err := ctx.LoadModule("missing.mod"); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("err = %v, want ErrUnknownModule", err)
	}
	if _, err := ctx.LoadModule("test.bad"); err == nil {
		t.Error("expected provision error")
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&trackingModule{id: "test.a", calls: &calls})
	RegisterModule(&trackingModule{id: "test.b", calls: &calls, startErr: errors.New("nope")})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.a", "test.b"}); err != nil {
		t.Fatal(err)
	}
	calls = nil
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	want := []string{"test.a:start", "test.b:start", "test.a:stop"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&trackingModule{id: "test.run", calls: &calls})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.run"}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if calls[len(calls)-1] != "test.run:stop" {
		t.Errorf("calls = %v, want stop last", calls)
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "store.a"})
	RegisterModule(&trackingModule{id: "store.b"})
	RegisterModule(&trackingModule{id: "gateway.http"})

	got := GetModulesByNamespace("store")
	if len(got) != 2 || got[0].ID != "store.a" || got[1].ID != "store.b" {
		t.Errorf("GetModulesByNamespace = %+v", got)
	}
}

func TestApp_StopJoinsErrors(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&trackingModule{id: "test.one", calls: &calls})
	RegisterModule(&trackingModule{id: "test.two", calls: &calls, stopErr: errors.New("stuck")})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.one", "test.two"}); err != nil {
		t.Fatal(err)
	}
	if got := app.Modules(); len(got) != 2 || got[0] != "test.one" {
		t.Errorf("Modules() = %v", got)
	}
	if err := app.Start(); err != nil {
		t.Fatal(err)
	}
	calls = nil
	err := app.Stop(t.Context())
	if err == nil || !strings.Contains(err.Error(), "test.two") {
		t.Fatalf("Stop() = %v, want test.two error", err)
	}
	if len(calls) != 2 || calls[0] != "test.two:stop" || calls[1] != "test.one:stop" {
		t.Errorf("calls = %v, want reverse order despite the error", calls)
	}
	if err := app.Stop(t.Context()); err != nil {
		t.Errorf("second Stop() = %v, want no-op", err)
	}
}

func TestAppContext_DataPath(t *testing.T) {
	t.Parallel()
	ctx := NewAppContext(nil, "/data")
	tests := map[string]string{
		"":              "",
		"parsers.db":    "/data/parsers.db",
		"sub/audit.log": "/data/sub/audit.log",
		"/abs/x.db":     "/abs/x.db",
	}
	for in, want := range tests {
		if got := ctx.DataPath(in); got != want {
			t.Errorf("DataPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterModule_Panics(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(&trackingModule{id: "test.dup"})

	for name, mod := range map[string]Module{
		"empty id":  &trackingModule{},
		"duplicate": &trackingModule{id: "test.dup"},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic", name)
				}
			}()
			RegisterModule(mod)
		}()
	}
}

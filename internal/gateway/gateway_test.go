package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/parserdesk/internal/core"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/security/securitytest"
	"github.com/flemzord/parserdesk/internal/session"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", g.config.ReadTimeout)
	}
	if g.config.WriteTimeout != 6*time.Minute {
		t.Errorf("WriteTimeout = %v, want 6m", g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
	if g.config.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", g.config.MaxBodyBytes)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
read_timeout: 5s
write_timeout: 15s
max_body_bytes: 4096
auth:
  bearer_token: "my-token"
`)
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" {
		t.Errorf("Bind = %q", g.config.Bind)
	}
	if g.config.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v", g.config.WriteTimeout)
	}
	if g.config.MaxBodyBytes != 4096 {
		t.Errorf("MaxBodyBytes = %d", g.config.MaxBodyBytes)
	}
	if g.config.Auth.BearerToken != "my-token" {
		t.Errorf("BearerToken = %q", g.config.Auth.BearerToken)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"good address", Config{Bind: "127.0.0.1:8080"}, false},
		{"bad address", Config{Bind: "not a valid address::"}, true},
		{"basic user without pass", Config{Bind: "127.0.0.1:8080", Auth: AuthConfig{BasicUser: "u"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{config: tt.cfg}
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_StartRequiresSessions(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Provision(core.NewAppContext(slog.New(slog.DiscardHandler), t.TempDir())); err != nil {
		t.Fatal(err)
	}
	err := g.Start()
	if err == nil || !strings.Contains(err.Error(), session.ServiceName) {
		t.Fatalf("Start() = %v, want missing %s", err, session.ServiceName)
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(slog.New(slog.DiscardHandler), t.TempDir())
	appCtx.RegisterService(session.ServiceName, newManager(echoProvider("ok"), nil))
	limiter := security.NewRateLimiter(security.RateLimitConfig{})
	appCtx.RegisterService(rateLimiterService, limiter)

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "bind: "+freeAddr(t))); err != nil {
		t.Fatal(err)
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = g.Stop(context.Background()) })

	if g.limiter != limiter {
		t.Error("rate limiter was not resolved")
	}
	if g.store != nil || g.chain != nil || g.metrics != nil {
		t.Error("unregistered optional services should stay nil")
	}

	var health HealthResponse
	url := "http://" + g.config.Bind + "/health"
	deadline := time.Now().Add(2 * time.Second)
	for {
		req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if code := do(t, http.MethodGet, url, nil, &health); code != http.StatusOK || health.Status != "ok" {
		t.Errorf("health = %d %+v", code, health)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_StopNilServer(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop without Start: %v", err)
	}
}

func TestGateway_AuthProtectsAPI(t *testing.T) {
	t.Parallel()

	audit, events := securitytest.NewTestAuditLogger()
	g := newTestGateway(t, newManager(echoProvider("ok"), nil), nil)
	g.config.Auth = AuthConfig{BearerToken: "tok"}
	g.audit = audit
	srv := serve(t, g)

	if code := do(t, http.MethodGet, srv.URL+"/health", nil, nil); code != http.StatusOK {
		t.Errorf("/health without auth = %d, want 200", code)
	}
	if code := do(t, http.MethodGet, srv.URL+"/api/sessions", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("/api/sessions without auth = %d, want 401", code)
	}

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/api/sessions with auth = %d, want 200", resp.StatusCode)
	}

	got := events()
	if len(got) != 1 || got[0].Type != security.EventAuthFailure {
		t.Errorf("audit events = %+v, want one auth failure", got)
	}
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/provider/providertest"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/session"
)

func echoProvider(text string) *providertest.MockProvider {
	return &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: text}, nil
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return providertest.Chunks(text), nil
		},
	}
}

func newManager(p provider.Provider, store record.Store, opts ...session.Option) *session.Manager {
	build := func(id string, mem *memory.Store, extra ...agent.Option) *agent.Conversation {
		return agent.New(p, mem, append([]agent.Option{agent.WithID(id)}, extra...)...)
	}
	return session.NewManager(build, store, opts...)
}

// newTestGateway wires a gateway around sessions without the module
// lifecycle. store may be nil.
func newTestGateway(t *testing.T, sessions *session.Manager, store record.Store) *Gateway {
	t.Helper()
	g := &Gateway{
		logger:    slog.New(slog.DiscardHandler),
		sessions:  sessions,
		startedAt: time.Now(),
	}
	if store != nil {
		g.store = store
	}
	g.config.defaults()
	return g
}

func serve(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return srv
}

// do sends a JSON request and decodes the JSON response into out when
// out is non-nil.
func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return &doc
}

func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

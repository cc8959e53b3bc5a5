package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/provider/providertest"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/record/recordtest"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/internal/tool"
	"github.com/flemzord/parserdesk/internal/tool/tooltest"
)

type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// rpc sends one JSON-RPC request through the server and decodes its result.
func rpc(t *testing.T, s *Server, id int, method string, params any, out any) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params})
	if err != nil {
		t.Fatal(err)
	}
	resp := s.MCP().HandleMessage(t.Context(), body)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error != nil {
		t.Fatalf("%s: %s", method, envelope.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			t.Fatalf("%s result %s: %v", method, envelope.Result, err)
		}
	}
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	rpc(t, s, 0, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
	}, nil)
}

func call(t *testing.T, s *Server, name string, args map[string]any) callResult {
	t.Helper()
	var res callResult
	rpc(t, s, 2, "tools/call", map[string]any{"name": name, "arguments": args}, &res)
	if len(res.Content) != 1 {
		t.Fatalf("%s content = %+v", name, res.Content)
	}
	return res
}

func TestServer_ListsTools(t *testing.T) {
	t.Parallel()

	reg := tool.NewRegistry()
	if err := reg.Register(tooltest.Returning("inspect", map[string]any{"ok": true})); err != nil {
		t.Fatal(err)
	}
	s := New(reg, "test", WithStore(recordtest.NewStore()))
	initialize(t, s)

	var res struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	rpc(t, s, 1, "tools/list", map[string]any{}, &res)

	var names []string
	for _, tl := range res.Tools {
		names = append(names, tl.Name)
	}
	slices.Sort(names)
	want := []string{ToolGetParser, "inspect", ToolListParsers, ToolMatchParser}
	slices.Sort(want)
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
	if got := s.Tools(); len(got) != 4 || got[0] != "inspect" {
		t.Errorf("Tools() = %v", got)
	}
}

func TestServer_CallsRegistryFunctions(t *testing.T) {
	t.Parallel()

	var sawPages bool
	fn := &tooltest.MockFunction{
		NameValue: "remember",
		ExecuteFunc: func(ctx context.Context, args json.RawMessage) (any, error) {
			env, ok := tool.EnvFrom(ctx)
			sawPages = ok && env.Pages != nil && env.Memory != nil && strings.HasPrefix(env.SessionID, "mcp-")
			return map[string]string{"args": string(args)}, nil
		},
	}
	failing := &tooltest.MockFunction{
		NameValue: "broken",
		ExecuteFunc: func(context.Context, json.RawMessage) (any, error) {
			return nil, fmt.Errorf("no page")
		},
	}
	reg := tool.NewRegistry()
	_ = reg.Register(fn)
	_ = reg.Register(failing)
	s := New(reg, "test")
	initialize(t, s)

	res := call(t, s, "remember", map[string]any{"k": "v"})
	if res.IsError || !strings.Contains(res.Content[0].Text, `{\"k\":\"v\"}`) {
		t.Errorf("result = %+v", res)
	}
	if !sawPages {
		t.Error("function did not receive the shared environment")
	}

	res = call(t, s, "broken", nil)
	if !res.IsError || !strings.Contains(res.Content[0].Text, "no page") {
		t.Errorf("error result = %+v", res)
	}
}

func TestServer_StoreTools(t *testing.T) {
	t.Parallel()

	store := recordtest.NewStore(record.Record{
		Name:         "news",
		URLPattern:   `^https://news\.test/`,
		ParserConfig: json.RawMessage(`{"type":"list","selector":"a"}`),
	})
	s := New(tool.NewRegistry(), "test", WithStore(store))
	initialize(t, s)

	res := call(t, s, ToolListParsers, nil)
	if !strings.Contains(res.Content[0].Text, `"name":"news"`) {
		t.Errorf("list = %s", res.Content[0].Text)
	}

	res = call(t, s, ToolMatchParser, map[string]any{"url": "https://news.test/today"})
	var p parserJSON
	if err := json.Unmarshal([]byte(res.Content[0].Text), &p); err != nil || p.Name != "news" {
		t.Errorf("match = %s (%v)", res.Content[0].Text, err)
	}

	res = call(t, s, ToolGetParser, map[string]any{"name": "missing"})
	if !res.IsError {
		t.Errorf("get missing = %+v", res)
	}
}

func TestServer_DesignTool(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(
		provider.CompletionResponse{Content: "Which URL?"},
		provider.CompletionResponse{Content: "Fetching it."},
	)
	m := session.NewManager(func(id string, mem *memory.Store, opts ...agent.Option) *agent.Conversation {
		return agent.New(p, mem, append([]agent.Option{agent.WithID(id)}, opts...)...)
	}, nil)
	s := New(tool.NewRegistry(), "test", WithSessions(m))
	initialize(t, s)

	var first designResult
	res := call(t, s, ToolDesign, map[string]any{"message": "hi"})
	if err := json.Unmarshal([]byte(res.Content[0].Text), &first); err != nil {
		t.Fatal(err)
	}
	if first.SessionID == "" || first.Reply != "Which URL?" {
		t.Errorf("first = %+v", first)
	}

	var second designResult
	res = call(t, s, ToolDesign, map[string]any{"message": "https://news.test/", "session_id": first.SessionID})
	if err := json.Unmarshal([]byte(res.Content[0].Text), &second); err != nil {
		t.Fatal(err)
	}
	if second.SessionID != first.SessionID || m.Len() != 1 {
		t.Errorf("second = %+v, sessions = %d", second, m.Len())
	}

	if res := call(t, s, ToolDesign, map[string]any{"message": "x", "session_id": "gone"}); !res.IsError {
		t.Errorf("unknown session = %+v", res)
	}
}

// Package mcpserver exposes the design functions and saved parsers to
// Model Context Protocol clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/internal/tool"
)

// Names of the tools added on top of the function registry.
const (
	ToolListParsers = "list_parsers"
	ToolGetParser   = "get_parser"
	ToolMatchParser = "match_parser"
	ToolDesign      = "design_parser"
)

// Server adapts a tool.Registry to an MCP server. Registry functions share
// one page cache and memory, so fetch_webpage followed by
// parse_with_parser works across calls of the same client.
type Server struct {
	mcp      *server.MCPServer
	registry *tool.Registry
	store    record.Store
	sessions *session.Manager
	env      tool.Env
	logger   *slog.Logger
	tools    []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStore adds the saved parser tools.
func WithStore(st record.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithSessions adds design_parser, which runs full design turns.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) { s.sessions = m }
}

// New builds the server and registers every tool.
func New(reg *tool.Registry, version string, opts ...Option) *Server {
	s := &Server{
		registry: reg,
		env: tool.Env{
			SessionID: "mcp-" + uuid.NewString(),
			Memory:    memory.NewStore(nil),
			Pages:     tool.NewPageCache(0),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.mcp = server.NewMCPServer("parserdesk", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, schema := range reg.Schemas() {
		s.addFunction(schema)
	}
	if s.store != nil {
		s.addStoreTools()
	}
	if s.sessions != nil {
		s.addDesignTool()
	}
	return s
}

// Tools lists the registered tool names in registration order.
func (s *Server) Tools() []string { return s.tools }

func (s *Server) add(t mcp.Tool, h server.ToolHandlerFunc) {
	s.mcp.AddTool(t, h)
	s.tools = append(s.tools, t.Name)
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves one client on in and out until ctx ends or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio", "tools", s.tools)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) addFunction(schema tool.Schema) {
	params, err := json.Marshal(schema.Parameters)
	if err != nil {
		s.logger.Error("skipping function with unencodable parameters", "function", schema.Name, "error", err)
		return
	}
	name := schema.Name
	s.add(mcp.NewToolWithRawSchema(name, schema.Description, params),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in := req.GetArguments()
			if in == nil {
				in = map[string]any{}
			}
			args, err := json.Marshal(in)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out := s.registry.Execute(tool.WithEnv(ctx, s.env), name, args)
			return functionResult(out), nil
		})
}

// functionResult marks registry error documents as tool errors.
func functionResult(out json.RawMessage) *mcp.CallToolResult {
	res := mcp.NewToolResultText(string(out))
	var probe struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(out, &probe) == nil && probe.Error != "" {
		res.IsError = true
	}
	return res
}

func (s *Server) addStoreTools() {
	s.add(mcp.NewTool(ToolListParsers,
		mcp.WithDescription("List saved parsers with their URL patterns."),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		all, err := s.store.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		type summary struct {
			ID         int64  `json:"id"`
			Name       string `json:"name"`
			URLPattern string `json:"url_pattern"`
		}
		out := make([]summary, len(all))
		for i, r := range all {
			out[i] = summary{ID: r.ID, Name: r.Name, URLPattern: r.URLPattern}
		}
		return jsonResult(out)
	})

	s.add(mcp.NewTool(ToolGetParser,
		mcp.WithDescription("Return the url_pattern and parser_config of a saved parser."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Parser name")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rec, err := s.store.GetByName(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(parserView(rec))
	})

	s.add(mcp.NewTool(ToolMatchParser,
		mcp.WithDescription("Find the saved parser whose url_pattern matches a URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rec, err := record.Match(ctx, s.store, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(parserView(rec))
	})
}

// designResult is returned by design_parser.
type designResult struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Reply     string `json:"reply"`
}

func (s *Server) addDesignTool() {
	s.add(mcp.NewTool(ToolDesign,
		mcp.WithDescription("Send one message to a parser design session. Omit session_id to start a new session; reuse the returned id to continue it."),
		mcp.WithString("message", mcp.Required(), mcp.Description("User message")),
		mcp.WithString("session_id", mcp.Description("Existing session id")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sess, err := s.designSession(ctx, req.GetString("session_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		reply, err := sess.Converse(ctx, msg, agent.Options{})
		if err != nil {
			s.logger.Warn("design turn failed", "session", sess.ID(), "error", err)
			return mcp.NewToolResultError(agent.UserMessage(err)), nil
		}
		return jsonResult(designResult{SessionID: sess.ID(), State: reply.State.String(), Reply: reply.Text})
	})
}

func (s *Server) designSession(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return s.sessions.Create(ctx)
	}
	return s.sessions.Get(id)
}

type parserJSON struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	URLPattern   string          `json:"url_pattern"`
	ParserConfig json.RawMessage `json:"parser_config"`
}

func parserView(r record.Record) parserJSON {
	return parserJSON{ID: r.ID, Name: r.Name, URLPattern: r.URLPattern, ParserConfig: r.ParserConfig}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/parserdesk/internal/tool"
)

// MockFunction is a configurable tool.Function.
type MockFunction struct {
	NameValue   string
	ParamsValue *tool.Param
	ExecuteFunc func(ctx context.Context, args json.RawMessage) (any, error)

	mu    sync.Mutex
	calls []json.RawMessage
}

// Name implements tool.Function.
func (m *MockFunction) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock_function"
}

// Description implements tool.Function.
func (m *MockFunction) Description() string {
	return "mock function " + m.Name()
}

// Parameters implements tool.Function. The default accepts any object.
func (m *MockFunction) Parameters() tool.Param {
	if m.ParamsValue != nil {
		return *m.ParamsValue
	}
	return tool.Object(nil)
}

// Execute implements tool.Function.
func (m *MockFunction) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append(json.RawMessage(nil), args...))
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return map[string]any{"ok": true}, nil
}

// Calls returns the arguments of every Execute call so far.
func (m *MockFunction) Calls() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]json.RawMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

// Returning builds a MockFunction that always returns result.
func Returning(name string, result any) *MockFunction {
	return &MockFunction{
		NameValue: name,
		ExecuteFunc: func(context.Context, json.RawMessage) (any, error) {
			return result, nil
		},
	}
}

// Interface guard.
var _ tool.Function = (*MockFunction)(nil)

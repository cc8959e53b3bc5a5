// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/flemzord/parserdesk/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset Complete/Stream funcs
// panic on call; unset metadata funcs return fixed defaults.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc          func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc            func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ContextWindowSizeFunc func() int
	ModelNameFunc         func() string
	HealthCheckFunc       func(ctx context.Context) error

	mu            sync.Mutex
	CompleteCalls int
	StreamCalls   int
	HealthCalls   int
	Requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and records the request.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and records the request.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ContextWindowSize delegates to ContextWindowSizeFunc (default 4000).
func (m *MockProvider) ContextWindowSize() int {
	if m.ContextWindowSizeFunc == nil {
		return 4000
	}
	return m.ContextWindowSizeFunc()
}

// ModelName delegates to ModelNameFunc (default "mock-model").
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock-model"
	}
	return m.ModelNameFunc()
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	return m.HealthCheckFunc(ctx)
}

// Calls returns a copy of every request seen so far.
func (m *MockProvider) Calls() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// Scripted returns a MockProvider whose Complete answers with the given
// responses in order and fails once they are exhausted. Stream replays the
// same script, emitting each response's content as a single chunk
// followed by a chunk carrying its tool calls and usage.
func Scripted(responses ...provider.CompletionResponse) *MockProvider {
	var mu sync.Mutex
	next := func() (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			return provider.CompletionResponse{}, fmt.Errorf("providertest: script exhausted")
		}
		r := responses[0]
		responses = responses[1:]
		return r, nil
	}
	return &MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return next()
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			r, err := next()
			if err != nil {
				return nil, err
			}
			return replay(r), nil
		},
	}
}

func replay(r provider.CompletionResponse) <-chan provider.StreamChunk {
	usage := r.Usage
	finish := r.FinishReason
	if finish == "" {
		finish = provider.FinishReasonStop
	}
	ch := make(chan provider.StreamChunk, 2)
	if r.Content != "" {
		ch <- provider.StreamChunk{Content: r.Content}
	}
	ch <- provider.StreamChunk{ToolCalls: r.ToolCalls, FinishReason: finish, Usage: &usage}
	close(ch)
	return ch
}

// Chunks returns a closed channel carrying each part as one chunk,
// followed by a stop marker.
func Chunks(parts ...string) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(parts)+1)
	for _, p := range parts {
		ch <- provider.StreamChunk{Content: p}
	}
	ch <- provider.StreamChunk{FinishReason: provider.FinishReasonStop}
	close(ch)
	return ch
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)

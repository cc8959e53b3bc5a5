// Package provider defines the boundary to language models: the Provider
// interface, wire-neutral request/response types, error classification,
// and a failover chain with per-backend health tracking.
package provider

import "context"

// Provider is a language model backend. Implementations are registered
// as provider.* modules and published through a Chain.
type Provider interface {
	// Complete runs req and returns the whole reply.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream runs req incrementally. Errors establishing the stream are
	// returned; later ones arrive in the final chunk. The channel is
	// closed when the reply ends or ctx is done.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ContextWindowSize is the model's window in tokens, used to budget
	// history.
	ContextWindowSize() int

	// ModelName is the default model, used when a request leaves Model
	// empty.
	ModelName() string
}

// HealthChecker is implemented by providers that can be probed while the
// chain keeps them in cooldown.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

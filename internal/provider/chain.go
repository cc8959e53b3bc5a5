package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// AuthProfile holds a set of API keys for one backend and rotates through
// them when the backend rate-limits the current key.
type AuthProfile struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// ErrNoKeys is returned when NewAuthProfile is called without any keys.
var ErrNoKeys = errors.New("AuthProfile requires at least one key")

// NewAuthProfile creates an AuthProfile with the given keys.
func NewAuthProfile(keys ...string) (*AuthProfile, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return &AuthProfile{keys: keys}, nil
}

// CurrentKey returns the active API key.
func (a *AuthProfile) CurrentKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keys[a.idx]
}

// Rotate advances to the next key. It returns false when only one key exists.
func (a *AuthProfile) Rotate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.keys) <= 1 {
		return false
	}
	a.idx = (a.idx + 1) % len(a.keys)
	return true
}

// ChainEntry configures a single backend in the chain. Entries are tried
// in declaration order.
type ChainEntry struct {
	Name     string
	Provider Provider
	Auth     *AuthProfile
	Health   HealthConfig
}

type chainEntry struct {
	ChainEntry
	health *healthTracker
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger into the Chain.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// ChainService is the AppContext service key of the provisioned *Chain.
const ChainService = "provider.chain"

// Chain fails over across several backends. It satisfies Provider, so the
// conversation layer never needs to know how many backends are configured.
// The first entry provides the context window and default model name.
type Chain struct {
	entries []*chainEntry
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Compile-time interface check.
var _ Provider = (*Chain)(nil)

// NewChain creates a chain from the given entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}
	c := &Chain{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(nopHandler{})
	}

	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		ce := &chainEntry{ChainEntry: e, health: newHealthTracker(e.Health)}
		name := e.Name
		ce.health.onChange = func(from, to healthState) {
			switch to {
			case stateCooldown:
				c.logger.Warn("provider entered cooldown", "provider", name)
			case stateDead:
				c.logger.Error("provider marked dead", "provider", name)
			case stateHealthy:
				c.logger.Info("provider revived", "provider", name, "previous_state", from.String())
			}
		}
		c.entries = append(c.entries, ce)
	}
	return c, nil
}

// Start launches the background health probe loop.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	interval := c.entries[0].health.cfg.CheckInterval
	for _, e := range c.entries[1:] {
		interval = min(interval, e.health.cfg.CheckInterval)
	}
	go c.probe(ctx, interval)
}

// Stop cancels background health probes.
func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// ContextWindowSize implements Provider.
func (c *Chain) ContextWindowSize() int { return c.entries[0].Provider.ContextWindowSize() }

// ModelName implements Provider.
func (c *Chain) ModelName() string { return c.entries[0].Provider.ModelName() }

// Complete implements Provider with failover on retryable errors.
func (c *Chain) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var resp CompletionResponse
	err := c.try(ctx, func(e *chainEntry) error {
		var err error
		resp, err = e.Provider.Complete(ctx, req)
		if err == nil {
			e.health.success()
		}
		return err
	})
	return resp, err
}

// Stream implements Provider with failover on connection errors. Once a
// stream is open the chain commits to that backend.
func (c *Chain) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var out <-chan StreamChunk
	err := c.try(ctx, func(e *chainEntry) error {
		ch, err := e.Provider.Stream(ctx, req)
		if err == nil {
			out = c.watchStream(ch, e)
		}
		return err
	})
	return out, err
}

// try runs call against each available backend until one succeeds or
// returns a non-retryable error.
func (c *Chain) try(ctx context.Context, call func(*chainEntry) error) error {
	var lastErr error
	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.health.available() {
			continue
		}
		err := call(e)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
		if IsRateLimit(err) && e.Auth != nil && e.Auth.Rotate() {
			c.logger.Info("auth key rotated", "provider", e.Name)
		}
		e.health.failure()
		c.logger.Warn("provider failed, failing over", "provider", e.Name, "error", err)
	}
	if lastErr != nil {
		return fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	return fmt.Errorf("%w: all candidates unavailable", ErrAllProviders)
}

// watchStream forwards chunks and records the health verdict once the
// stream ends.
func (c *Chain) watchStream(src <-chan StreamChunk, e *chainEntry) <-chan StreamChunk {
	out := make(chan StreamChunk, cap(src))
	go func() {
		defer close(out)
		failed := false
		for chunk := range src {
			if chunk.Err != nil && IsRetryable(chunk.Err) && !failed {
				failed = true
				e.health.failure()
			}
			out <- chunk
		}
		if !failed {
			e.health.success()
		}
	}()
	return out
}

// HealthReport returns the state of every backend in declaration order.
func (c *Chain) HealthReport() []HealthStatus {
	out := make([]HealthStatus, 0, len(c.entries))
	for _, e := range c.entries {
		state, failures, _ := e.health.snapshot()
		out = append(out, HealthStatus{
			Name:     e.Name,
			Model:    e.Provider.ModelName(),
			State:    state.String(),
			Failures: failures,
		})
	}
	return out
}

func (c *Chain) probe(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range c.entries {
				if !e.health.needsProbe() {
					continue
				}
				if hc, ok := e.Provider.(HealthChecker); ok && hc.HealthCheck(ctx) == nil {
					e.health.success()
				}
			}
		}
	}
}

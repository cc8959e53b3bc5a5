package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/security"
)

// Execution outcomes reported to a Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnknown     = "unknown"
	OutcomeInvalid     = "invalid"
	OutcomeRateLimited = "rate_limited"
	OutcomePanic       = "panic"
)

// Recorder observes function executions, typically for metrics.
type Recorder interface {
	ObserveFunction(name, outcome string, elapsed time.Duration)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRateLimiter applies the function_call bucket of rl to every execution.
func WithRateLimiter(rl *security.RateLimiter) Option {
	return func(r *Registry) { r.limiter = rl }
}

// WithAuditLogger records calls and results.
func WithAuditLogger(al *security.AuditLogger) Option {
	return func(r *Registry) { r.audit = al }
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithRecorder sets a Recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// Registry maps function names to implementations. It is filled at startup
// and shared by every session.
type Registry struct {
	mu       sync.RWMutex
	funcs    map[string]Function
	logger   *slog.Logger
	limiter  *security.RateLimiter
	audit    *security.AuditLogger
	tracer   trace.Tracer
	recorder Recorder
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		funcs:  make(map[string]Function),
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("github.com/flemzord/parserdesk/internal/tool"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds fn. A function already registered under the same name is
// replaced and a warning is logged.
func (r *Registry) Register(fn Function) error {
	name := strings.TrimSpace(fn.Name())
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		r.logger.Warn("function re-registered, previous definition replaced", "function", name)
	}
	r.funcs[name] = fn
	return nil
}

// Resolve looks up a function by name.
func (r *Registry) Resolve(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schemas returns every function's schema sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Schema, 0, len(r.funcs))
	for name, fn := range r.funcs {
		out = append(out, Schema{Name: name, Description: fn.Description(), Parameters: fn.Parameters()})
	}
	slices.SortFunc(out, func(a, b Schema) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Definitions renders Schemas for a provider request.
func (r *Registry) Definitions() []provider.ToolDefinition {
	schemas := r.Schemas()
	defs := make([]provider.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		params, err := json.Marshal(s.Parameters)
		if err != nil {
			r.logger.Error("skipping function with unencodable parameters", "function", s.Name, "error", err)
			continue
		}
		defs = append(defs, provider.ToolDefinition{Name: s.Name, Description: s.Description, Parameters: params})
	}
	return defs
}

// Execute runs the named function and always returns a JSON document.
// Failures of any kind come back as {"error": "..."}; Execute itself never
// fails and never panics.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) json.RawMessage {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "function "+name, trace.WithAttributes(attribute.String("function.name", name)))
	defer span.End()

	env, _ := EnvFrom(ctx)
	logger := r.logger.With("function", name)
	if env.SessionID != "" {
		logger = logger.With("session", env.SessionID)
	}

	out, outcome := r.execute(ctx, logger, env, name, args)

	span.SetAttributes(attribute.String("function.outcome", outcome))
	if outcome != OutcomeOK {
		span.SetStatus(codes.Error, outcome)
	}
	if r.recorder != nil {
		r.recorder.ObserveFunction(name, outcome, time.Since(start))
	}
	return out
}

func (r *Registry) execute(ctx context.Context, logger *slog.Logger, env Env, name string, args json.RawMessage) (json.RawMessage, string) {
	fn, ok := r.Resolve(name)
	if !ok {
		logger.Warn("model called an unknown function")
		return errorResult(fmt.Sprintf("%s: %s", ErrUnknownFunction, name)), OutcomeUnknown
	}

	if r.limiter != nil {
		if err := r.limiter.Allow(security.BucketFunctionCall); err != nil {
			r.audit.Log(security.AuditEvent{
				Type:      security.EventRateLimit,
				SessionID: env.SessionID,
				Function:  name,
				Detail:    "function_call limit exceeded",
			})
			logger.Warn("function call rate limited")
			return errorResult(err.Error()), OutcomeRateLimited
		}
	}

	if err := CheckArgs(fn.Parameters(), args); err != nil {
		logger.Info("rejected function arguments", "error", err)
		return errorResult(err.Error()), OutcomeInvalid
	}

	r.audit.Log(security.AuditEvent{
		Type:      security.EventFunctionCall,
		SessionID: env.SessionID,
		Function:  name,
		Detail:    truncateForAudit(string(args)),
	})

	result, err := invoke(ctx, fn, args)
	outcome := OutcomeOK

	var out json.RawMessage
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		logger.Error("function panicked", "panic", pe.value)
		out, outcome = errorResult(err.Error()), OutcomePanic
	case err != nil:
		logger.Info("function returned an error", "error", err)
		out, outcome = errorResult(err.Error()), OutcomeError
	default:
		encoded, merr := json.Marshal(result)
		if merr != nil {
			logger.Error("function result is not JSON-encodable", "error", merr)
			out, outcome = errorResult("encode result: "+merr.Error()), OutcomeError
		} else {
			out = encoded
		}
	}

	r.audit.Log(security.AuditEvent{
		Type:      security.EventFunctionResult,
		SessionID: env.SessionID,
		Function:  name,
		Detail:    truncateForAudit(string(out)),
		Metadata:  map[string]string{"outcome": outcome},
	})
	return out, outcome
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func invoke(ctx context.Context, fn Function, args json.RawMessage) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			result, err = nil, &panicError{value: v}
		}
	}()
	return fn.Execute(ctx, args)
}

func errorResult(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

const maxAuditDetailLen = 4096

// truncateForAudit cuts s at a rune boundary.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}

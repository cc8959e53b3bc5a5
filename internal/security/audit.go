package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorises audit events.
type EventType string

// Audit event types.
const (
	EventTurn           EventType = "turn"
	EventFunctionCall   EventType = "function_call"
	EventFunctionResult EventType = "function_result"
	EventRateLimit      EventType = "rate_limit"
	EventSessionCreate  EventType = "session_create"
	EventSessionDelete  EventType = "session_delete"
	EventParserSave     EventType = "parser_save"
	EventParserDelete   EventType = "parser_delete"
	EventAuthFailure    EventType = "auth_failure"
)

// AuditEvent is one JSONL line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Function  string            `json:"function,omitempty"`
	Remote    string            `json:"remote,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger.
type AuditLoggerConfig struct {
	// Writer receives JSONL. Nil disables writing.
	Writer io.Writer

	// Redactor is applied to Detail and Metadata values.
	Redactor *Redactor

	// OnEvent observes every event after redaction.
	OnEvent func(AuditEvent)

	Now func() time.Time
}

// AuditLogger serialises audit events. Safe for concurrent use.
type AuditLogger struct {
	mu       sync.Mutex
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log stamps and records event. The caller's Metadata map is not modified.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}

// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"slices"
	"sync"

	"github.com/flemzord/parserdesk/internal/security"
)

// NewTestRedactor returns a Redactor without patterns, so test fixtures that
// look like keys survive.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestAuditLogger returns an AuditLogger that keeps events in memory and
// a function returning a copy of them.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	return logger, func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(events)
	}
}

package memory

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// OpKind classifies an operation log entry.
type OpKind string

// Operation kinds.
const (
	OpSet         OpKind = "set"
	OpStateChange OpKind = "state_change"
	OpClear       OpKind = "clear"
)

// OpEntry is one audited mutation. IDs are ULIDs, so they sort in
// insertion order.
type OpEntry struct {
	ID      string         `json:"id"`
	Kind    OpKind         `json:"kind"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// OpLog is an append-only record of memory writes and state changes.
// It is safe for concurrent use.
type OpLog struct {
	mu      sync.RWMutex
	entries []OpEntry
	now     func() time.Time
}

// NewOpLog creates an empty log.
func NewOpLog() *OpLog {
	return &OpLog{now: time.Now}
}

// Append records an entry and returns it.
func (l *OpLog) Append(kind OpKind, payload map[string]any) OpEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	at := l.now()
	e := OpEntry{
		ID:      ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Kind:    kind,
		Payload: cloneMap(payload),
		At:      at,
	}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of all entries in order.
func (l *OpLog) Entries() []OpEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]OpEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *OpLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recent entry of kind, if any.
func (l *OpLog) Last(kind OpKind) (OpEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Kind == kind {
			return l.entries[i], true
		}
	}
	return OpEntry{}, false
}

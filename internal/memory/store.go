// Package memory holds the per-session working memory of a parser design
// conversation: a JSON key/value store with an audit log of every write,
// the visible chat history, and the companion log of raw directive replies.
package memory

import (
	"maps"
	"slices"
	"sync"
)

// Conventional keys written by the workflow and by function results.
const (
	KeyURL           = "url"
	KeyHTML          = "html"
	KeyTitle         = "title"
	KeyDate          = "date"
	KeyBody          = "body"
	KeyParserCode    = "parser_code"
	KeyParsingResult = "parsing_result"
	KeySelectors     = "selectors"
)

// Store is a session's key/value memory. Values are JSON-compatible
// (string, float64, bool, nil, []any, map[string]any). Every Set is
// recorded in the attached OpLog.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
	log  *OpLog
}

// NewStore creates an empty store writing to log. A nil log gets a fresh one.
func NewStore(log *OpLog) *Store {
	if log == nil {
		log = NewOpLog()
	}
	return &Store{data: make(map[string]any), log: log}
}

// Log returns the operation log the store writes to.
func (s *Store) Log() *OpLog { return s.log }

// Get returns the values of the requested keys. Missing keys are absent
// from the result; the result is never nil.
func (s *Store) Get(keys ...string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = cloneValue(v)
		}
	}
	return out
}

// Value returns a single value.
func (s *Store) Value(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return cloneValue(v), ok
}

// String returns the value of key when it is a non-empty string.
func (s *Store) String(key string) (string, bool) {
	v, ok := s.Value(key)
	str, isStr := v.(string)
	return str, ok && isStr && str != ""
}

// Set merges values into the store and appends one "set" log entry
// carrying the full payload. An empty map is a no-op.
func (s *Store) Set(values map[string]any) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	for k, v := range values {
		s.data[k] = cloneValue(v)
	}
	s.mu.Unlock()
	s.log.Append(OpSet, values)
}

// Snapshot returns a copy of the whole store.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.data)
}

// Clear empties the store and logs a "clear" entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.data = make(map[string]any)
	s.mu.Unlock()
	s.log.Append(OpClear, nil)
}

// Load replaces the content without logging. It is used when a session
// is rehydrated from a saved parser.
func (s *Store) Load(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = cloneMap(data)
	if s.data == nil {
		s.data = make(map[string]any)
	}
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data))
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Missing returns the keys, in argument order, that are not stored. A key
// holding null is stored.
func (s *Store) Missing(keys ...string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, k := range keys {
		if _, ok := s.data[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Has reports whether every key is present.
func (s *Store) Has(keys ...string) bool {
	return len(s.Missing(keys...)) == 0
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

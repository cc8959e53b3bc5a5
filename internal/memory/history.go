package memory

import (
	"sync"
	"time"

	"github.com/flemzord/parserdesk/internal/provider"
)

// Message is one entry of the visible conversation.
type Message struct {
	Role      provider.MessageRole `json:"role"`
	Text      string               `json:"text"`
	Timestamp time.Time            `json:"timestamp"`
}

// History is the append-only visible conversation of a session.
// It is safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{now: time.Now}
}

// Append adds messages, stamping any without a timestamp.
func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = h.now()
		}
		h.messages = append(h.messages, m)
	}
}

// All returns a copy of every message.
func (h *History) All() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Recent returns up to n of the newest messages.
func (h *History) Recent(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	start := max(len(h.messages)-n, 0)
	out := make([]Message, len(h.messages)-start)
	copy(out, h.messages[start:])
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// LLMMessages converts the history for a completion request.
func (h *History) LLMMessages() []provider.LLMMessage {
	return ToLLM(h.All())
}

// ToLLM converts messages to provider messages.
func ToLLM(msgs []Message) []provider.LLMMessage {
	out := make([]provider.LLMMessage, len(msgs))
	for i, m := range msgs {
		out[i] = provider.LLMMessage{Role: m.Role, Content: m.Text}
	}
	return out
}

// ConversationEntry pairs a raw model reply that carried directives with
// its cleaned form.
type ConversationEntry struct {
	Raw       string    `json:"raw"`
	Cleaned   string    `json:"cleaned"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationLog is the companion log of directive-bearing replies. It is
// kept apart from History so the user never sees raw control tags.
type ConversationLog struct {
	mu      sync.RWMutex
	entries []ConversationEntry
}

// Append records a raw/cleaned pair.
func (c *ConversationLog) Append(raw, cleaned string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, ConversationEntry{Raw: raw, Cleaned: cleaned, Timestamp: time.Now()})
}

// Entries returns a copy of all entries.
func (c *ConversationLog) Entries() []ConversationEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ConversationEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

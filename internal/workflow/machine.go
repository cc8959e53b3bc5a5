package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flemzord/parserdesk/internal/memory"
)

// Machine tracks the current state of one session. Transitions read the
// session memory for prerequisites and are recorded in its operation log.
type Machine struct {
	mu      sync.Mutex
	current State
	mem     *memory.Store
	logger  *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger used for refused transitions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// NewMachine creates a machine in the initial state.
func NewMachine(mem *memory.Store, opts ...Option) *Machine {
	m := &Machine{current: Initial, mem: mem}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to target when target is RECOVERY or a known state whose
// required memory is present. Any other request moves to RECOVERY. Both
// outcomes append a state_change entry; the result reports whether target
// was reached.
func (m *Machine) Transition(target State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	var missing []string
	ok := target == Recovery
	if !ok && target.Known() {
		missing = m.mem.Missing(target.Requires()...)
		ok = len(missing) == 0
	}

	to := target
	if !ok {
		to = Recovery
		m.logger.LogAttrs(context.Background(), slog.LevelWarn, "transition refused",
			slog.String("from", string(from)),
			slog.String("requested", string(target)),
			slog.Any("missing", missing),
		)
	}
	m.current = to

	payload := map[string]any{
		"from":      string(from),
		"to":        string(to),
		"requested": string(target),
		"ok":        ok,
	}
	if len(missing) > 0 {
		keys := make([]any, len(missing))
		for i, k := range missing {
			keys[i] = k
		}
		payload["missing"] = keys
	}
	m.mem.Log().Append(memory.OpStateChange, payload)
	return ok
}

// ResumeTarget picks the furthest state the stored memory supports.
func (m *Machine) ResumeTarget() State {
	switch {
	case m.mem.Has(memory.KeyParsingResult):
		return FinalConfirmation
	case m.mem.Has(memory.KeyParserCode):
		return TestingParser
	case m.mem.Has(memory.KeyTitle):
		return CreatingParser
	case m.mem.Has(memory.KeyHTML):
		return AnalyzingContent
	case m.mem.Has(memory.KeyURL):
		return FetchingHTML
	default:
		return WaitingForURL
	}
}

// Resume transitions to ResumeTarget. It reports false when the
// resume target's own prerequisites are incomplete, e.g. a title without
// html, in which case the machine stays in RECOVERY.
func (m *Machine) Resume() bool {
	return m.Transition(m.ResumeTarget())
}

// Restore sets the state without checks or logging. Unknown or empty
// names restore the initial state.
func (m *Machine) Restore(name string) State {
	s, ok := ParseState(name)
	if !ok {
		s = Initial
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s
}

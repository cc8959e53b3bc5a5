// Package session keeps the live parser design sessions of a process. Each
// session owns its memory, history and state machine; the manager creates
// them, reopens them from saved parser records, saves them back and reaps
// the idle ones.
package session

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
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/workflow"
)

// Sentinel errors.
var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
	ErrNoParserConfig  = errors.New("no parser configuration to save; test a parser first")
	ErrNoStore         = errors.New("no parser store configured")
)

// ServiceName is the AppContext service key of the *Manager.
const ServiceName = "session.manager"

// DefaultIdle is how long a session may stay unused before Prune drops it.
const DefaultIdle = 30 * time.Minute

// saveConcurrency bounds parallel saves in SaveAll.
const saveConcurrency = 4

// Builder creates the conversation of a new session over mem. opts carry
// the state of a reopened record and go last.
type Builder func(id string, mem *memory.Store, opts ...agent.Option) *agent.Conversation

// Config tunes the manager.
type Config struct {
	// Idle is the inactivity after which Prune removes a session.
	Idle time.Duration `yaml:"session_idle"`

	// MaxSessions caps live sessions. Zero means unlimited.
	MaxSessions int `yaml:"max_sessions"`

	// Autosave saves dirty sessions bound to a record before Prune drops
	// them.
	Autosave bool `yaml:"autosave"`
}

func (c *Config) defaults() {
	if c.Idle <= 0 {
		c.Idle = DefaultIdle
	}
}

// SaveRequest describes a save. Empty fields of a bound session keep the
// record's current values.
type SaveRequest struct {
	Name        string `json:"name"`
	URLPattern  string `json:"url_pattern"`
	Description string `json:"description,omitempty"`
	// ParserConfig overrides the configuration found in the session.
	ParserConfig json.RawMessage `json:"parser_config,omitempty"`
}

// Manager owns the live sessions. It is safe for concurrent use.
type Manager struct {
	build  Builder
	store  record.Store
	config Config
	logger *slog.Logger
	audit  *security.AuditLogger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithAuditLogger records session lifecycle and saves.
func WithAuditLogger(a *security.AuditLogger) Option {
	return func(m *Manager) { m.audit = a }
}

// WithConfig sets the manager configuration.
func WithConfig(c Config) Option {
	return func(m *Manager) { m.config = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager. store may be nil, in which case Open and
// Save fail with ErrNoStore.
func NewManager(build Builder, store record.Store, opts ...Option) *Manager {
	m := &Manager{
		build:    build,
		store:    store,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.config.defaults()
	return m
}

// Create starts an empty session.
func (m *Manager) Create(_ context.Context) (*Session, error) {
	id := uuid.NewString()
	mem := memory.NewStore(nil)
	return m.add(id, m.build(id, mem), 0, "")
}

// Open starts a session from a saved record: its history, memory and
// state are restored. A record without a saved state starts in the
// initial state.
func (m *Manager) Open(ctx context.Context, parserID int64) (*Session, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	rec, err := m.store.Get(ctx, parserID)
	if err != nil {
		return nil, err
	}
	chat, err := rec.Chat()
	if err != nil {
		return nil, fmt.Errorf("session: open parser %d: %w", parserID, err)
	}

	id := uuid.NewString()
	mem := memory.NewStore(nil)
	mem.Load(chat.Memory)
	hist := memory.NewHistory()
	hist.Append(chat.ChatHistory...)
	machine := workflow.NewMachine(mem, workflow.WithLogger(m.logger))
	machine.Restore(chat.State)

	conv := m.build(id, mem, agent.WithHistory(hist), agent.WithMachine(machine))
	s, err := m.add(id, conv, rec.ID, rec.Name)
	if err != nil {
		return nil, err
	}
	if len(rec.ParserConfig) > 0 && string(rec.ParserConfig) != "{}" {
		s.mu.Lock()
		s.lastConfig = rec.ParserConfig
		s.mu.Unlock()
	}
	return s, nil
}

func (m *Manager) add(id string, conv *agent.Conversation, parserID int64, parserName string) (*Session, error) {
	now := m.now()
	s := &Session{id: id, created: now, lastActive: now, conv: conv, now: m.now}
	s.bind(parserID, parserName)

	m.mu.Lock()
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.config.MaxSessions)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created", "session", id, "parser_id", parserID)
	m.audit.Log(security.AuditEvent{
		Type:      security.EventSessionCreate,
		SessionID: id,
		Detail:    parserName,
	})
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List summarises live sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Info, len(all))
	for i, s := range all {
		out[i] = s.Info()
	}
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Autosave reports whether dirty bound sessions are saved periodically and
// before they are pruned.
func (m *Manager) Autosave() bool { return m.config.Autosave }

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Delete drops a live session. Saved records are not touched.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.logger.Info("session deleted", "session", id)
	m.audit.Log(security.AuditEvent{Type: security.EventSessionDelete, SessionID: id})
	return nil
}

// Save creates or updates the parser record of a session. A bound session
// updates its record; otherwise a record with the same name is updated,
// or a new one is created. The session is bound to the result.
func (m *Manager) Save(ctx context.Context, id string, req SaveRequest) (record.Record, error) {
	if m.store == nil {
		return record.Record{}, ErrNoStore
	}
	s, err := m.Get(id)
	if err != nil {
		return record.Record{}, err
	}
	return m.save(ctx, s, req)
}

func (m *Manager) save(ctx context.Context, s *Session, req SaveRequest) (record.Record, error) {
	var existing *record.Record
	if pid := s.ParserID(); pid != 0 {
		r, err := m.store.Get(ctx, pid)
		switch {
		case err == nil:
			existing = &r
		case !errors.Is(err, record.ErrNotFound):
			return record.Record{}, err
		}
	}
	name := strings.TrimSpace(req.Name)
	if existing == nil && name != "" {
		r, err := m.store.GetByName(ctx, name)
		switch {
		case err == nil:
			existing = &r
		case !errors.Is(err, record.ErrNotFound):
			return record.Record{}, err
		}
	}

	rec := record.Record{Name: name, URLPattern: req.URLPattern}
	if existing != nil {
		rec.ID = existing.ID
		if rec.Name == "" {
			rec.Name = existing.Name
		}
		if rec.URLPattern == "" {
			rec.URLPattern = existing.URLPattern
		}
	}

	switch cfg, ok := s.ParserConfig(); {
	case len(req.ParserConfig) > 0:
		rec.ParserConfig = req.ParserConfig
	case ok:
		rec.ParserConfig = cfg
	case existing != nil:
		rec.ParserConfig = existing.ParserConfig
	default:
		return record.Record{}, ErrNoParserConfig
	}

	chat := s.ChatData()
	url, _ := s.conv.Memory().String(memory.KeyURL)
	meta := record.MetaData{LastUpdated: m.now().UTC(), URL: url, Description: req.Description}
	if req.Description == "" && existing != nil {
		if old, err := existing.Meta(); err == nil {
			meta.Description = old.Description
		}
	}
	var err error
	if rec.ChatData, err = record.Encode(chat); err != nil {
		return record.Record{}, fmt.Errorf("session: encode chat data: %w", err)
	}
	if rec.MetaData, err = record.Encode(meta); err != nil {
		return record.Record{}, fmt.Errorf("session: encode metadata: %w", err)
	}

	if existing != nil {
		err = m.store.Update(ctx, &rec)
	} else {
		err = m.store.Create(ctx, &rec)
	}
	if err != nil {
		return record.Record{}, err
	}

	s.bind(rec.ID, rec.Name)
	m.logger.Info("parser saved", "session", s.id, "parser_id", rec.ID, "name", rec.Name, "created", existing == nil)
	m.audit.Log(security.AuditEvent{
		Type:      security.EventParserSave,
		SessionID: s.id,
		Detail:    rec.Name,
	})
	return rec, nil
}

// SaveAll saves every dirty session bound to a record and returns how many
// were saved.
func (m *Manager) SaveAll(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	m.mu.RLock()
	var pending []*Session
	for _, s := range m.sessions {
		if s.ParserID() != 0 && s.Dirty() {
			pending = append(pending, s)
		}
	}
	m.mu.RUnlock()

	var saved atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(saveConcurrency)
	for _, s := range pending {
		g.Go(func() error {
			if _, err := m.save(gctx, s, SaveRequest{}); err != nil {
				return fmt.Errorf("session %s: %w", s.id, err)
			}
			saved.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(saved.Load()), err
}

// Prune removes sessions idle for longer than Config.Idle and returns how
// many were removed. With Config.Autosave, dirty bound sessions are saved
// first; a failed save keeps the session for the next pass.
func (m *Manager) Prune(ctx context.Context) int {
	cutoff := m.now().Add(-m.config.Idle)

	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	pruned := 0
	for _, s := range idle {
		if m.config.Autosave && m.store != nil && s.ParserID() != 0 && s.Dirty() {
			if _, err := m.save(ctx, s, SaveRequest{}); err != nil {
				m.logger.Warn("autosave before prune failed", "session", s.id, "error", err)
				continue
			}
		}
		m.mu.Lock()
		// Re-check: a turn may have started since the scan.
		if cur, ok := m.sessions[s.id]; ok && cur == s && s.LastActive().Before(cutoff) {
			delete(m.sessions, s.id)
			pruned++
		}
		m.mu.Unlock()
	}
	if pruned > 0 {
		m.logger.Info("idle sessions pruned", "count", pruned, "idle", m.config.Idle)
	}
	return pruned
}

package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/tool/builtin"
	"github.com/flemzord/parserdesk/internal/workflow"
)

// Session is one parser design conversation plus its binding to a saved
// record.
type Session struct {
	id      string
	created time.Time
	conv    *agent.Conversation
	now     func() time.Time

	mu         sync.Mutex
	lastActive time.Time
	parserID   int64
	parserName string
	// lastConfig is the parser_config of the latest successful
	// parse_with_parser call.
	lastConfig   json.RawMessage
	savedHistory int
	savedOps     int
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID         string         `json:"id"`
	State      workflow.State `json:"state"`
	ParserID   int64          `json:"parser_id,omitempty"`
	ParserName string         `json:"parser_name,omitempty"`
	Created    time.Time      `json:"created"`
	LastActive time.Time      `json:"last_active"`
	HistoryLen int            `json:"history_len"`
	OpLogLen   int            `json:"op_log_len"`
	MemoryKeys []string       `json:"memory_keys"`
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Conversation returns the underlying conversation.
func (s *Session) Conversation() *agent.Conversation { return s.conv }

// Converse runs a turn and records activity.
func (s *Session) Converse(ctx context.Context, input string, opts agent.Options) (agent.Reply, error) {
	s.touch()
	reply, err := s.conv.Converse(ctx, input, opts)
	if err == nil {
		s.observe(reply)
	}
	s.touch()
	return reply, err
}

// ConverseStream runs a streamed turn. Events are forwarded unchanged.
func (s *Session) ConverseStream(ctx context.Context, input string, opts agent.Options) (<-chan agent.Event, error) {
	s.touch()
	in, err := s.conv.ConverseStream(ctx, input, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan agent.Event, cap(in))
	go func() {
		defer close(out)
		for e := range in {
			if e.Type == agent.EventDone && e.Reply != nil {
				s.observe(*e.Reply)
			}
			select {
			case out <- e:
			case <-ctx.Done():
			}
		}
		s.touch()
	}()
	return out, nil
}

// Resume moves the state machine to the furthest state memory supports.
func (s *Session) Resume() (workflow.State, bool) {
	s.touch()
	ok := s.conv.Machine().Resume()
	return s.conv.Machine().Current(), ok
}

// Info summarises the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		State:      s.conv.Machine().Current(),
		ParserID:   s.parserID,
		ParserName: s.parserName,
		Created:    s.created,
		LastActive: s.lastActive,
		HistoryLen: s.conv.History().Len(),
		OpLogLen:   s.conv.Memory().Log().Len(),
		MemoryKeys: s.conv.Memory().Keys(),
	}
}

// ParserID returns the bound record, 0 when unbound.
func (s *Session) ParserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parserID
}

// Dirty reports whether the conversation changed since the last save.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.History().Len() != s.savedHistory || s.conv.Memory().Log().Len() != s.savedOps
}

// LastActive returns the time of the latest turn.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// ChatData captures what is needed to reopen the session.
func (s *Session) ChatData() record.ChatData {
	return record.ChatData{
		ChatHistory: s.conv.History().All(),
		Memory:      s.conv.Memory().Snapshot(),
		State:       s.conv.Machine().Current().String(),
	}
}

// ParserConfig returns the configuration to save: the latest one tested
// with parse_with_parser, else a parser_code memory value that decodes
// as one.
func (s *Session) ParserConfig() (json.RawMessage, bool) {
	s.mu.Lock()
	last := s.lastConfig
	s.mu.Unlock()
	if len(last) > 0 {
		return last, true
	}

	v, ok := s.conv.Memory().Value(memory.KeyParserCode)
	if !ok {
		return nil, false
	}
	var raw json.RawMessage
	switch v := v.(type) {
	case string:
		raw = json.RawMessage(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		raw = data
	}
	var cfg scrape.ParserConfig
	if err := json.Unmarshal(raw, &cfg); err != nil || (cfg.Type != scrape.TypeList && cfg.Type != scrape.TypeContent) {
		return nil, false
	}
	return raw, true
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

func (s *Session) observe(reply agent.Reply) {
	for _, fc := range reply.Functions {
		if fc.Name != builtin.NameParseWithParser {
			continue
		}
		var result map[string]any
		if err := json.Unmarshal(fc.Result, &result); err != nil {
			continue
		}
		if _, failed := result["error"]; failed {
			continue
		}
		var args struct {
			ParserConfig json.RawMessage `json:"parser_config"`
		}
		if err := json.Unmarshal(fc.Arguments, &args); err != nil || len(args.ParserConfig) == 0 {
			continue
		}
		s.mu.Lock()
		s.lastConfig = args.ParserConfig
		s.mu.Unlock()
	}
}

func (s *Session) bind(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parserID = id
	s.parserName = name
	s.savedHistory = s.conv.History().Len()
	s.savedOps = s.conv.Memory().Log().Len()
}

package workflow

import (
	"strings"
	"testing"

	"github.com/flemzord/parserdesk/internal/memory"
)

func newMachine(values map[string]any) (*Machine, *memory.Store) {
	mem := memory.NewStore(nil)
	mem.Set(values)
	return NewMachine(mem), mem
}

func TestParseState(t *testing.T) {
	t.Parallel()

	for _, s := range States() {
		got, ok := ParseState(" " + string(s) + "\n")
		if !ok || got != s {
			t.Errorf("ParseState(%q) = %q, %v", s, got, ok)
		}
	}
	if _, ok := ParseState("waiting_for_url"); ok {
		t.Error("state names are case-sensitive")
	}
	if len(States()) != 8 {
		t.Errorf("States() = %d, want 8", len(States()))
	}
}

func TestTransition_MissingPrerequisitesForcesRecovery(t *testing.T) {
	t.Parallel()

	m, mem := newMachine(nil)
	if ok := m.Transition(TestingParser); ok {
		t.Fatal("transition should be refused")
	}
	if m.Current() != Recovery {
		t.Fatalf("Current = %s, want RECOVERY", m.Current())
	}

	e, ok := mem.Log().Last(memory.OpStateChange)
	if !ok {
		t.Fatal("state change not logged")
	}
	if e.Payload["from"] != "WAITING_FOR_URL" || e.Payload["to"] != "RECOVERY" || e.Payload["ok"] != false {
		t.Errorf("payload = %+v", e.Payload)
	}
	missing, _ := e.Payload["missing"].([]any)
	if len(missing) != 2 || missing[0] != "html" || missing[1] != "parser_code" {
		t.Errorf("missing = %v", e.Payload["missing"])
	}
}

func TestTransition_PrerequisitesMet(t *testing.T) {
	t.Parallel()

	m, mem := newMachine(map[string]any{"html": "<html/>", "parser_code": "{}"})
	if !m.Transition(TestingParser) {
		t.Fatal("transition should succeed")
	}
	if m.Current() != TestingParser {
		t.Errorf("Current = %s", m.Current())
	}
	e, _ := mem.Log().Last(memory.OpStateChange)
	if e.Payload["ok"] != true {
		t.Errorf("payload = %+v", e.Payload)
	}
}

func TestTransition_NullValueSatisfiesPrerequisite(t *testing.T) {
	t.Parallel()

	m, _ := newMachine(map[string]any{"url": nil})
	if !m.Transition(FetchingHTML) {
		t.Fatalf("transition refused, current = %s", m.Current())
	}
	if m.Current() != FetchingHTML {
		t.Errorf("Current = %s", m.Current())
	}
	if got := m.ResumeTarget(); got != FetchingHTML {
		t.Errorf("ResumeTarget = %s, want FETCHING_HTML", got)
	}
}

func TestTransition_RecoveryAndInitialAlwaysAllowed(t *testing.T) {
	t.Parallel()

	m, _ := newMachine(nil)
	if !m.Transition(Recovery) || m.Current() != Recovery {
		t.Fatal("RECOVERY must always be reachable")
	}
	if !m.Transition(WaitingForURL) || m.Current() != WaitingForURL {
		t.Fatal("WAITING_FOR_URL has no prerequisites")
	}
}

func TestTransition_UnknownStateForcesRecovery(t *testing.T) {
	t.Parallel()

	m, _ := newMachine(map[string]any{"url": "u"})
	if m.Transition(State("DANCING")) {
		t.Fatal("unknown state accepted")
	}
	if m.Current() != Recovery {
		t.Errorf("Current = %s", m.Current())
	}
}

func TestResume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values map[string]any
		want   State
	}{
		{"empty", nil, WaitingForURL},
		{"url", map[string]any{"url": "u"}, FetchingHTML},
		{"html", map[string]any{"url": "u", "html": "h"}, AnalyzingContent},
		{"extraction", map[string]any{"html": "h", "title": "t", "date": "d", "body": "b"}, CreatingParser},
		{"parser", map[string]any{"html": "h", "parser_code": "p"}, TestingParser},
		{"result", map[string]any{"url": "u", "parsing_result": map[string]any{"parser_type": "list"}}, FinalConfirmation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newMachine(tt.values)
			m.Transition(Recovery)
			if got := m.ResumeTarget(); got != tt.want {
				t.Fatalf("ResumeTarget = %s, want %s", got, tt.want)
			}
			if !m.Resume() || m.Current() != tt.want {
				t.Errorf("Resume landed in %s", m.Current())
			}
		})
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	m, mem := newMachine(nil)
	before := mem.Log().Len()
	if got := m.Restore("TESTING_PARSER"); got != TestingParser {
		t.Errorf("Restore = %s", got)
	}
	if got := m.Restore(""); got != WaitingForURL {
		t.Errorf("Restore(\"\") = %s", got)
	}
	if mem.Log().Len() != before {
		t.Error("Restore must not log")
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	out := Describe()
	for _, want := range []string{"S1: WAITING_FOR_URL", "S6: TESTING_PARSER", "Required memory: html, parser_code", "Valid inputs:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe() missing %q", want)
		}
	}
}

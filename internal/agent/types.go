// Package agent runs conversation turns. A turn composes the prompt from
// the session's memory and state, calls the model, applies the control
// directives found in its reply and executes any function calls it
// requests, looping until the model answers without one.
package agent

import (
	"encoding/json"
	"time"

	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/workflow"
)

// FunctionCall records one function invocation made during a turn.
type FunctionCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
	Round     int             `json:"round"`
	Duration  time.Duration   `json:"duration"`
}

// Reply is the outcome of a successful turn.
type Reply struct {
	// Text is the cleaned, user-facing reply. Turns with function rounds
	// join the text of every round.
	Text      string              `json:"text"`
	State     workflow.State      `json:"state"`
	Functions []FunctionCall      `json:"functions,omitempty"`
	Usage     provider.TokenUsage `json:"usage"`
	// Calls counts model calls, Rounds function rounds.
	Calls  int `json:"calls"`
	Rounds int `json:"rounds"`
	// Dropped is how many old history messages the last request left out.
	Dropped int `json:"dropped"`
}

// EventType identifies the kind of streaming event.
type EventType string

// EventType constants for streaming events.
const (
	EventText     EventType = "text"
	EventFunction EventType = "function"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is a single event emitted by ConverseStream.
type Event struct {
	Type     EventType
	Text     string
	Function *FunctionCall
	// Reply is set on EventDone.
	Reply *Reply
	// Err is set on EventError.
	Err error
}

// Package workflow implements the parser design state machine. Each state
// declares the memory keys it needs; a transition whose prerequisites are
// missing is refused and the session drops into RECOVERY instead.
package workflow

import (
	"fmt"
	"strings"

	"github.com/flemzord/parserdesk/internal/memory"
)

// State is a step of the parser design workflow.
type State string

// Workflow states.
const (
	WaitingForURL        State = "WAITING_FOR_URL"
	FetchingHTML         State = "FETCHING_HTML"
	AnalyzingContent     State = "ANALYZING_CONTENT"
	ConfirmingExtraction State = "CONFIRMING_EXTRACTION"
	CreatingParser       State = "CREATING_PARSER"
	TestingParser        State = "TESTING_PARSER"
	FinalConfirmation    State = "FINAL_CONFIRMATION"
	Recovery             State = "RECOVERY"
)

// Initial is the state of a new or rehydrated-without-state session.
const Initial = WaitingForURL

// stateSpec is the static description of a state. Inputs is guidance
// rendered into the system prompt; it is not enforced.
type stateSpec struct {
	state    State
	requires []string
	action   string
	inputs   []string
}

var specs = []stateSpec{
	{
		state:  WaitingForURL,
		action: "Ask the user for the URL of the page to parse.",
		inputs: []string{
			"a URL -> store it and go to FETCHING_HTML",
			`"help" -> list available commands`,
			"anything unrelated -> stay here and restate your purpose",
		},
	},
	{
		state:    FetchingHTML,
		requires: []string{memory.KeyURL},
		action:   "Call fetch_webpage for the stored url.",
		inputs: []string{
			`"retry" -> fetch again`,
			`"change url" -> go to WAITING_FOR_URL`,
		},
	},
	{
		state:    AnalyzingContent,
		requires: []string{memory.KeyHTML},
		action:   "Identify the page type and extract title, date and body.",
		inputs: []string{
			`"retry" -> analyse again`,
			`"new url" -> go to WAITING_FOR_URL`,
		},
	},
	{
		state:    ConfirmingExtraction,
		requires: []string{memory.KeyTitle, memory.KeyDate, memory.KeyBody},
		action:   "Show the extracted fields and ask for confirmation.",
		inputs: []string{
			`"yes" -> go to CREATING_PARSER`,
			`"no" or "modify X" -> go back to ANALYZING_CONTENT`,
			`"new url" -> go to WAITING_FOR_URL`,
		},
	},
	{
		state:    CreatingParser,
		requires: []string{memory.KeyHTML, memory.KeyTitle, memory.KeyDate, memory.KeyBody},
		action:   "Write the parser configuration and store it as parser_code.",
		inputs: []string{
			`"test" -> go to TESTING_PARSER`,
			`"start over" -> go to WAITING_FOR_URL`,
		},
	},
	{
		state:    TestingParser,
		requires: []string{memory.KeyHTML, memory.KeyParserCode},
		action:   "Call parse_with_parser with the stored configuration.",
		inputs: []string{
			`"retry" -> test again`,
			`"modify" -> go to CREATING_PARSER`,
		},
	},
	{
		state:    FinalConfirmation,
		requires: []string{memory.KeyParsingResult},
		action:   "Show the parsing result and ask what to do next.",
		inputs: []string{
			`"save" -> the user saves the parser, then go to WAITING_FOR_URL`,
			`"modify" -> go to CREATING_PARSER`,
			`"test more" -> go to TESTING_PARSER`,
		},
	},
	{
		state:  Recovery,
		action: "Summarise what is known with <mem_get>all</mem_get> and offer to continue, start over or start fresh.",
	},
}

var byState = func() map[State]*stateSpec {
	m := make(map[State]*stateSpec, len(specs))
	for i := range specs {
		m[specs[i].state] = &specs[i]
	}
	return m
}()

// States returns every state in workflow order.
func States() []State {
	out := make([]State, len(specs))
	for i := range specs {
		out[i] = specs[i].state
	}
	return out
}

// ParseState validates a state name. Surrounding space is ignored and
// case must match.
func ParseState(name string) (State, bool) {
	s := State(strings.TrimSpace(name))
	_, ok := byState[s]
	return s, ok
}

// Known reports whether s is one of the declared states.
func (s State) Known() bool {
	_, ok := byState[s]
	return ok
}

// Requires returns the memory keys s needs. Unknown states need nothing
// because they can never be entered.
func (s State) Requires() []string {
	if spec, ok := byState[s]; ok {
		return append([]string(nil), spec.requires...)
	}
	return nil
}

func (s State) String() string { return string(s) }

// Describe renders the state table for the system prompt.
func Describe() string {
	var b strings.Builder
	for i, spec := range specs {
		fmt.Fprintf(&b, "S%d: %s\n", i+1, spec.state)
		if len(spec.requires) == 0 {
			b.WriteString("- Required memory: none\n")
		} else {
			fmt.Fprintf(&b, "- Required memory: %s\n", strings.Join(spec.requires, ", "))
		}
		fmt.Fprintf(&b, "- Action: %s\n", spec.action)
		if len(spec.inputs) > 0 {
			b.WriteString("- Valid inputs:\n")
			for _, in := range spec.inputs {
				fmt.Fprintf(&b, "  * %s\n", in)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/workflow"
)

const instructions = `You are a specialized agent designed to create parsers for web pages.
You help users build two kinds of parser:
1. list parsers for pages that link to many articles (news homepages, blog indexes, search results);
2. content parsers for single article pages (headline, publication date, body text).

You operate as a state machine with defined states and transitions. Each state has required memory and an action.

STATE MACHINE DEFINITION:

`

const directiveGuide = `GLOBAL RECOVERY STRATEGIES:
1. If the state is unclear, emit <state>RECOVERY</state>, show what you know with <mem_get>all</mem_get> and offer to continue, start over or start fresh.
2. If the user asks to jump ahead, check the required memory first. Jump when it is present, otherwise explain the proper path.
3. Before each transition, verify the required memory exists.

CRITICAL RULES:
1. ALWAYS show the current state: <state>CURRENT_STATE</state>
2. ALWAYS validate memory before a state transition: <mem_validate>["key1", "key2"]</mem_validate>
3. ALWAYS acknowledge state transitions: "Moving from X to Y because..."
4. ALWAYS give context with errors: "Error in state X while doing Y because Z"

Memory operations:
1. Store values: <mem_set>{"key": "value"}</mem_set>
2. Get values: <mem_get>key</mem_get> or <mem_get>all</mem_get>
3. Validate memory: <mem_validate>["key1", "key2"]</mem_validate>

Control tags are removed before the user sees your reply and replaced by their results.`

const functionGuide = `FUNCTIONS:
- fetch_webpage {"url"} downloads a page; its html is stored in memory automatically.
- parse_with_parser {"parser_config"} tests a parser against the stored html. Use {"type": "list", "selector", "attribute"} for list pages and {"type": "content", "title_selector", "date_selector", "body_selector"} for article pages.
- analyze_content {} extracts the main article text and detects its language.`

const focusInstructions = "If this input aligns with your system instructions, respond normally. If it doesn't, politely decline and remind the user of your purpose."

// systemPrompt assembles the fixed instructions, the state table and the
// optional domain prompt.
func systemPrompt(domain string, functions bool) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString(workflow.Describe())
	b.WriteString("\n\n")
	b.WriteString(directiveGuide)
	if functions {
		b.WriteString("\n\n")
		b.WriteString(functionGuide)
	}
	if d := strings.TrimSpace(domain); d != "" {
		b.WriteString("\n\n")
		b.WriteString(d)
	}
	return b.String()
}

// memoryBlock renders the session memory for the prompt. It returns ""
// when memory is empty.
func memoryBlock(snapshot map[string]any, state workflow.State, limit int) string {
	rendered := memory.FormatSnapshot(snapshot, limit)
	if rendered == "" {
		return ""
	}
	return "Current state: " + state.String() + "\n\nCurrent memory:\n" + rendered +
		"\n\nUse <mem_get>, <mem_set> and <mem_validate> to work with this memory."
}

type focusedInput struct {
	UserInput    string `json:"user_input"`
	Instructions string `json:"instructions"`
}

// userTurn renders the model-facing form of the user's text.
func userTurn(text string, focus bool) provider.LLMMessage {
	msg := provider.User(text)
	if !focus {
		return msg
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(focusedInput{UserInput: text, Instructions: focusInstructions}); err != nil {
		return msg
	}
	msg.Content = strings.TrimRight(buf.String(), "\n")
	return msg
}

func functionResult(name string, result json.RawMessage) string {
	return "Function " + name + " returned: " + string(result)
}

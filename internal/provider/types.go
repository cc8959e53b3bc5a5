package provider

import "encoding/json"

// MessageRole is the sender of a message. Function results are sent back
// to the model as system messages, so there is no tool role.
type MessageRole string

// Roles.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// FinishReason is why generation stopped, normalised across backends.
type FinishReason string

// Finish reasons.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolUse   FinishReason = "tool_use"
	FinishReasonFiltering FinishReason = "filtering"
)

// LLMMessage is one message of a request.
type LLMMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	// Name optionally distinguishes participants sharing a role.
	Name string `json:"name,omitempty"`
}

// System builds a system message.
func System(text string) LLMMessage { return LLMMessage{Role: MessageRoleSystem, Content: text} }

// User builds a user message.
func User(text string) LLMMessage { return LLMMessage{Role: MessageRoleUser, Content: text} }

// Assistant builds an assistant message.
func Assistant(text string) LLMMessage { return LLMMessage{Role: MessageRoleAssistant, Content: text} }

// ToolCall is a function invocation requested by the model. Arguments is
// the raw JSON object the model produced; it may be malformed.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition advertises a registered function to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// CompletionRequest is one model call.
type CompletionRequest struct {
	// Model overrides the provider's default model when non-empty.
	Model    string           `json:"model,omitempty"`
	Messages []LLMMessage     `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`

	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// CompletionResponse is the result of Complete.
type CompletionResponse struct {
	Content      string       `json:"content"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// WantsTools reports whether the model asked for function calls.
func (r CompletionResponse) WantsTools() bool { return len(r.ToolCalls) > 0 }

// StreamChunk is one fragment of a streamed completion. A chunk with Err
// set is the last one sent.
type StreamChunk struct {
	Content      string       `json:"content,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// TokenUsage counts tokens spent by one or more calls.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates o into u.
func (u *TokenUsage) Add(o TokenUsage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

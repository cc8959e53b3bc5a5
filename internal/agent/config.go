package agent

import "time"

// Default values for Config.
const (
	DefaultMaxToolRounds    = 5
	DefaultLoopThreshold    = 3
	DefaultTokenBudget      = 0 // 0 means unlimited.
	DefaultMemoryValueLimit = 2000
)

// Config controls one conversation's turns.
type Config struct {
	// Model overrides the provider's default model. Empty means the
	// provider decides.
	Model string `yaml:"model"`

	// FocusMode wraps user turns with an instruction to stay on topic.
	FocusMode bool `yaml:"focus_mode"`

	// EnableFunctions offers the registry's functions to the model.
	EnableFunctions bool `yaml:"enable_functions"`

	// MaxToolRounds bounds how many rounds of function calls one turn may
	// run before it is aborted.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// LoopThreshold is how many times the same function call (name + args)
	// can repeat within a turn before the turn is considered stuck.
	LoopThreshold int `yaml:"loop_threshold"`

	// TokenBudget is the cumulative token limit of one turn.
	// Zero means unlimited.
	TokenBudget int `yaml:"token_budget"`

	// Timeout is the maximum wall-clock duration of one turn. Zero leaves
	// the caller's context in charge.
	Timeout time.Duration `yaml:"timeout"`

	// MemoryValueLimit cuts long string values when memory is rendered
	// into the prompt.
	MemoryValueLimit int `yaml:"memory_value_limit"`

	// DomainPrompt is appended to the built-in instructions.
	DomainPrompt string `yaml:"domain_prompt"`

	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	if c.MemoryValueLimit <= 0 {
		c.MemoryValueLimit = DefaultMemoryValueLimit
	}
	return c
}

// Options are per-turn overrides. Nil pointers and empty strings keep the
// conversation's configured value.
type Options struct {
	FocusMode       *bool  `json:"focus_mode,omitempty"`
	EnableFunctions *bool  `json:"enable_functions,omitempty"`
	Model           string `json:"model,omitempty"`
	Stream          bool   `json:"stream,omitempty"`
}

// resolved is Config with Options applied for one turn.
type resolved struct {
	Config
	stream bool
}

func (c Config) apply(o Options) resolved {
	r := resolved{Config: c, stream: o.Stream}
	if o.FocusMode != nil {
		r.FocusMode = *o.FocusMode
	}
	if o.EnableFunctions != nil {
		r.EnableFunctions = *o.EnableFunctions
	}
	if o.Model != "" {
		r.Model = o.Model
	}
	return r
}

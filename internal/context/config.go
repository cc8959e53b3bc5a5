// Package ctxengine keeps a conversation inside the model's context window:
// it estimates or counts tokens, knows the window of common models, and
// trims history to the longest recent tail that fits.
package ctxengine

// DefaultReserved is the margin kept free for the model's reply.
const DefaultReserved = 500

// DefaultContextWindow applies to models missing from the window table.
const DefaultContextWindow = 4000

// ContextConfig holds the tuning knobs for the context engine.
type ContextConfig struct {
	// Reserved is subtracted from the model window before fitting messages.
	Reserved int `yaml:"reserved_tokens"`

	// Windows overrides or extends the built-in model window table.
	Windows map[string]int `yaml:"context_windows"`
}

func (cfg ContextConfig) withDefaults() ContextConfig {
	if cfg.Reserved <= 0 {
		cfg.Reserved = DefaultReserved
	}
	return cfg
}

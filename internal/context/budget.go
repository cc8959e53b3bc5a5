package ctxengine

// ContextBudget is the token breakdown of one assembled request.
type ContextBudget struct {
	WindowSize int `json:"window_size"`
	Fixed      int `json:"fixed"`   // system prompt, memory block and the current turn
	History    int `json:"history"` // kept history window
	Reserved   int `json:"reserved"`
}

// Used returns the tokens consumed including the reserved margin.
func (b ContextBudget) Used() int {
	return b.Fixed + b.History + b.Reserved
}

// Available returns the tokens left, never negative.
func (b ContextBudget) Available() int {
	return max(b.WindowSize-b.Used(), 0)
}

// Exceeded reports whether usage is over the window.
func (b ContextBudget) Exceeded() bool {
	return b.Used() > b.WindowSize
}

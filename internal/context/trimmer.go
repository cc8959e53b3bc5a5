package ctxengine

import "github.com/flemzord/parserdesk/internal/provider"

// TrimRequest is the input of Budgeter.Trim. Head and Tail are pinned:
// Head carries the system prompt and memory block, Tail the current user
// turn and anything produced during it. Only History may be shortened.
type TrimRequest struct {
	Model   string
	Head    []provider.LLMMessage
	History []provider.LLMMessage
	Tail    []provider.LLMMessage
}

// TrimResult is the request-ready message list.
type TrimResult struct {
	Messages []provider.LLMMessage
	Budget   ContextBudget
	// Dropped is how many of the oldest history messages were left out.
	Dropped int
}

// Budgeter fits conversations into a model window.
type Budgeter struct {
	counter Counter
	config  ContextConfig
}

// NewBudgeter creates a Budgeter. A nil counter means EstimateCounter.
func NewBudgeter(counter Counter, cfg ContextConfig) *Budgeter {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Budgeter{counter: counter, config: cfg.withDefaults()}
}

// MaxContextFor returns the window of model, honouring configured overrides.
func (b *Budgeter) MaxContextFor(model string) int {
	return lookupWindow(b.config.Windows, model)
}

// Count counts msgs for model.
func (b *Budgeter) Count(msgs []provider.LLMMessage, model string) int {
	return b.counter.Count(msgs, model)
}

// Trim keeps the longest trailing run of History that fits beside the
// pinned messages within window minus the reserved margin. When the pinned
// messages alone do not fit, all history is dropped.
func (b *Budgeter) Trim(req TrimRequest) TrimResult {
	window := b.MaxContextFor(req.Model)
	budget := ContextBudget{WindowSize: window, Reserved: b.config.Reserved}
	limit := window - b.config.Reserved

	budget.Fixed = b.counter.Count(req.Head, req.Model) + b.counter.Count(req.Tail, req.Model)
	remaining := limit - budget.Fixed

	// Walk history newest-first and stop at the first message that does
	// not fit, so the kept window stays contiguous.
	start := len(req.History)
	for i := len(req.History) - 1; i >= 0 && remaining > 0; i-- {
		cost := b.counter.Count(req.History[i:i+1], req.Model)
		if cost > remaining {
			break
		}
		remaining -= cost
		budget.History += cost
		start = i
	}

	msgs := make([]provider.LLMMessage, 0, len(req.Head)+len(req.History)-start+len(req.Tail))
	msgs = append(msgs, req.Head...)
	msgs = append(msgs, req.History[start:]...)
	msgs = append(msgs, req.Tail...)

	return TrimResult{Messages: msgs, Budget: budget, Dropped: start}
}

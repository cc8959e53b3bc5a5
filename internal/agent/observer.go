package agent

import (
	"context"
	"errors"
	"time"
)

// Observer receives turn and model-call measurements.
type Observer interface {
	ObserveLLMCall(model string, phase Phase, elapsed time.Duration, err error)
	ObserveTokens(model string, prompt, completion int)
	ObserveTurn(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveLLMCall(string, Phase, time.Duration, error) {}
func (nopObserver) ObserveTokens(string, int, int)                    {}
func (nopObserver) ObserveTurn(string, time.Duration)                 {}

// Turn outcomes reported to Observer.ObserveTurn.
const (
	OutcomeOK          = "ok"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeLLMError    = "llm_error"
	OutcomeToolLoop    = "tool_loop"
	OutcomeTokenBudget = "token_budget"
	OutcomeCancelled   = "cancelled"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
)

// Outcome classifies a turn error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrAuthFailed):
		return OutcomeAuthFailed
	case errors.Is(err, ErrLLMCall):
		return OutcomeLLMError
	case errors.Is(err, ErrToolLoopExceeded), errors.Is(err, ErrLoopDetected):
		return OutcomeToolLoop
	case errors.Is(err, ErrTokenBudget):
		return OutcomeTokenBudget
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

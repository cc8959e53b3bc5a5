package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/parserdesk/internal/provider"
)

// Sentinel errors returned by Converse and ConverseStream.
var (
	// ErrLLMCall wraps any failure at the model boundary.
	ErrLLMCall = errors.New("LLM call failed")

	// ErrAuthFailed replaces ErrLLMCall when the provider rejected the
	// credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrToolLoopExceeded is returned when a turn keeps requesting
	// functions past Config.MaxToolRounds.
	ErrToolLoopExceeded = errors.New("tool loop exceeded")

	// ErrLoopDetected is returned when the same function call repeats
	// Config.LoopThreshold times within a turn.
	ErrLoopDetected = errors.New("tool loop detected")

	// ErrTokenBudget is returned when a turn exhausts Config.TokenBudget.
	ErrTokenBudget = errors.New("token budget exhausted")

	// ErrEmptyInput rejects blank user turns.
	ErrEmptyInput = errors.New("empty input")
)

// Phase names the model call that failed.
type Phase string

// Phase constants.
const (
	PhaseFirst  Phase = "first"
	PhaseSecond Phase = "second"
)

// CallError is a model-boundary failure. It matches either ErrLLMCall or
// ErrAuthFailed with errors.Is, as well as the provider error it wraps.
type CallError struct {
	Phase Phase
	Round int
	Kind  error
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%v (%s call, round %d): %v", e.Kind, e.Phase, e.Round, e.Err)
}

// Unwrap exposes both the classification and the cause.
func (e *CallError) Unwrap() []error { return []error{e.Kind, e.Err} }

// newCallError classifies err. Context errors pass through unchanged.
func newCallError(ctx context.Context, phase Phase, round int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := ErrLLMCall
	if provider.IsAuth(err) {
		kind = ErrAuthFailed
	}
	return &CallError{Phase: phase, Round: round, Kind: kind, Err: err}
}

// IsAuthFailure reports whether err is a credential failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// UserMessage renders err as text suitable for the person in the chat.
func UserMessage(err error) string {
	var ce *CallError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthFailed):
		return "Authentication with the language model provider failed. Check the API key configuration and try again."
	case errors.As(err, &ce):
		return fmt.Sprintf("The language model request failed: %v. Please try again.", ce.Err)
	case errors.Is(err, ErrToolLoopExceeded):
		return "The assistant called functions too many times in a row, so the turn was stopped. Try rephrasing the request."
	case errors.Is(err, ErrLoopDetected):
		return "The assistant kept repeating the same function call, so the turn was stopped."
	case errors.Is(err, ErrTokenBudget):
		return "This turn used up its token budget before finishing."
	case errors.Is(err, ErrEmptyInput):
		return "Please type a message."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	default:
		return "Something went wrong: " + err.Error()
	}
}

package ctxengine

import "github.com/flemzord/parserdesk/internal/provider"

// MessageOverhead is the fixed token cost charged per message for role
// markers and formatting.
const MessageOverhead = 4

// TokensPerChar is the heuristic ratio used when no tokenizer is available.
const TokensPerChar = 0.25

// TokenEstimator estimates the token count of a single message body.
type TokenEstimator interface {
	Estimate(text string) int
}

// RatioEstimator charges TokensPerChar per byte plus MessageOverhead.
type RatioEstimator struct{}

// Estimate implements TokenEstimator.
func (RatioEstimator) Estimate(text string) int {
	return int(float64(len(text))*TokensPerChar) + MessageOverhead
}

// EstimateMessages sums the estimate over all messages.
func EstimateMessages(e TokenEstimator, msgs []provider.LLMMessage) int {
	total := 0
	for i := range msgs {
		total += e.Estimate(msgs[i].Content)
	}
	return total
}

package ctxengine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/pkoukk/tiktoken-go"
)

// Counter counts the tokens a list of messages costs for a model.
// Implementations never fail; they degrade to an estimate instead.
type Counter interface {
	Count(msgs []provider.LLMMessage, model string) int
}

// EstimateCounter is a Counter that only uses the ratio heuristic.
type EstimateCounter struct{}

// Count implements Counter.
func (EstimateCounter) Count(msgs []provider.LLMMessage, _ string) int {
	return EstimateMessages(RatioEstimator{}, msgs)
}

// encoder is the subset of *tiktoken.Tiktoken the counter needs.
type encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// TiktokenCounter counts tokens with the BPE encoding of the model.
// Unknown models and encoding failures fall back to RatioEstimator; the
// fallback is logged once per model.
type TiktokenCounter struct {
	logger *slog.Logger
	lookup func(model string) (encoder, error)

	mu       sync.Mutex
	encoders map[string]encoder
	failed   map[string]bool
}

// NewTiktokenCounter returns a counter backed by tiktoken-go.
func NewTiktokenCounter(logger *slog.Logger) *TiktokenCounter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TiktokenCounter{
		logger: logger,
		lookup: func(model string) (encoder, error) {
			return tiktoken.EncodingForModel(model)
		},
		encoders: make(map[string]encoder),
		failed:   make(map[string]bool),
	}
}

// Count implements Counter.
func (c *TiktokenCounter) Count(msgs []provider.LLMMessage, model string) int {
	enc := c.encoder(model)
	if enc == nil {
		return EstimateMessages(RatioEstimator{}, msgs)
	}
	total := 0
	for i := range msgs {
		total += len(enc.Encode(msgs[i].Content, nil, nil)) + MessageOverhead
	}
	return total
}

func (c *TiktokenCounter) encoder(model string) encoder {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[model]; ok {
		return enc
	}
	if c.failed[model] {
		return nil
	}
	enc, err := c.lookup(model)
	if err != nil || enc == nil {
		c.failed[model] = true
		c.logger.LogAttrs(context.Background(), slog.LevelWarn, "exact token count unavailable, using estimate",
			slog.String("model", model), slog.Any("error", err))
		return nil
	}
	c.encoders[model] = enc
	return enc
}

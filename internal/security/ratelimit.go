package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when an event exceeds its bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Bucket names understood by RateLimiter.
const (
	BucketMessage      = "message"
	BucketFunctionCall = "function_call"
	BucketFetch        = "fetch"
)

// RateLimitConfig sets per-minute limits. Zero fields take defaults.
type RateLimitConfig struct {
	MaxSessions         int `yaml:"max_sessions"`
	MessagesPerMin      int `yaml:"messages_per_min"`
	FunctionCallsPerMin int `yaml:"function_calls_per_min"`
	FetchesPerMin       int `yaml:"fetches_per_min"`
}

func (c *RateLimitConfig) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 100
	}
	if c.MessagesPerMin <= 0 {
		c.MessagesPerMin = 120
	}
	if c.FunctionCallsPerMin <= 0 {
		c.FunctionCallsPerMin = 300
	}
	if c.FetchesPerMin <= 0 {
		c.FetchesPerMin = 60
	}
}

// RateLimiter keeps one sliding one-minute window per bucket.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	span   time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter builds a limiter for the three known buckets.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{
		cfg: cfg,
		now: time.Now,
		windows: map[string]*window{
			BucketMessage:      {span: time.Minute, limit: cfg.MessagesPerMin},
			BucketFunctionCall: {span: time.Minute, limit: cfg.FunctionCallsPerMin},
			BucketFetch:        {span: time.Minute, limit: cfg.FetchesPerMin},
		},
	}
}

// Allow records one event in bucket, or returns ErrRateLimited when the
// window is full. Unknown buckets are unlimited.
func (rl *RateLimiter) Allow(bucket string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[bucket]
	if !ok {
		return nil
	}
	now := rl.now()
	w.evict(now)
	if len(w.events) >= w.limit {
		return ErrRateLimited
	}
	w.events = append(w.events, now)
	return nil
}

// MaxSessions is the configured ceiling on live design sessions.
func (rl *RateLimiter) MaxSessions() int {
	return rl.cfg.MaxSessions
}

func (w *window) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	w.events = w.events[i:]
}

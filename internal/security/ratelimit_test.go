package security

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_Window(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{FunctionCallsPerMin: 2})
	rl.now = func() time.Time { return now }

	for i := range 2 {
		if err := rl.Allow(BucketFunctionCall); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := rl.Allow(BucketFunctionCall); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third call = %v, want ErrRateLimited", err)
	}
	if err := rl.Allow(BucketFetch); err != nil {
		t.Fatalf("fetch bucket is independent: %v", err)
	}

	now = now.Add(time.Minute + time.Second)
	if err := rl.Allow(BucketFunctionCall); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	if rl.MaxSessions() != 100 {
		t.Errorf("MaxSessions() = %d, want 100", rl.MaxSessions())
	}
	if err := rl.Allow("unknown"); err != nil {
		t.Errorf("unknown bucket = %v, want nil", err)
	}
}

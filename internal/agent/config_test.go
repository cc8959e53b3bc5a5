package agent

import (
	"testing"
	"time"
)

func TestWithDefaults_ZeroValue(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()

	if cfg.MaxToolRounds != DefaultMaxToolRounds {
		t.Errorf("MaxToolRounds = %d, want %d", cfg.MaxToolRounds, DefaultMaxToolRounds)
	}
	if cfg.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 (none)", cfg.Timeout)
	}
	if cfg.LoopThreshold != DefaultLoopThreshold {
		t.Errorf("LoopThreshold = %d, want %d", cfg.LoopThreshold, DefaultLoopThreshold)
	}
	if cfg.MemoryValueLimit != DefaultMemoryValueLimit {
		t.Errorf("MemoryValueLimit = %d, want %d", cfg.MemoryValueLimit, DefaultMemoryValueLimit)
	}
	if cfg.TokenBudget != 0 {
		t.Errorf("TokenBudget = %d, want 0 (unlimited)", cfg.TokenBudget)
	}
}

func TestWithDefaults_ExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MaxToolRounds: 2,
		TokenBudget:   5000,
		Timeout:       10 * time.Minute,
		LoopThreshold: 5,
	}.withDefaults()

	if cfg.MaxToolRounds != 2 {
		t.Errorf("MaxToolRounds = %d, want 2", cfg.MaxToolRounds)
	}
	if cfg.TokenBudget != 5000 {
		t.Errorf("TokenBudget = %d, want 5000", cfg.TokenBudget)
	}
	if cfg.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", cfg.Timeout)
	}
	if cfg.LoopThreshold != 5 {
		t.Errorf("LoopThreshold = %d, want 5", cfg.LoopThreshold)
	}
}

func TestApply_Overrides(t *testing.T) {
	t.Parallel()

	on, off := true, false
	base := Config{Model: "base", FocusMode: true, EnableFunctions: false}

	tests := []struct {
		name      string
		opts      Options
		model     string
		focus     bool
		functions bool
		stream    bool
	}{
		{name: "nil keeps defaults", opts: Options{}, model: "base", focus: true},
		{name: "pointers override", opts: Options{FocusMode: &off, EnableFunctions: &on}, model: "base", functions: true},
		{name: "model override", opts: Options{Model: "other", Stream: true}, model: "other", focus: true, stream: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := base.apply(tt.opts)
			if r.Model != tt.model || r.FocusMode != tt.focus || r.EnableFunctions != tt.functions || r.stream != tt.stream {
				t.Errorf("apply(%+v) = model %q focus %v functions %v stream %v", tt.opts, r.Model, r.FocusMode, r.EnableFunctions, r.stream)
			}
		})
	}
}

package provider

import (
	"sync"
	"time"
)

type healthState int

const (
	stateHealthy  healthState = iota
	stateCooldown             // backing off after a transient failure
	stateDead                 // too many consecutive failures
)

func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig controls backend health tracking.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential cooldown. Default: 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures is the number of consecutive failures after which the
	// backend is considered dead until a probe succeeds. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is how often dead or cooled-down backends are probed.
	// Default: 10s.
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
}

// HealthStatus is a point-in-time view of one backend, reported by /health.
type HealthStatus struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// healthTracker applies exponential backoff to a single backend.
type healthTracker struct {
	cfg HealthConfig

	// onChange runs outside the lock on every state transition.
	onChange func(from, to healthState)

	mu       sync.Mutex
	state    healthState
	failures int
	backoff  time.Duration
	until    time.Time

	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{cfg: cfg, now: time.Now}
}

// available reports whether the backend may take a request.
func (h *healthTracker) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case stateHealthy:
		return true
	case stateCooldown:
		return !h.now().Before(h.until)
	default:
		return false
	}
}

// needsProbe reports whether a background health check should run.
func (h *healthTracker) needsProbe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateDead || (h.state == stateCooldown && !h.now().Before(h.until))
}

func (h *healthTracker) success() {
	h.mu.Lock()
	prev := h.state
	h.state, h.failures, h.backoff = stateHealthy, 0, 0
	h.mu.Unlock()
	h.notify(prev, stateHealthy)
}

func (h *healthTracker) failure() {
	h.mu.Lock()
	prev := h.state
	h.failures++
	if h.failures >= h.cfg.MaxFailures {
		h.state = stateDead
	} else {
		h.state = stateCooldown
		h.backoff = min(max(h.backoff*2, h.cfg.InitialBackoff), h.cfg.MaxBackoff)
		h.until = h.now().Add(h.backoff)
	}
	next := h.state
	h.mu.Unlock()
	h.notify(prev, next)
}

func (h *healthTracker) notify(from, to healthState) {
	if from != to && h.onChange != nil {
		h.onChange(from, to)
	}
}

func (h *healthTracker) snapshot() (healthState, int, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.failures, h.backoff
}

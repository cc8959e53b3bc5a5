// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/parserdesk/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockSessions is a test double for cron.Sessions.
type MockSessions struct {
	AutosaveVal bool
	PruneFunc   func(ctx context.Context) int
	SaveAllFunc func(ctx context.Context) (int, error)

	PruneCalls   atomic.Int32
	SaveAllCalls atomic.Int32
}

// Compile-time interface check.
var _ cron.Sessions = (*MockSessions)(nil)

// Prune implements cron.Sessions.
func (m *MockSessions) Prune(ctx context.Context) int {
	m.PruneCalls.Add(1)
	if m.PruneFunc != nil {
		return m.PruneFunc(ctx)
	}
	return 0
}

// SaveAll implements cron.Sessions.
func (m *MockSessions) SaveAll(ctx context.Context) (int, error) {
	m.SaveAllCalls.Add(1)
	if m.SaveAllFunc != nil {
		return m.SaveAllFunc(ctx)
	}
	return 0, nil
}

// Autosave implements cron.Sessions.
func (m *MockSessions) Autosave() bool { return m.AutosaveVal }

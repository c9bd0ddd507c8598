package shared

import (
	"sort"
	"sync"
	"time"
)

// Clock is an abstraction for time operations, allowing time to be mocked in tests.
//
// AfterFunc is the only way agents schedule work in the future: the callback runs
// once when the duration has elapsed and is expected to hand a message to the
// scheduling agent's own mailbox, never to touch agent state directly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback
type Timer interface {
	// Stop prevents the callback from firing. Returns false if it already fired or was stopped.
	Stop() bool
}

// RealClock implements Clock using the actual system time
type RealClock struct{}

// Now returns the current system time in UTC
func (r *RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for the given duration
func (r *RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// AfterFunc schedules f on its own goroutine after d
func (r *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewRealClock creates a RealClock instance
func NewRealClock() Clock {
	return &RealClock{}
}

// MockClock implements Clock with a controllable time for testing.
//
// Timers registered through AfterFunc only fire from Advance (or SetTime), in due
// order, on the goroutine that moves the clock.
type MockClock struct {
	mu          sync.Mutex
	cond        *sync.Cond
	CurrentTime time.Time
	timers      []*mockTimer
	seq         uint64
}

type mockTimer struct {
	clock   *MockClock
	due     time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.removeTimerLocked(t)
	return true
}

// NewMockClock creates a MockClock starting at the given time
// If zero time is provided, starts at current time
func NewMockClock(startTime time.Time) *MockClock {
	if startTime.IsZero() {
		startTime = time.Now()
	}
	m := &MockClock{CurrentTime: startTime}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Now returns the mock's current time
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime
}

// Sleep advances the mock clock without blocking (instant in tests)
func (m *MockClock) Sleep(d time.Duration) {
	m.Advance(d)
}

// AfterFunc registers f to run once the mock time reaches now+d
func (m *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &mockTimer{
		clock: m,
		due:   m.CurrentTime.Add(d),
		seq:   m.seq,
		fn:    f,
	}
	m.timers = append(m.timers, t)
	m.cond.Broadcast()
	return t
}

// Advance moves the mock clock forward by the given duration, firing due timers
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.CurrentTime.Add(d)
	m.mu.Unlock()
	m.advanceTo(target)
}

// SetTime sets the mock clock to a specific time, firing timers due before it
func (m *MockClock) SetTime(t time.Time) {
	m.advanceTo(t)
}

// PendingTimers returns the number of timers that have not fired yet
func (m *MockClock) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// BlockUntilTimers waits until at least n timers are pending or the timeout elapses.
// Returns false on timeout.
func (m *MockClock) BlockUntilTimers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	wake := time.AfterFunc(timeout, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer wake.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.timers) < n {
		if !time.Now().Before(deadline) {
			return false
		}
		m.cond.Wait()
	}
	return true
}

func (m *MockClock) advanceTo(target time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			if target.After(m.CurrentTime) {
				m.CurrentTime = target
			}
			m.mu.Unlock()
			return
		}
		if next.due.After(m.CurrentTime) {
			m.CurrentTime = next.due
		}
		next.fired = true
		m.removeTimerLocked(next)
		m.mu.Unlock()

		next.fn()
	}
}

// nextDueLocked returns the earliest timer due at or before target
func (m *MockClock) nextDueLocked(target time.Time) *mockTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	if m.timers[0].due.After(target) {
		return nil
	}
	return m.timers[0]
}

func (m *MockClock) removeTimerLocked(t *mockTimer) {
	for i, candidate := range m.timers {
		if candidate == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

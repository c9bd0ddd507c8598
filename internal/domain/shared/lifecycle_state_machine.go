package shared

import (
	"fmt"
	"sync"
	"time"
)

// LifecycleStatus represents the state of a long-running entity (an agent, a factory run)
type LifecycleStatus string

const (
	// LifecycleStatusPending indicates the entity is constructed but not started
	LifecycleStatusPending LifecycleStatus = "PENDING"

	// LifecycleStatusRunning indicates the entity is processing
	LifecycleStatusRunning LifecycleStatus = "RUNNING"

	// LifecycleStatusStopped indicates the entity was torn down
	LifecycleStatusStopped LifecycleStatus = "STOPPED"
)

// LifecycleStateMachine manages PENDING → RUNNING → STOPPED transitions.
//
// Invariants:
// - State transitions must follow valid paths
// - Timestamps are automatically managed
// - Clock is injected for testability
//
// Safe for concurrent use: status is read by metrics and snapshot callers while
// the owner goroutine transitions it.
type LifecycleStateMachine struct {
	mu        sync.RWMutex
	status    LifecycleStatus
	createdAt time.Time
	startedAt *time.Time
	stoppedAt *time.Time
	clock     Clock
}

// NewLifecycleStateMachine creates a new lifecycle state machine in PENDING state
func NewLifecycleStateMachine(clock Clock) *LifecycleStateMachine {
	if clock == nil {
		clock = NewRealClock()
	}

	return &LifecycleStateMachine{
		status:    LifecycleStatusPending,
		createdAt: clock.Now(),
		clock:     clock,
	}
}

// Status returns the current lifecycle status
func (sm *LifecycleStateMachine) Status() LifecycleStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.status
}

// CreatedAt returns when the entity was created
func (sm *LifecycleStateMachine) CreatedAt() time.Time {
	return sm.createdAt
}

// Start transitions from PENDING to RUNNING
func (sm *LifecycleStateMachine) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.status != LifecycleStatusPending {
		return fmt.Errorf("cannot start from %s state", sm.status)
	}

	now := sm.clock.Now()
	sm.status = LifecycleStatusRunning
	sm.startedAt = &now
	return nil
}

// Stop transitions to STOPPED. Stopping twice is an error.
func (sm *LifecycleStateMachine) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.status == LifecycleStatusStopped {
		return fmt.Errorf("cannot stop from %s state", sm.status)
	}

	now := sm.clock.Now()
	sm.status = LifecycleStatusStopped
	sm.stoppedAt = &now
	return nil
}

// IsRunning returns true if the entity is currently processing
func (sm *LifecycleStateMachine) IsRunning() bool {
	return sm.Status() == LifecycleStatusRunning
}

// RuntimeDuration calculates how long the entity has been/was running
// Returns 0 if not started yet
func (sm *LifecycleStateMachine) RuntimeDuration() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.startedAt == nil {
		return 0
	}

	endTime := sm.clock.Now()
	if sm.stoppedAt != nil {
		endTime = *sm.stoppedAt
	}

	return endTime.Sub(*sm.startedAt)
}

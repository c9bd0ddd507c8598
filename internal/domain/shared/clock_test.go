package shared_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

func TestMockClock_FiresTimersInDueOrder(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	var fired []string

	clock.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(10*time.Second, func() { fired = append(fired, "late") })

	// Act
	clock.Advance(5 * time.Second)

	// Assert
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 1, clock.PendingTimers())
}

func TestMockClock_TimerSeesItsDueTime(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := shared.NewMockClock(start)
	var seen time.Time

	clock.AfterFunc(2*time.Second, func() { seen = clock.Now() })
	clock.Advance(10 * time.Second)

	assert.Equal(t, start.Add(2*time.Second), seen)
	assert.Equal(t, start.Add(10*time.Second), clock.Now())
}

func TestMockClock_TimersArmedWhileFiringAreHonoured(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	count := 0

	var rearm func()
	rearm = func() {
		count++
		clock.AfterFunc(time.Second, rearm)
	}
	clock.AfterFunc(time.Second, rearm)

	clock.Advance(5 * time.Second)

	assert.Equal(t, 5, count)
}

func TestMockClock_StopPreventsFiring(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	fired := false

	timer := clock.AfterFunc(time.Second, func() { fired = true })
	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clock.Advance(time.Minute)
	assert.False(t, fired)
}

func TestMockClock_BlockUntilTimers(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		clock.AfterFunc(time.Second, func() {})
	}()

	assert.True(t, clock.BlockUntilTimers(1, time.Second))
	assert.False(t, clock.BlockUntilTimers(2, 20*time.Millisecond))
}

func TestLifecycleStateMachine_Transitions(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	clock := shared.NewMockClock(start)
	sm := shared.NewLifecycleStateMachine(clock)

	assert.Equal(t, shared.LifecycleStatusPending, sm.Status())
	assert.Equal(t, start, sm.CreatedAt())
	assert.Zero(t, sm.RuntimeDuration())

	require.NoError(t, sm.Start())
	assert.True(t, sm.IsRunning())
	assert.Error(t, sm.Start())

	clock.Advance(90 * time.Second)
	require.NoError(t, sm.Stop())
	assert.Error(t, sm.Stop())

	clock.Advance(time.Hour)
	assert.Equal(t, 90*time.Second, sm.RuntimeDuration())
}

func TestMockClock_SetTimeFiresDueTimers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := shared.NewMockClock(start)
	fired := 0
	clock.AfterFunc(time.Minute, func() { fired++ })

	clock.SetTime(start.Add(30 * time.Second))
	assert.Zero(t, fired)

	clock.SetTime(start.Add(time.Hour))
	assert.Equal(t, 1, fired)
	assert.Equal(t, start.Add(time.Hour), clock.Now())
}

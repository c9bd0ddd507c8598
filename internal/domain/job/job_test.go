package job_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/domain/job"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

func TestStateMachine_FullCycle(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	sm := job.NewStateMachine(clock)

	// Act
	require.NoError(t, sm.Start(7))
	assert.Equal(t, job.PhaseBuildingBody, sm.Phase())

	clock.Advance(5 * time.Second)
	require.NoError(t, sm.BodyBuilt(7, "req-1", 2))
	assert.Equal(t, job.PhaseRequestingParts, sm.Phase())

	require.NoError(t, sm.PartsReceived(7, "req-1", []parts.Kind{"ENGINE"}))
	assert.Equal(t, job.PhaseInstalling, sm.Phase())

	clock.Advance(3 * time.Second)
	record, err := sm.Complete(7)

	// Assert
	require.NoError(t, err)
	assert.True(t, sm.IsIdle())
	assert.Equal(t, order.ID(7), record.OrderID)
	assert.Equal(t, 2, record.RequestedParts)
	assert.Equal(t, []parts.Kind{"ENGINE"}, record.Delivered)
	assert.Equal(t, 8*time.Second, record.Duration())
	assert.False(t, record.PartsTimedOut)
}

func TestStateMachine_RejectsSecondStartWhileBusy(t *testing.T) {
	sm := job.NewStateMachine(shared.NewMockClock(time.Time{}))
	require.NoError(t, sm.Start(1))

	err := sm.Start(2)

	var busy *job.ErrWorkerBusy
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, order.ID(1), busy.Current)
	assert.Equal(t, order.ID(2), busy.Rejected)
	assert.Equal(t, order.ID(1), sm.OrderID())
}

func TestStateMachine_StaleResponseIsRejected(t *testing.T) {
	sm := job.NewStateMachine(shared.NewMockClock(time.Time{}))
	require.NoError(t, sm.Start(1))
	require.NoError(t, sm.BodyBuilt(1, "req-a", 2))

	err := sm.PartsReceived(1, "req-b", nil)

	var stale *job.ErrStaleResponse
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, job.PhaseRequestingParts, sm.Phase())
}

func TestStateMachine_DuplicateResponseIsRejected(t *testing.T) {
	sm := job.NewStateMachine(shared.NewMockClock(time.Time{}))
	require.NoError(t, sm.Start(1))
	require.NoError(t, sm.BodyBuilt(1, "req-a", 2))
	require.NoError(t, sm.PartsReceived(1, "req-a", []parts.Kind{"A"}))

	err := sm.PartsReceived(1, "req-a", []parts.Kind{"B"})

	var transition *shared.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, string(job.PhaseInstalling), transition.From)
}

func TestStateMachine_ForeignOrderEventsAreRejected(t *testing.T) {
	sm := job.NewStateMachine(shared.NewMockClock(time.Time{}))
	require.NoError(t, sm.Start(1))

	err := sm.BodyBuilt(2, "req", 2)

	var foreign *job.ErrForeignOrder
	require.ErrorAs(t, err, &foreign)
	assert.Equal(t, job.PhaseBuildingBody, sm.Phase())
}

func TestStateMachine_PartsTimeoutInstallsWithNothing(t *testing.T) {
	sm := job.NewStateMachine(shared.NewMockClock(time.Time{}))
	require.NoError(t, sm.Start(3))
	require.NoError(t, sm.BodyBuilt(3, "req", 2))

	require.NoError(t, sm.PartsTimedOut(3, "req"))
	record, err := sm.Complete(3)

	require.NoError(t, err)
	assert.True(t, record.PartsTimedOut)
	assert.Empty(t, record.Delivered)
}

func TestParsePolicies(t *testing.T) {
	policy, err := job.ParseBusyPolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, job.BusyPolicyReject, policy)

	_, err = job.ParseBusyPolicy("ignore")
	assert.Error(t, err)

}

package factory_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/job"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/test/helpers"
)

type workerFixture struct {
	clock     *shared.MockClock
	worker    *factory.Worker
	inventory *helpers.Probe[factory.InventoryMessage]
	line      *helpers.Probe[factory.LineMessage]
}

func newWorker(t *testing.T, policy job.BusyPolicy, partsTimeout time.Duration, tweaks ...func(*factory.WorkerOptions)) *workerFixture {
	t.Helper()
	clock := shared.NewMockClock(epoch)
	inventory := helpers.NewProbe[factory.InventoryMessage]("storage1")

	var n atomic.Int64
	opts := factory.WorkerOptions{
		Name:          "Rahul",
		Inventory:     inventory,
		InventoryName: "storage1",
		Timing: factory.JobTiming{
			Build:        5 * time.Second,
			Install:      3 * time.Second,
			PartsPerJob:  2,
			PartsTimeout: partsTimeout,
		},
		BusyPolicy: policy,
		Clock:      clock,
		RequestID:  func() string { return fmt.Sprintf("req-%d", n.Add(1)) },
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	worker := factory.NewWorker(opts)
	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(worker.Stop)

	return &workerFixture{
		clock:     clock,
		worker:    worker,
		inventory: inventory,
		line:      helpers.NewProbe[factory.LineMessage]("Line-1"),
	}
}

func (f *workerFixture) snapshot(t *testing.T) factory.WorkerSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	snap, err := f.worker.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

// buildBody starts a job and advances through the build phase, returning the parts request
func (f *workerFixture) buildBody(t *testing.T, id order.ID) factory.RequestParts {
	t.Helper()
	f.worker.Ref().Tell(factory.StartJob{OrderID: id, CompletionTarget: f.line})
	require.True(t, f.clock.BlockUntilTimers(1, wait))
	f.clock.Advance(5 * time.Second)

	req, ok := f.inventory.Expect(t, wait).(factory.RequestParts)
	require.True(t, ok)
	return req
}

func (f *workerFixture) reply(req factory.RequestParts, delivered ...parts.Kind) {
	f.worker.Ref().Tell(factory.PartsResponse{
		OrderID:          req.OrderID,
		RequestID:        req.RequestID,
		Inventory:        "storage1",
		Requested:        []parts.Kind{"A", "B"},
		Delivered:        delivered,
		CompletionTarget: req.CompletionTarget,
	})
}

func TestWorker_FullCycleTakesBuildPlusInstall(t *testing.T) {
	// Arrange
	fx := newWorker(t, job.BusyPolicyQueue, 0)

	// Act
	req := fx.buildBody(t, 7)
	assert.Equal(t, order.ID(7), req.OrderID)
	assert.Equal(t, 2, req.Count)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, fx.line, req.CompletionTarget)
	assert.Equal(t, job.PhaseRequestingParts, fx.snapshot(t).Phase)

	fx.reply(req, "A")
	require.True(t, fx.clock.BlockUntilTimers(1, wait))
	assert.Equal(t, job.PhaseInstalling, fx.snapshot(t).Phase)
	fx.clock.Advance(3 * time.Second)

	// Assert
	done, ok := fx.line.Expect(t, wait).(factory.CarComplete)
	require.True(t, ok)
	assert.Equal(t, order.ID(7), done.OrderID)
	assert.Equal(t, "Rahul", done.Worker)
	assert.Equal(t, []parts.Kind{"A"}, done.Parts)
	assert.Equal(t, 2, done.RequestedParts)
	assert.GreaterOrEqual(t, done.CompletedAt.Sub(done.StartedAt), 8*time.Second)

	snap := fx.snapshot(t)
	assert.Equal(t, job.PhaseIdle, snap.Phase)
	assert.Equal(t, 1, snap.Completed)
}

func TestWorker_NothingHappensBeforeBuildTimer(t *testing.T) {
	fx := newWorker(t, job.BusyPolicyQueue, 0)

	fx.worker.Ref().Tell(factory.StartJob{OrderID: 1, CompletionTarget: fx.line})
	require.True(t, fx.clock.BlockUntilTimers(1, wait))
	fx.clock.Advance(5*time.Second - time.Millisecond)

	fx.inventory.ExpectNone(t, 30*time.Millisecond)
	assert.Equal(t, job.PhaseBuildingBody, fx.snapshot(t).Phase)
}

func TestWorker_EmptyDeliveryStillCompletes(t *testing.T) {
	fx := newWorker(t, job.BusyPolicyQueue, 0)

	req := fx.buildBody(t, 1)
	fx.reply(req)
	require.True(t, fx.clock.BlockUntilTimers(1, wait))
	fx.clock.Advance(3 * time.Second)

	done, ok := fx.line.Expect(t, wait).(factory.CarComplete)
	require.True(t, ok)
	assert.Empty(t, done.Parts)
}

func TestWorker_DiscardsStaleResponse(t *testing.T) {
	// Arrange
	fx := newWorker(t, job.BusyPolicyQueue, 0)
	req := fx.buildBody(t, 1)

	// Act: a reply for a request this worker never made, then a duplicate
	stale := req
	stale.RequestID = "req-999"
	fx.reply(stale, "A", "B")
	fx.reply(req, "A")
	fx.reply(req, "B")

	// Assert
	require.True(t, fx.clock.BlockUntilTimers(1, wait))
	snap := fx.snapshot(t)
	assert.Equal(t, job.PhaseInstalling, snap.Phase)
	assert.Equal(t, 2, snap.StaleReplies)

	fx.clock.Advance(3 * time.Second)
	done := fx.line.Expect(t, wait).(factory.CarComplete)
	assert.Equal(t, []parts.Kind{"A"}, done.Parts)
	fx.line.ExpectNone(t, 20*time.Millisecond)
}

func TestWorker_PartsTimeoutInstallsWithNothing(t *testing.T) {
	// Arrange
	fx := newWorker(t, job.BusyPolicyQueue, 2*time.Second)
	req := fx.buildBody(t, 1)
	require.True(t, fx.clock.BlockUntilTimers(1, wait))

	// Act
	fx.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool {
		return fx.snapshot(t).Phase == job.PhaseInstalling
	}, wait, 5*time.Millisecond)
	fx.reply(req, "A", "B") // late

	// Assert
	fx.clock.Advance(3 * time.Second)
	done := fx.line.Expect(t, wait).(factory.CarComplete)
	assert.True(t, done.PartsTimedOut)
	assert.Empty(t, done.Parts)

	snap := fx.snapshot(t)
	assert.Equal(t, 1, snap.PartsTimeouts)
	assert.Equal(t, 1, snap.StaleReplies)
}

func TestWorker_TimelyReplyDisarmsTimeout(t *testing.T) {
	fx := newWorker(t, job.BusyPolicyQueue, 2*time.Second)
	req := fx.buildBody(t, 1)

	fx.reply(req, "A")
	require.True(t, fx.clock.BlockUntilTimers(2, wait)) // parts timeout + install
	fx.clock.Advance(3 * time.Second)

	done := fx.line.Expect(t, wait).(factory.CarComplete)
	assert.False(t, done.PartsTimedOut)
	assert.Equal(t, 0, fx.snapshot(t).PartsTimeouts)
}

func TestWorker_QueuePolicyRunsBacklogInOrder(t *testing.T) {
	// Arrange
	fx := newWorker(t, job.BusyPolicyQueue, 0)
	req := fx.buildBody(t, 1)

	// Act
	fx.worker.Ref().Tell(factory.StartJob{OrderID: 2, CompletionTarget: fx.line})
	fx.worker.Ref().Tell(factory.StartJob{OrderID: 3, CompletionTarget: fx.line})
	assert.Equal(t, []order.ID{2, 3}, fx.snapshot(t).Backlog)

	fx.reply(req)
	require.True(t, fx.clock.BlockUntilTimers(1, wait))
	fx.clock.Advance(3 * time.Second)

	// Assert
	first := fx.line.Expect(t, wait).(factory.CarComplete)
	assert.Equal(t, order.ID(1), first.OrderID)

	require.True(t, fx.clock.BlockUntilTimers(1, wait))
	snap := fx.snapshot(t)
	assert.Equal(t, job.PhaseBuildingBody, snap.Phase)
	assert.Equal(t, order.ID(2), snap.OrderID)
	assert.Equal(t, []order.ID{3}, snap.Backlog)
}

func TestWorker_RejectPolicyHandsJobBack(t *testing.T) {
	fx := newWorker(t, job.BusyPolicyReject, 0)
	fx.buildBody(t, 1)

	fx.worker.Ref().Tell(factory.StartJob{OrderID: 2, CompletionTarget: fx.line})

	rejected, ok := fx.line.Expect(t, wait).(factory.JobRejected)
	require.True(t, ok)
	assert.Equal(t, order.ID(2), rejected.OrderID)
	assert.Equal(t, "Rahul", rejected.Worker)

	snap := fx.snapshot(t)
	assert.Equal(t, order.ID(1), snap.OrderID)
	assert.Empty(t, snap.Backlog)
	assert.Equal(t, 1, snap.Rejected)
}

func TestWorker_FullBacklogRejectsUnderQueuePolicy(t *testing.T) {
	// Arrange
	fx := newWorker(t, job.BusyPolicyQueue, 0, func(o *factory.WorkerOptions) { o.MaxBacklog = 2 })
	fx.buildBody(t, 1)

	// Act
	for id := order.ID(2); id <= 4; id++ {
		fx.worker.Ref().Tell(factory.StartJob{OrderID: id, CompletionTarget: fx.line})
	}

	// Assert
	rejected, ok := fx.line.Expect(t, wait).(factory.JobRejected)
	require.True(t, ok)
	assert.Equal(t, order.ID(4), rejected.OrderID)

	snap := fx.snapshot(t)
	assert.Equal(t, []order.ID{2, 3}, snap.Backlog)
	assert.Equal(t, 1, snap.Rejected)
}

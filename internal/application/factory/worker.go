package factory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/andrescamacho/carfactory-go/internal/adapters/metrics"
	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/job"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

// JobTiming holds the durations of one worker cycle
type JobTiming struct {
	Build        time.Duration
	Install      time.Duration
	PartsPerJob  int
	PartsTimeout time.Duration // 0 waits for the inventory forever
}

// Worker is the agent running one job at a time:
// IDLE → BUILDING_BODY → REQUESTING_PARTS → INSTALLING → IDLE
type Worker struct {
	agent         *actor.Agent[WorkerMessage]
	name          string
	inventory     actor.Ref[InventoryMessage]
	inventoryName string
	timing        JobTiming
	policy        job.BusyPolicy
	maxBacklog    int
	sm            *job.StateMachine
	newID         func() string

	// target is the completion target of the running job
	target  actor.Ref[LineMessage]
	backlog []StartJob

	phaseStart time.Time

	completed     int
	rejected      int
	staleReplies  int
	partsTimeouts int
}

// WorkerOptions configures a Worker
type WorkerOptions struct {
	Name          string
	Inventory     actor.Ref[InventoryMessage]
	InventoryName string
	Timing        JobTiming
	BusyPolicy    job.BusyPolicy
	Clock         shared.Clock

	// MaxBacklog caps the queue policy backlog; jobs beyond it are rejected.
	// 0 leaves the backlog unbounded.
	MaxBacklog int

	// RequestID generates parts request ids (uuid by default)
	RequestID func() string
}

// NewWorker creates a worker agent; call Start to run it
func NewWorker(opts WorkerOptions) *Worker {
	if opts.BusyPolicy == "" {
		opts.BusyPolicy = job.BusyPolicyQueue
	}
	if opts.RequestID == nil {
		opts.RequestID = uuid.NewString
	}

	agent := actor.NewAgent[WorkerMessage](opts.Name, opts.Clock)
	return &Worker{
		agent:         agent,
		name:          opts.Name,
		inventory:     opts.Inventory,
		inventoryName: opts.InventoryName,
		timing:        opts.Timing,
		policy:        opts.BusyPolicy,
		maxBacklog:    opts.MaxBacklog,
		sm:            job.NewStateMachine(agent.Clock()),
		newID:         opts.RequestID,
	}
}

func (w *Worker) Name() string { return w.name }

// Ref returns the worker's address
func (w *Worker) Ref() actor.Ref[WorkerMessage] { return w.agent }

func (w *Worker) Start(ctx context.Context) error {
	ctx = common.WithLogger(ctx, common.WithFields(common.LoggerFromContext(ctx), map[string]interface{}{
		"agent": w.name,
	}))
	return w.agent.Start(ctx, w.handle)
}

func (w *Worker) Stop() { w.agent.Stop() }

// Snapshot asks the agent for its current state
func (w *Worker) Snapshot(ctx context.Context) (WorkerSnapshot, error) {
	return actor.Ask(ctx, w.Ref(), func(reply chan<- WorkerSnapshot) WorkerMessage {
		return WorkerSnapshotQuery{Reply: reply}
	})
}

func (w *Worker) handle(ctx context.Context, msg WorkerMessage) {
	switch m := msg.(type) {
	case StartJob:
		w.onStartJob(ctx, m)
	case BuildDone:
		w.onBuildDone(ctx, m)
	case PartsResponse:
		w.onPartsResponse(ctx, m)
	case PartsTimeout:
		w.onPartsTimeout(ctx, m)
	case InstallDone:
		w.onInstallDone(ctx, m)
	case WorkerSnapshotQuery:
		m.Reply <- w.snapshot()
	default:
		common.LoggerFromContext(ctx).Log(common.LevelWarn, "Dropping unknown worker message", map[string]interface{}{
			"message_type": typeName(msg),
		})
	}
}

func (w *Worker) onStartJob(ctx context.Context, m StartJob) {
	if w.sm.IsIdle() {
		w.begin(ctx, m)
		return
	}

	logger := common.LoggerFromContext(ctx)
	backlogFull := w.maxBacklog > 0 && len(w.backlog) >= w.maxBacklog
	switch {
	case w.policy == job.BusyPolicyReject || backlogFull:
		w.rejected++
		metrics.RecordJobRejected(lineName(m.CompletionTarget), w.name)
		logger.Log(common.LevelInfo, "Busy, rejecting job", map[string]interface{}{
			"order_id":     m.OrderID.String(),
			"current":      w.sm.OrderID().String(),
			"backlog_full": backlogFull,
		})
		if m.CompletionTarget != nil {
			m.CompletionTarget.Tell(JobRejected{OrderID: m.OrderID, Worker: w.name})
		}
	default:
		w.backlog = append(w.backlog, m)
		logger.Log(common.LevelInfo, "Busy, job queued", map[string]interface{}{
			"order_id": m.OrderID.String(),
			"current":  w.sm.OrderID().String(),
			"backlog":  len(w.backlog),
		})
	}
}

func (w *Worker) begin(ctx context.Context, m StartJob) {
	if err := w.sm.Start(m.OrderID); err != nil {
		common.LoggerFromContext(ctx).Log(common.LevelError, "Cannot start job", map[string]interface{}{
			"order_id": m.OrderID.String(),
			"error":    err.Error(),
		})
		return
	}
	w.target = m.CompletionTarget
	w.phaseStart = w.agent.Clock().Now()

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Building body", map[string]interface{}{
		"order_id": m.OrderID.String(),
	})
	w.agent.TellAfter(w.timing.Build, BuildDone{OrderID: m.OrderID})
}

func (w *Worker) onBuildDone(ctx context.Context, m BuildDone) {
	requestID := w.newID()
	if err := w.sm.BodyBuilt(m.OrderID, requestID, w.timing.PartsPerJob); err != nil {
		w.discard(ctx, "build timer", m.OrderID, err)
		return
	}
	w.endPhase(job.PhaseBuildingBody)

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Body built, requesting parts", map[string]interface{}{
		"order_id":   m.OrderID.String(),
		"count":      w.timing.PartsPerJob,
		"request_id": requestID,
	})

	w.inventory.Tell(RequestParts{
		OrderID:          m.OrderID,
		Count:            w.timing.PartsPerJob,
		RequestID:        requestID,
		ReplyTo:          w.agent,
		CompletionTarget: w.target,
	})
	if w.timing.PartsTimeout > 0 {
		w.agent.TellAfter(w.timing.PartsTimeout, PartsTimeout{OrderID: m.OrderID, RequestID: requestID})
	}
}

func (w *Worker) onPartsResponse(ctx context.Context, m PartsResponse) {
	if err := w.sm.PartsReceived(m.OrderID, m.RequestID, m.Delivered); err != nil {
		w.staleReplies++
		metrics.RecordStalePartsResponse(w.name)
		w.discard(ctx, "parts response", m.OrderID, err)
		return
	}
	w.endPhase(job.PhaseRequestingParts)

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Installing parts", map[string]interface{}{
		"order_id":  m.OrderID.String(),
		"delivered": kindNames(m.Delivered),
		"requested": len(m.Requested),
	})
	w.agent.TellAfter(w.timing.Install, InstallDone{OrderID: m.OrderID})
}

func (w *Worker) onPartsTimeout(ctx context.Context, m PartsTimeout) {
	// A timeout for a request that was already answered is expected; ignore it quietly
	if w.sm.Phase() != job.PhaseRequestingParts || w.sm.RequestID() != m.RequestID {
		return
	}
	if err := w.sm.PartsTimedOut(m.OrderID, m.RequestID); err != nil {
		w.discard(ctx, "parts timeout", m.OrderID, err)
		return
	}
	w.partsTimeouts++
	metrics.RecordPartsTimeout(w.name)
	w.endPhase(job.PhaseRequestingParts)

	common.LoggerFromContext(ctx).Log(common.LevelWarn, "Parts request timed out, installing without parts", map[string]interface{}{
		"order_id":   m.OrderID.String(),
		"request_id": m.RequestID,
		"inventory":  w.inventoryName,
	})
	w.agent.TellAfter(w.timing.Install, InstallDone{OrderID: m.OrderID})
}

func (w *Worker) onInstallDone(ctx context.Context, m InstallDone) {
	record, err := w.sm.Complete(m.OrderID)
	if err != nil {
		w.discard(ctx, "install timer", m.OrderID, err)
		return
	}
	w.endPhase(job.PhaseInstalling)
	w.completed++

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Final assembly complete", map[string]interface{}{
		"order_id": m.OrderID.String(),
		"duration": record.Duration().String(),
	})

	if w.target != nil {
		w.target.Tell(CarComplete{
			OrderID:        record.OrderID,
			Worker:         w.name,
			RequestedParts: record.RequestedParts,
			Parts:          record.Delivered,
			PartsTimedOut:  record.PartsTimedOut,
			StartedAt:      record.ReceivedAt,
			CompletedAt:    record.CompletedAt,
		})
	}
	w.target = nil

	if len(w.backlog) > 0 {
		next := w.backlog[0]
		w.backlog = w.backlog[1:]
		w.begin(ctx, next)
	}
}

// endPhase records the time spent in the phase that just finished
func (w *Worker) endPhase(phase job.Phase) {
	now := w.agent.Clock().Now()
	metrics.RecordJobPhase(w.name, string(phase), now.Sub(w.phaseStart).Seconds())
	w.phaseStart = now
}

func (w *Worker) discard(ctx context.Context, what string, orderID order.ID, err error) {
	common.LoggerFromContext(ctx).Log(common.LevelDebug, "Discarding "+what, map[string]interface{}{
		"order_id": orderID.String(),
		"phase":    string(w.sm.Phase()),
		"error":    err.Error(),
	})
}

func (w *Worker) snapshot() WorkerSnapshot {
	backlog := make([]order.ID, len(w.backlog))
	for i, queued := range w.backlog {
		backlog[i] = queued.OrderID
	}
	return WorkerSnapshot{
		Name:          w.name,
		Inventory:     w.inventoryName,
		Phase:         w.sm.Phase(),
		OrderID:       w.sm.OrderID(),
		Backlog:       backlog,
		Completed:     w.completed,
		Rejected:      w.rejected,
		StaleReplies:  w.staleReplies,
		PartsTimeouts: w.partsTimeouts,
	}
}

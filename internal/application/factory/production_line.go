package factory

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/andrescamacho/carfactory-go/internal/adapters/metrics"
	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

// recentLimit bounds the completed ids kept for snapshots
const recentLimit = 256

// ProductionLine is the agent that hands dispatched orders to its workers.
// Its worker list and inventory are fixed at construction.
type ProductionLine struct {
	agent         *actor.Agent[LineMessage]
	name          string
	workers       []actor.Ref[WorkerMessage]
	byName        map[string]actor.Ref[WorkerMessage]
	inventoryName string
	rng           *rand.Rand
	reporter      actor.Ref[Event]
	runID         string

	started    int
	completed  int
	recent     []order.ID
	rejections int

	// backlog holds orders handed back by busy workers
	backlog []order.ID
}

// LineOptions configures a ProductionLine
type LineOptions struct {
	Name          string
	Workers       []actor.Ref[WorkerMessage]
	InventoryName string
	Rand          *rand.Rand
	Clock         shared.Clock
	Reporter      actor.Ref[Event]
	RunID         string
}

// NewProductionLine creates a line agent; call Start to run it
func NewProductionLine(opts LineOptions) (*ProductionLine, error) {
	if len(opts.Workers) == 0 {
		return nil, fmt.Errorf("production line %s has no workers", opts.Name)
	}

	byName := make(map[string]actor.Ref[WorkerMessage], len(opts.Workers))
	for _, w := range opts.Workers {
		byName[w.Name()] = w
	}

	return &ProductionLine{
		agent:         actor.NewAgent[LineMessage](opts.Name, opts.Clock),
		name:          opts.Name,
		workers:       append([]actor.Ref[WorkerMessage](nil), opts.Workers...),
		byName:        byName,
		inventoryName: opts.InventoryName,
		rng:           opts.Rand,
		reporter:      opts.Reporter,
		runID:         opts.RunID,
	}, nil
}

func (l *ProductionLine) Name() string { return l.name }

// Ref returns the line's address
func (l *ProductionLine) Ref() actor.Ref[LineMessage] { return l.agent }

func (l *ProductionLine) Start(ctx context.Context) error {
	ctx = common.WithLogger(ctx, common.WithFields(common.LoggerFromContext(ctx), map[string]interface{}{
		"agent": l.name,
	}))
	return l.agent.Start(ctx, l.handle)
}

func (l *ProductionLine) Stop() { l.agent.Stop() }

// Snapshot asks the agent for its current state
func (l *ProductionLine) Snapshot(ctx context.Context) (LineSnapshot, error) {
	return actor.Ask(ctx, l.Ref(), func(reply chan<- LineSnapshot) LineMessage {
		return LineSnapshotQuery{Reply: reply}
	})
}

func (l *ProductionLine) handle(ctx context.Context, msg LineMessage) {
	switch m := msg.(type) {
	case StartProduction:
		l.onStartProduction(ctx, m)
	case CarComplete:
		l.onCarComplete(ctx, m)
	case JobRejected:
		l.onJobRejected(ctx, m)
	case LineSnapshotQuery:
		m.Reply <- l.snapshot()
	default:
		common.LoggerFromContext(ctx).Log(common.LevelWarn, "Dropping unknown line message", map[string]interface{}{
			"message_type": typeName(msg),
		})
	}
}

func (l *ProductionLine) onStartProduction(ctx context.Context, m StartProduction) {
	worker := l.workers[l.rng.IntN(len(l.workers))]
	l.started++

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Starting production", map[string]interface{}{
		"order_id": m.OrderID.String(),
		"worker":   worker.Name(),
	})
	worker.Tell(StartJob{OrderID: m.OrderID, CompletionTarget: l.agent})
}

func (l *ProductionLine) onJobRejected(ctx context.Context, m JobRejected) {
	l.rejections++
	l.backlog = append(l.backlog, m.OrderID)

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Worker busy, order held for redispatch", map[string]interface{}{
		"order_id": m.OrderID.String(),
		"worker":   m.Worker,
		"backlog":  len(l.backlog),
	})
}

func (l *ProductionLine) onCarComplete(ctx context.Context, m CarComplete) {
	l.completed++
	l.recent = append(l.recent, m.OrderID)
	if len(l.recent) > recentLimit {
		l.recent = l.recent[len(l.recent)-recentLimit:]
	}

	duration := m.CompletedAt.Sub(m.StartedAt)
	metrics.RecordCarCompleted(l.name, m.Worker, duration.Seconds())

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Car fully assembled and ready", map[string]interface{}{
		"order_id": m.OrderID.String(),
		"worker":   m.Worker,
		"parts":    kindNames(m.Parts),
		"duration": duration.String(),
	})

	if l.reporter != nil {
		l.reporter.Tell(CompletionEvent{
			RunID:          l.runID,
			Line:           l.name,
			Worker:         m.Worker,
			OrderID:        m.OrderID,
			RequestedParts: m.RequestedParts,
			Parts:          m.Parts,
			PartsTimedOut:  m.PartsTimedOut,
			StartedAt:      m.StartedAt,
			CompletedAt:    m.CompletedAt,
		})
	}

	// The worker that just finished is idle: give it the oldest held order
	if len(l.backlog) > 0 {
		next := l.backlog[0]
		l.backlog = l.backlog[1:]

		worker, ok := l.byName[m.Worker]
		if !ok {
			worker = l.workers[l.rng.IntN(len(l.workers))]
		}
		worker.Tell(StartJob{OrderID: next, CompletionTarget: l.agent})
	}
}

func (l *ProductionLine) snapshot() LineSnapshot {
	names := make([]string, len(l.workers))
	for i, w := range l.workers {
		names[i] = w.Name()
	}
	return LineSnapshot{
		Name:       l.name,
		Workers:    names,
		Inventory:  l.inventoryName,
		Started:    l.started,
		Completed:  l.completed,
		Recent:     append([]order.ID(nil), l.recent...),
		Rejections: l.rejections,
		Backlog:    append([]order.ID(nil), l.backlog...),
	}
}

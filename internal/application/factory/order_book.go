package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/andrescamacho/carfactory-go/internal/adapters/metrics"
	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

// OrderBook is the agent that generates orders and dispatches them round robin.
//
// Invariants:
// - ids are handed out from 1 upwards without gaps
// - cursor stays in [0, len(lines))
// - an empty queue leaves the cursor untouched on a dispatch attempt
type OrderBook struct {
	agent *actor.Agent[OrderBookMessage]
	lines []actor.Ref[LineMessage]
	queue *order.Queue
	seq   *order.Sequence

	generateEvery time.Duration
	assignEvery   time.Duration

	cursor     int
	generated  int
	shedCount  int
	recentShed []order.ID
	dispatched map[string]int
	emptyTicks int
}

// OrderBookOptions configures an OrderBook. A zero interval disables that timer.
type OrderBookOptions struct {
	Lines          []actor.Ref[LineMessage]
	QueueCapacity  int
	OverflowPolicy order.OverflowPolicy
	GenerateEvery  time.Duration
	AssignEvery    time.Duration
	Clock          shared.Clock
}

// NewOrderBook creates the order book agent; call Start to run it
func NewOrderBook(opts OrderBookOptions) (*OrderBook, error) {
	if len(opts.Lines) == 0 {
		return nil, fmt.Errorf("order book needs at least one production line")
	}
	if opts.OverflowPolicy == "" {
		opts.OverflowPolicy = order.OverflowDropNewest
	}

	queue, err := order.NewQueue(opts.QueueCapacity, opts.OverflowPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to create order queue: %w", err)
	}

	dispatched := make(map[string]int, len(opts.Lines))
	for _, line := range opts.Lines {
		dispatched[line.Name()] = 0
	}

	return &OrderBook{
		agent:         actor.NewAgent[OrderBookMessage]("order-book", opts.Clock),
		lines:         append([]actor.Ref[LineMessage](nil), opts.Lines...),
		queue:         queue,
		seq:           order.NewSequence(),
		generateEvery: opts.GenerateEvery,
		assignEvery:   opts.AssignEvery,
		dispatched:    dispatched,
	}, nil
}

func (ob *OrderBook) Name() string { return ob.agent.Name() }

// Ref returns the order book's address
func (ob *OrderBook) Ref() actor.Ref[OrderBookMessage] { return ob.agent }

// Start runs the agent and arms the generation and assignment timers
func (ob *OrderBook) Start(ctx context.Context) error {
	ctx = common.WithLogger(ctx, common.WithFields(common.LoggerFromContext(ctx), map[string]interface{}{
		"agent": ob.agent.Name(),
	}))
	if err := ob.agent.Start(ctx, ob.handle); err != nil {
		return err
	}
	ob.agent.Tell(armTimers{})
	return nil
}

func (ob *OrderBook) Stop() { ob.agent.Stop() }

// Snapshot asks the agent for its current state
func (ob *OrderBook) Snapshot(ctx context.Context) (OrderBookSnapshot, error) {
	return actor.Ask(ctx, ob.Ref(), func(reply chan<- OrderBookSnapshot) OrderBookMessage {
		return OrderBookSnapshotQuery{Reply: reply}
	})
}

func (ob *OrderBook) handle(ctx context.Context, msg OrderBookMessage) {
	switch m := msg.(type) {
	case armTimers:
		common.LoggerFromContext(ctx).Log(common.LevelInfo, "OrderBook started", map[string]interface{}{
			"lines":          len(ob.lines),
			"generate_every": ob.generateEvery.String(),
			"assign_every":   ob.assignEvery.String(),
		})
		ob.scheduleNextOrder()
		if ob.assignEvery > 0 {
			ob.agent.TellAfter(ob.assignEvery, TryAssignOrder{periodic: true})
		}
	case NewOrder:
		ob.onNewOrder(ctx, m)
	case TryAssignOrder:
		ob.tryAssign(ctx)
		if m.periodic {
			ob.agent.TellAfter(ob.assignEvery, TryAssignOrder{periodic: true})
		}
	case OrderBookSnapshotQuery:
		m.Reply <- ob.snapshot()
	default:
		common.LoggerFromContext(ctx).Log(common.LevelWarn, "Dropping unknown order book message", map[string]interface{}{
			"message_type": typeName(msg),
		})
	}
}

// scheduleNextOrder reserves the next id and arms a one-shot generation timer
func (ob *OrderBook) scheduleNextOrder() {
	if ob.generateEvery <= 0 {
		return
	}
	ob.agent.TellAfter(ob.generateEvery, NewOrder{OrderID: ob.seq.Next()})
}

func (ob *OrderBook) onNewOrder(ctx context.Context, m NewOrder) {
	logger := common.LoggerFromContext(ctx)
	ob.generated++
	metrics.RecordOrderGenerated()

	if victim, shed := ob.queue.Enqueue(m.OrderID); shed {
		ob.shedCount++
		ob.recentShed = append(ob.recentShed, victim)
		if len(ob.recentShed) > recentLimit {
			ob.recentShed = ob.recentShed[len(ob.recentShed)-recentLimit:]
		}
		metrics.RecordOrderShed(string(ob.queue.Policy()))
		logger.Log(common.LevelWarn, "Order queue full, order shed", map[string]interface{}{
			"order_id": victim.String(),
			"policy":   string(ob.queue.Policy()),
			"capacity": ob.queue.Capacity(),
		})
	}

	logger.Log(common.LevelInfo, "New order received", map[string]interface{}{
		"order_id":    m.OrderID.String(),
		"queue_depth": ob.queue.Len(),
	})
	ob.scheduleNextOrder()
}

// tryAssign pops one order and sends it to the line under the cursor
func (ob *OrderBook) tryAssign(ctx context.Context) {
	logger := common.LoggerFromContext(ctx)

	id, ok := ob.queue.Dequeue()
	if !ok {
		ob.emptyTicks++
		metrics.RecordEmptyAssignTick()
		logger.Log(common.LevelDebug, "No pending orders to assign", nil)
		return
	}

	line := ob.lines[ob.cursor]
	ob.cursor = (ob.cursor + 1) % len(ob.lines)
	ob.dispatched[line.Name()]++
	metrics.RecordOrderDispatched(line.Name())

	logger.Log(common.LevelInfo, "Assigning order to production line", map[string]interface{}{
		"order_id": id.String(),
		"line":     line.Name(),
	})
	line.Tell(StartProduction{OrderID: id})
}

func (ob *OrderBook) snapshot() OrderBookSnapshot {
	dispatched := make(map[string]int, len(ob.dispatched))
	for name, n := range ob.dispatched {
		dispatched[name] = n
	}
	return OrderBookSnapshot{
		Queue:      ob.queue.Items(),
		Capacity:   ob.queue.Capacity(),
		NextID:     ob.seq.Peek(),
		Generated:  ob.generated,
		ShedCount:  ob.shedCount,
		RecentShed: append([]order.ID(nil), ob.recentShed...),
		Dispatched: dispatched,
		Cursor:     ob.cursor,
		EmptyTicks: ob.emptyTicks,
	}
}

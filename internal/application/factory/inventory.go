package factory

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/andrescamacho/carfactory-go/internal/adapters/metrics"
	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

// RestockPolicy controls replenishment after a partially served request
type RestockPolicy struct {
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Increment int

	// Coalesce keeps at most one restock pending. When false every partial
	// request arms its own timer and replenishments compound.
	Coalesce bool
}

// delay draws uniformly from [MinDelay, MaxDelay]
func (p RestockPolicy) delay(rng *rand.Rand) time.Duration {
	spread := p.MaxDelay - p.MinDelay
	if spread <= 0 {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(rng.Int64N(int64(spread)+1))
}

// Inventory is the agent owning one storage pool
type Inventory struct {
	agent    *actor.Agent[InventoryMessage]
	name     string
	stock    *parts.Stock
	rng      *rand.Rand
	policy   RestockPolicy
	reporter actor.Ref[Event]
	runID    string

	pendingRestocks int
	requests        int
	partial         int
	delivered       int
	missing         int
	restocks        int
}

// InventoryOptions configures an Inventory
type InventoryOptions struct {
	Name     string
	Stock    *parts.Stock
	Restock  RestockPolicy
	Rand     *rand.Rand
	Clock    shared.Clock
	Reporter actor.Ref[Event]
	RunID    string
}

// NewInventory creates an inventory agent; call Start to run it
func NewInventory(opts InventoryOptions) *Inventory {
	return &Inventory{
		agent:    actor.NewAgent[InventoryMessage](opts.Name, opts.Clock),
		name:     opts.Name,
		stock:    opts.Stock,
		rng:      opts.Rand,
		policy:   opts.Restock,
		reporter: opts.Reporter,
		runID:    opts.RunID,
	}
}

func (inv *Inventory) Name() string { return inv.name }

// Ref returns the inventory's address
func (inv *Inventory) Ref() actor.Ref[InventoryMessage] { return inv.agent }

func (inv *Inventory) Start(ctx context.Context) error {
	ctx = common.WithLogger(ctx, common.WithFields(common.LoggerFromContext(ctx), map[string]interface{}{
		"agent": inv.name,
	}))
	return inv.agent.Start(ctx, inv.handle)
}

func (inv *Inventory) Stop() { inv.agent.Stop() }

// Snapshot asks the agent for its current state
func (inv *Inventory) Snapshot(ctx context.Context) (InventorySnapshot, error) {
	return actor.Ask(ctx, inv.Ref(), func(reply chan<- InventorySnapshot) InventoryMessage {
		return InventorySnapshotQuery{Reply: reply}
	})
}

func (inv *Inventory) handle(ctx context.Context, msg InventoryMessage) {
	switch m := msg.(type) {
	case RequestParts:
		inv.onRequestParts(ctx, m)
	case Restock:
		inv.onRestock(ctx)
	case InventorySnapshotQuery:
		m.Reply <- inv.snapshot()
	default:
		common.LoggerFromContext(ctx).Log(common.LevelWarn, "Dropping unknown inventory message", map[string]interface{}{
			"message_type": typeName(msg),
		})
	}
}

func (inv *Inventory) onRequestParts(ctx context.Context, m RequestParts) {
	logger := common.LoggerFromContext(ctx)

	fulfillment, err := inv.stock.Fulfill(inv.rng, m.Count)
	if err != nil {
		// Shortfall is never an error reply: an unservable count gets nothing
		logger.Log(common.LevelWarn, "Parts request count out of range", map[string]interface{}{
			"order_id": m.OrderID.String(),
			"count":    m.Count,
			"error":    err.Error(),
		})
		fulfillment = parts.Fulfillment{Delivered: []parts.Kind{}}
	}

	inv.requests++
	inv.delivered += len(fulfillment.Delivered)
	inv.missing += len(fulfillment.Missing)
	metrics.RecordPartsRequest(inv.name, len(fulfillment.Delivered), len(fulfillment.Missing))

	if fulfillment.Partial() {
		inv.partial++
		logger.Log(common.LevelInfo, "Parts missing, restock needed", map[string]interface{}{
			"order_id": m.OrderID.String(),
			"missing":  kindNames(fulfillment.Missing),
		})
		inv.scheduleRestock(ctx)
	}

	if m.ReplyTo != nil {
		m.ReplyTo.Tell(PartsResponse{
			OrderID:          m.OrderID,
			RequestID:        m.RequestID,
			Inventory:        inv.name,
			Requested:        fulfillment.Requested,
			Delivered:        fulfillment.Delivered,
			CompletionTarget: m.CompletionTarget,
		})
	}
}

func (inv *Inventory) scheduleRestock(ctx context.Context) {
	if inv.policy.Coalesce && inv.pendingRestocks > 0 {
		return
	}

	delay := inv.policy.delay(inv.rng)
	inv.pendingRestocks++
	inv.agent.TellAfter(delay, Restock{})

	common.LoggerFromContext(ctx).Log(common.LevelDebug, "Restock scheduled", map[string]interface{}{
		"delay":   delay.String(),
		"pending": inv.pendingRestocks,
	})
}

func (inv *Inventory) onRestock(ctx context.Context) {
	if inv.pendingRestocks > 0 {
		inv.pendingRestocks--
	}
	if err := inv.stock.Replenish(inv.policy.Increment); err != nil {
		common.LoggerFromContext(ctx).Log(common.LevelError, "Restock failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	inv.restocks++
	metrics.RecordRestock(inv.name)

	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Inventory restocked", map[string]interface{}{
		"increment": inv.policy.Increment,
		"total":     inv.stock.Total(),
	})

	if inv.reporter != nil {
		inv.reporter.Tell(RestockEvent{
			RunID:      inv.runID,
			Inventory:  inv.name,
			Increment:  inv.policy.Increment,
			StockAfter: inv.stock.Snapshot(),
			At:         inv.agent.Clock().Now(),
		})
	}
}

func (inv *Inventory) snapshot() InventorySnapshot {
	return InventorySnapshot{
		Name:            inv.name,
		Stock:           inv.stock.Snapshot(),
		Requests:        inv.requests,
		PartialRequests: inv.partial,
		Delivered:       inv.delivered,
		Missing:         inv.missing,
		Restocks:        inv.restocks,
		PendingRestocks: inv.pendingRestocks,
	}
}

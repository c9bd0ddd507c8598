package factory

import (
	"time"

	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/domain/job"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
)

// Every agent accepts a closed set of messages. The unexported marker method
// keeps the sets sealed to this package.

// ============================================================================
// Inventory
// ============================================================================

// InventoryMessage is a message accepted by an Inventory
type InventoryMessage interface{ inventoryMessage() }

// RequestParts asks for Count distinct random kinds. Exactly one PartsResponse
// is sent to ReplyTo.
type RequestParts struct {
	OrderID          order.ID
	Count            int
	RequestID        string
	ReplyTo          actor.Ref[WorkerMessage]
	CompletionTarget actor.Ref[LineMessage]
}

// Restock is the inventory's own replenishment timer expiry
type Restock struct{}

// InventorySnapshotQuery asks for a copy of the inventory state
type InventorySnapshotQuery struct {
	Reply chan<- InventorySnapshot
}

func (RequestParts) inventoryMessage()           {}
func (Restock) inventoryMessage()                {}
func (InventorySnapshotQuery) inventoryMessage() {}

// InventorySnapshot is a point-in-time view of one inventory
type InventorySnapshot struct {
	Name            string
	Stock           map[parts.Kind]int
	Requests        int
	PartialRequests int
	Delivered       int
	Missing         int
	Restocks        int
	PendingRestocks int
}

// ============================================================================
// Worker
// ============================================================================

// WorkerMessage is a message accepted by a Worker
type WorkerMessage interface{ workerMessage() }

// StartJob hands an order to a worker. The worker reports back to CompletionTarget.
type StartJob struct {
	OrderID          order.ID
	CompletionTarget actor.Ref[LineMessage]
}

// PartsResponse is the inventory's reply to RequestParts. Delivered may hold
// anywhere from zero to len(Requested) kinds.
type PartsResponse struct {
	OrderID          order.ID
	RequestID        string
	Inventory        string
	Requested        []parts.Kind
	Delivered        []parts.Kind
	CompletionTarget actor.Ref[LineMessage]
}

// BuildDone is the worker's build timer expiry
type BuildDone struct {
	OrderID order.ID
}

// InstallDone is the worker's install timer expiry
type InstallDone struct {
	OrderID order.ID
}

// PartsTimeout fires when the inventory has not answered RequestID in time
type PartsTimeout struct {
	OrderID   order.ID
	RequestID string
}

// WorkerSnapshotQuery asks for a copy of the worker state
type WorkerSnapshotQuery struct {
	Reply chan<- WorkerSnapshot
}

func (StartJob) workerMessage()            {}
func (PartsResponse) workerMessage()       {}
func (BuildDone) workerMessage()           {}
func (InstallDone) workerMessage()         {}
func (PartsTimeout) workerMessage()        {}
func (WorkerSnapshotQuery) workerMessage() {}

// WorkerSnapshot is a point-in-time view of one worker
type WorkerSnapshot struct {
	Name          string
	Inventory     string
	Phase         job.Phase
	OrderID       order.ID
	Backlog       []order.ID
	Completed     int
	Rejected      int
	StaleReplies  int
	PartsTimeouts int
}

// ============================================================================
// ProductionLine
// ============================================================================

// LineMessage is a message accepted by a ProductionLine
type LineMessage interface{ lineMessage() }

// StartProduction dispatches an order to a line
type StartProduction struct {
	OrderID order.ID
}

// CarComplete is a worker's report that an order is finished
type CarComplete struct {
	OrderID        order.ID
	Worker         string
	RequestedParts int
	Parts          []parts.Kind
	PartsTimedOut  bool
	StartedAt      time.Time
	CompletedAt    time.Time
}

// JobRejected returns an order a busy worker would not take
type JobRejected struct {
	OrderID order.ID
	Worker  string
}

// LineSnapshotQuery asks for a copy of the line state
type LineSnapshotQuery struct {
	Reply chan<- LineSnapshot
}

func (StartProduction) lineMessage()   {}
func (CarComplete) lineMessage()       {}
func (JobRejected) lineMessage()       {}
func (LineSnapshotQuery) lineMessage() {}

// LineSnapshot is a point-in-time view of one production line
type LineSnapshot struct {
	Name       string
	Workers    []string
	Inventory  string
	Started    int
	Completed  int
	Recent     []order.ID
	Rejections int
	Backlog    []order.ID
}

// ============================================================================
// OrderBook
// ============================================================================

// OrderBookMessage is a message accepted by the OrderBook
type OrderBookMessage interface{ orderBookMessage() }

// NewOrder is the generation timer expiry carrying the id reserved when it was armed
type NewOrder struct {
	OrderID order.ID
}

// TryAssignOrder attempts one dispatch. The periodic tick re-arms itself;
// a TryAssignOrder sent from outside the order book is a one-off attempt.
type TryAssignOrder struct {
	periodic bool
}

// armTimers is the first message an order book handles after Start
type armTimers struct{}

// OrderBookSnapshotQuery asks for a copy of the order book state
type OrderBookSnapshotQuery struct {
	Reply chan<- OrderBookSnapshot
}

func (NewOrder) orderBookMessage()               {}
func (TryAssignOrder) orderBookMessage()         {}
func (armTimers) orderBookMessage()              {}
func (OrderBookSnapshotQuery) orderBookMessage() {}

// OrderBookSnapshot is a point-in-time view of the order book
type OrderBookSnapshot struct {
	Queue      []order.ID
	Capacity   int
	NextID     order.ID
	Generated  int
	ShedCount  int
	RecentShed []order.ID
	Dispatched map[string]int
	Cursor     int
	EmptyTicks int
}

package job

import (
	"fmt"
	"time"

	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

// Phase is the position of a worker inside its single-job cycle
type Phase string

const (
	PhaseIdle            Phase = "IDLE"
	PhaseBuildingBody    Phase = "BUILDING_BODY"
	PhaseRequestingParts Phase = "REQUESTING_PARTS"
	PhaseInstalling      Phase = "INSTALLING"
)

// BusyPolicy decides what a worker does with a job that arrives mid-cycle
type BusyPolicy string

const (
	// BusyPolicyQueue keeps the job in the worker's FIFO backlog
	BusyPolicyQueue BusyPolicy = "queue"

	// BusyPolicyReject hands the job back to the production line
	BusyPolicyReject BusyPolicy = "reject"
)

func ParseBusyPolicy(raw string) (BusyPolicy, error) {
	switch BusyPolicy(raw) {
	case BusyPolicyQueue, BusyPolicyReject:
		return BusyPolicy(raw), nil
	default:
		return "", fmt.Errorf("unknown busy policy %q", raw)
	}
}

// Record summarises a finished job
type Record struct {
	OrderID        order.ID
	RequestedParts int
	Delivered      []parts.Kind
	ReceivedAt     time.Time
	PartsAt        time.Time
	CompletedAt    time.Time
	PartsTimedOut  bool
}

// Duration is the time from StartJob to completion
func (r Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.ReceivedAt)
}

// StateMachine tracks the one job a worker is running.
//
// Transitions: IDLE → BUILDING_BODY → REQUESTING_PARTS → INSTALLING → IDLE.
// Every event names the order it belongs to; events for another order, or out
// of phase, are rejected so that stale timers and replies cannot corrupt the cycle.
//
// Not safe for concurrent use; owned by a worker agent.
type StateMachine struct {
	clock shared.Clock
	phase Phase

	orderID        order.ID
	requestID      string
	requestedParts int
	delivered      []parts.Kind
	partsTimedOut  bool
	receivedAt     time.Time
	partsAt        time.Time
}

// NewStateMachine creates an idle state machine
func NewStateMachine(clock shared.Clock) *StateMachine {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &StateMachine{clock: clock, phase: PhaseIdle}
}

func (sm *StateMachine) Phase() Phase { return sm.phase }
func (sm *StateMachine) IsIdle() bool { return sm.phase == PhaseIdle }
func (sm *StateMachine) OrderID() order.ID { return sm.orderID }
func (sm *StateMachine) RequestID() string { return sm.requestID }
func (sm *StateMachine) ReceivedAt() time.Time { return sm.receivedAt }

// Start begins building the body of orderID
func (sm *StateMachine) Start(orderID order.ID) error {
	if sm.phase != PhaseIdle {
		return &ErrWorkerBusy{Current: sm.orderID, Rejected: orderID, Phase: sm.phase}
	}

	sm.phase = PhaseBuildingBody
	sm.orderID = orderID
	sm.requestID = ""
	sm.requestedParts = 0
	sm.delivered = nil
	sm.partsTimedOut = false
	sm.receivedAt = sm.clock.Now()
	sm.partsAt = time.Time{}
	return nil
}

// BodyBuilt records that the build timer fired and a parts request with
// requestID is about to be sent
func (sm *StateMachine) BodyBuilt(orderID order.ID, requestID string, count int) error {
	if err := sm.expect(orderID, PhaseBuildingBody, PhaseRequestingParts); err != nil {
		return err
	}
	sm.phase = PhaseRequestingParts
	sm.requestID = requestID
	sm.requestedParts = count
	return nil
}

// PartsReceived accepts the inventory reply for the pending request
func (sm *StateMachine) PartsReceived(orderID order.ID, requestID string, delivered []parts.Kind) error {
	if err := sm.expect(orderID, PhaseRequestingParts, PhaseInstalling); err != nil {
		return err
	}
	if requestID != sm.requestID {
		return &ErrStaleResponse{OrderID: orderID, Expected: sm.requestID, Got: requestID}
	}
	sm.phase = PhaseInstalling
	sm.delivered = append([]parts.Kind(nil), delivered...)
	sm.partsAt = sm.clock.Now()
	return nil
}

// PartsTimedOut gives up on the pending request and installs with nothing
func (sm *StateMachine) PartsTimedOut(orderID order.ID, requestID string) error {
	if err := sm.PartsReceived(orderID, requestID, nil); err != nil {
		return err
	}
	sm.partsTimedOut = true
	return nil
}

// Complete finishes installation and returns the worker to IDLE
func (sm *StateMachine) Complete(orderID order.ID) (Record, error) {
	if err := sm.expect(orderID, PhaseInstalling, PhaseIdle); err != nil {
		return Record{}, err
	}

	record := Record{
		OrderID:        sm.orderID,
		RequestedParts: sm.requestedParts,
		Delivered:      sm.delivered,
		ReceivedAt:     sm.receivedAt,
		PartsAt:        sm.partsAt,
		CompletedAt:    sm.clock.Now(),
		PartsTimedOut:  sm.partsTimedOut,
	}

	sm.phase = PhaseIdle
	sm.orderID = 0
	sm.requestID = ""
	sm.delivered = nil
	return record, nil
}

func (sm *StateMachine) expect(orderID order.ID, from, to Phase) error {
	if sm.phase != from {
		return shared.NewInvalidTransitionError(string(sm.phase), string(to))
	}
	if orderID != sm.orderID {
		return &ErrForeignOrder{Current: sm.orderID, Got: orderID}
	}
	return nil
}

package factory

import (
	"context"
	"time"

	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

// Event is a fact about a run that leaves the agent network
type Event interface{ event() }

// CompletionEvent records a finished car
type CompletionEvent struct {
	RunID          string
	Line           string
	Worker         string
	OrderID        order.ID
	RequestedParts int
	Parts          []parts.Kind
	PartsTimedOut  bool
	StartedAt      time.Time
	CompletedAt    time.Time
}

// RestockEvent records one replenishment of an inventory
type RestockEvent struct {
	RunID      string
	Inventory  string
	Increment  int
	StockAfter map[parts.Kind]int
	At         time.Time
}

func (CompletionEvent) event() {}
func (RestockEvent) event()    {}

// Sink persists or publishes events (production ledger, message broker)
type Sink interface {
	Name() string
	Record(ctx context.Context, event Event) error
}

// Reporter is the agent that hands events to the sinks. Sinks may block on
// I/O, so they run here rather than inside a line or inventory handler.
type Reporter struct {
	agent *actor.Agent[Event]
	sinks []Sink

	recorded int
	failures int
}

// NewReporter creates a reporter over the given sinks (none is fine)
func NewReporter(clock shared.Clock, sinks ...Sink) *Reporter {
	return &Reporter{
		agent: actor.NewAgent[Event]("reporter", clock),
		sinks: sinks,
	}
}

// Ref returns the reporter's address
func (r *Reporter) Ref() actor.Ref[Event] { return r.agent }

func (r *Reporter) Start(ctx context.Context) error {
	return r.agent.Start(ctx, r.handle)
}

func (r *Reporter) Stop() { r.agent.Stop() }

// Drain waits until every queued event has been handed to the sinks or ctx ends
func (r *Reporter) Drain(ctx context.Context) error {
	_, err := actor.Ask(ctx, actor.Ref[Event](r.agent), func(reply chan<- struct{}) Event {
		return drainMarker{reply: reply}
	})
	return err
}

// drainMarker is answered once everything queued before it has been recorded
type drainMarker struct {
	reply chan<- struct{}
}

func (drainMarker) event() {}

func (r *Reporter) handle(ctx context.Context, event Event) {
	if marker, ok := event.(drainMarker); ok {
		marker.reply <- struct{}{}
		return
	}

	logger := common.LoggerFromContext(ctx)
	for _, sink := range r.sinks {
		if err := sink.Record(ctx, event); err != nil {
			r.failures++
			logger.Log(common.LevelError, "Failed to record factory event", map[string]interface{}{
				"sink":  sink.Name(),
				"event": eventKind(event),
				"error": err.Error(),
			})
			continue
		}
		r.recorded++
	}
}

func eventKind(event Event) string {
	switch event.(type) {
	case CompletionEvent:
		return "completion"
	case RestockEvent:
		return "restock"
	default:
		return "unknown"
	}
}

package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/carfactory-go/internal/adapters/persistence"
	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
	"github.com/andrescamacho/carfactory-go/pkg/utils"
	"github.com/andrescamacho/carfactory-go/test/helpers"
)

var scenarioEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// factoryWorld holds the agents of one scenario. Every agent runs on the same
// mock clock; the scenario moves time forward explicitly.
type factoryWorld struct {
	clock  *shared.MockClock
	runID  string
	ledger *persistence.GormLedgerRepository

	// single inventory scenarios
	reporter  *factory.Reporter
	inv       *factory.Inventory
	replies   *helpers.Probe[factory.WorkerMessage]
	responses []factory.PartsResponse

	// order book scenarios
	book       *factory.OrderBook
	lineProbes []*helpers.Probe[factory.LineMessage]
	dispatched []dispatch

	// whole network scenarios
	cfg     config.FactoryConfig
	plant   *factory.Factory
	started bool

	stops []func()
}

type dispatch struct {
	line    string
	orderID order.ID
}

func (w *factoryWorld) reset() error {
	w.teardown()

	if err := helpers.TruncateAllTables(); err != nil {
		return err
	}

	w.clock = shared.NewMockClock(scenarioEpoch)
	w.runID = utils.GenerateRunID(w.clock.Now())
	w.ledger = persistence.NewGormLedgerRepository(helpers.SharedTestDB)

	w.reporter = nil
	w.inv = nil
	w.replies = nil
	w.responses = nil
	w.book = nil
	w.lineProbes = nil
	w.dispatched = nil
	w.cfg = config.DefaultConfig().Factory
	w.plant = nil
	w.started = false
	return nil
}

func (w *factoryWorld) teardown() {
	for i := len(w.stops) - 1; i >= 0; i-- {
		w.stops[i]()
	}
	w.stops = nil
}

// startPlant builds and starts the whole network on first use
func (w *factoryWorld) startPlant() error {
	if w.started {
		return nil
	}
	plant, err := factory.Build(w.cfg, factory.BuildOptions{
		Clock: w.clock,
		RunID: w.runID,
		Sinks: []factory.Sink{w.ledger},
	})
	if err != nil {
		return fmt.Errorf("failed to build factory: %w", err)
	}
	if err := plant.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start factory: %w", err)
	}
	w.plant = plant
	w.started = true
	w.stops = append(w.stops, plant.Stop)
	return w.settle()
}

// settle lets the message cascade caused by the last clock move finish.
// Each pass queries every running agent once; a chain of n hops needs n passes.
func (w *factoryWorld) settle() error {
	for i := 0; i < 5; i++ {
		ctx, cancel := stepContext()
		err := w.snapshotAll(ctx)
		cancel()
		if err != nil {
			return err
		}
	}
	w.collectDispatches()
	return nil
}

func (w *factoryWorld) snapshotAll(ctx context.Context) error {
	if w.inv != nil {
		if _, err := w.inv.Snapshot(ctx); err != nil {
			return err
		}
	}
	if w.book != nil {
		if _, err := w.book.Snapshot(ctx); err != nil {
			return err
		}
	}
	if w.plant != nil {
		if _, err := w.plant.Snapshot(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *factoryWorld) collectDispatches() {
	for _, probe := range w.lineProbes {
		for probe.Len() > 0 {
			msg, ok := probe.Next(stepTimeout)
			if !ok {
				break
			}
			if start, isStart := msg.(factory.StartProduction); isStart {
				w.dispatched = append(w.dispatched, dispatch{line: probe.Name(), orderID: start.OrderID})
			}
		}
	}
}

func (w *factoryWorld) simulatedSecondsPass(seconds int) error {
	if w.inv == nil && w.book == nil {
		if err := w.startPlant(); err != nil {
			return err
		}
	}
	for i := 0; i < seconds; i++ {
		w.clock.Advance(time.Second)
		if err := w.settle(); err != nil {
			return err
		}
	}
	return nil
}

func (w *factoryWorld) simulatedMinutesPass(minutes int) error {
	return w.simulatedSecondsPass(minutes * 60)
}

// drainEvents waits until every event already emitted reached the ledger
func (w *factoryWorld) drainEvents() error {
	ctx, cancel := stepContext()
	defer cancel()
	switch {
	case w.plant != nil:
		return w.plant.Reporter.Drain(ctx)
	case w.reporter != nil:
		return w.reporter.Drain(ctx)
	}
	return nil
}

func (w *factoryWorld) orderBookSnapshot() (factory.OrderBookSnapshot, error) {
	ctx, cancel := stepContext()
	defer cancel()
	switch {
	case w.book != nil:
		return w.book.Snapshot(ctx)
	case w.plant != nil:
		return w.plant.OrderBook.Snapshot(ctx)
	}
	return factory.OrderBookSnapshot{}, fmt.Errorf("no order book in this scenario")
}

func (w *factoryWorld) plantSnapshot() (factory.Snapshot, error) {
	if w.plant == nil {
		return factory.Snapshot{}, fmt.Errorf("no factory in this scenario")
	}
	ctx, cancel := stepContext()
	defer cancel()
	return w.plant.Snapshot(ctx)
}

// InitializeFactoryScenario registers the car factory step definitions
func InitializeFactoryScenario(sc *godog.ScenarioContext) {
	w := &factoryWorld{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		return ctx, w.reset()
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		w.teardown()
		return ctx, nil
	})

	// Time
	sc.Step(`^(\d+) simulated seconds pass$`, w.simulatedSecondsPass)
	sc.Step(`^(\d+) simulated minutes pass$`, w.simulatedMinutesPass)

	registerInventorySteps(sc, w)
	registerOrderBookSteps(sc, w)
	registerPlantSteps(sc, w)
}

package steps

import (
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/carfactory-go/internal/adapters/persistence"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
)

func registerPlantSteps(sc *godog.ScenarioContext, w *factoryWorld) {
	// Given steps
	sc.Step(`^the default factory with seed (\d+)$`, w.theDefaultFactoryWithSeed)
	sc.Step(`^a factory with seed (\d+) and lines:$`, w.aFactoryWithSeedAndLines)
	sc.Step(`^every inventory starts with (\d+) units of each part$`, w.everyInventoryStartsWith)
	sc.Step(`^orders are generated every (\d+) seconds? and assigned every (\d+) seconds?$`, w.ordersAreGeneratedAndAssignedEvery)
	sc.Step(`^the order queue is limited to (\d+) orders$`, w.theOrderQueueIsLimitedTo)
	sc.Step(`^busy workers reject new jobs$`, w.busyWorkersRejectNewJobs)

	// Then steps
	sc.Step(`^at least (\d+) cars? should have been completed$`, w.atLeastCarsCompleted)
	sc.Step(`^exactly (\d+) cars? should have been completed$`, w.exactlyCarsCompleted)
	sc.Step(`^"([^"]*)" should have completed (\d+) cars?$`, w.lineShouldHaveCompleted)
	sc.Step(`^the ledger should record every completed car$`, w.theLedgerShouldRecordEveryCompletedCar)
	sc.Step(`^every recorded car should have taken at least (\d+) seconds$`, w.everyRecordedCarShouldHaveTakenAtLeast)
	sc.Step(`^the ledger should show (\d+) cars? built on "([^"]*)"$`, w.theLedgerShouldShowCarsBuiltOn)
	sc.Step(`^no inventory should hold negative stock$`, w.noInventoryShouldHoldNegativeStock)
	sc.Step(`^the lines should have taken turns$`, w.theLinesShouldHaveTakenTurns)
	sc.Step(`^every generated order should be queued, shed or dispatched$`, w.everyGeneratedOrderIsAccountedFor)
	sc.Step(`^at least (\d+) jobs? should have been rejected$`, w.atLeastJobsRejected)
}

func (w *factoryWorld) theDefaultFactoryWithSeed(seed int) error {
	w.cfg.Seed = uint64(seed)
	return nil
}

func (w *factoryWorld) aFactoryWithSeedAndLines(seed int, table *godog.Table) error {
	w.cfg.Seed = uint64(seed)
	w.cfg.Lines = nil
	w.cfg.Inventories = nil

	known := map[string]bool{}
	for _, row := range table.Rows[1:] {
		line := config.LineConfig{
			Name:      cell(table, row, "line"),
			Inventory: cell(table, row, "inventory"),
		}
		for _, worker := range strings.Split(cell(table, row, "workers"), ",") {
			line.Workers = append(line.Workers, strings.TrimSpace(worker))
		}
		w.cfg.Lines = append(w.cfg.Lines, line)

		if !known[line.Inventory] {
			known[line.Inventory] = true
			w.cfg.Inventories = append(w.cfg.Inventories, config.InventoryConfig{Name: line.Inventory})
		}
	}
	return nil
}

func (w *factoryWorld) everyInventoryStartsWith(units int) error {
	for i := range w.cfg.Inventories {
		stock := units
		w.cfg.Inventories[i].InitialStock = &stock
	}
	return nil
}

func (w *factoryWorld) ordersAreGeneratedAndAssignedEvery(generate, assign int) error {
	w.cfg.Orders.GenerateInterval = time.Duration(generate) * time.Second
	w.cfg.Orders.AssignInterval = time.Duration(assign) * time.Second
	return nil
}

func (w *factoryWorld) theOrderQueueIsLimitedTo(capacity int) error {
	w.cfg.Orders.QueueCapacity = capacity
	return nil
}

func (w *factoryWorld) busyWorkersRejectNewJobs() error {
	w.cfg.Worker.BusyPolicy = "reject"
	return nil
}

func (w *factoryWorld) atLeastCarsCompleted(n int) error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.GreaterOrEqual(t, snap.Completed(), n)
	})
}

func (w *factoryWorld) exactlyCarsCompleted(n int) error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, n, snap.Completed())
	})
}

func (w *factoryWorld) lineShouldHaveCompleted(line string, n int) error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	for _, l := range snap.Lines {
		if l.Name == line {
			return check(func(t assert.TestingT) bool {
				return assert.Equal(t, n, l.Completed, "cars completed on %s", line)
			})
		}
	}
	return fmt.Errorf("unknown line %q", line)
}

func (w *factoryWorld) theLedgerShouldRecordEveryCompletedCar() error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	if err := w.drainEvents(); err != nil {
		return err
	}

	ctx, cancel := stepContext()
	defer cancel()
	recorded, err := w.ledger.CountCompletions(ctx, w.runID)
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, int64(snap.Completed()), recorded)
	})
}

func (w *factoryWorld) recordedCars(filter persistence.LedgerFilter) ([]persistence.CompletionEntry, error) {
	if err := w.drainEvents(); err != nil {
		return nil, err
	}
	ctx, cancel := stepContext()
	defer cancel()
	filter.RunID = w.runID
	return w.ledger.ListCompletions(ctx, filter)
}

func (w *factoryWorld) everyRecordedCarShouldHaveTakenAtLeast(seconds int) error {
	entries, err := w.recordedCars(persistence.LedgerFilter{})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no cars recorded for %s", w.runID)
	}
	floor := time.Duration(seconds) * time.Second
	for _, e := range entries {
		if e.Duration < floor {
			return fmt.Errorf("order %s took %s, expected at least %s", e.OrderID, e.Duration, floor)
		}
	}
	return nil
}

func (w *factoryWorld) theLedgerShouldShowCarsBuiltOn(n int, line string) error {
	entries, err := w.recordedCars(persistence.LedgerFilter{Line: line})
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Len(t, entries, n, "cars recorded for %s", line)
	})
}

func (w *factoryWorld) noInventoryShouldHoldNegativeStock() error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	for _, inv := range snap.Inventories {
		for kind, units := range inv.Stock {
			if units < 0 {
				return fmt.Errorf("%s holds %d %s", inv.Name, units, kind)
			}
		}
	}
	return nil
}

// theLinesShouldHaveTakenTurns checks round robin: earlier lines lead by at most one dispatch
func (w *factoryWorld) theLinesShouldHaveTakenTurns() error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	for i := 1; i < len(snap.Lines); i++ {
		prev := snap.OrderBook.Dispatched[snap.Lines[i-1].Name]
		cur := snap.OrderBook.Dispatched[snap.Lines[i].Name]
		if prev-cur < 0 || prev-cur > 1 {
			return fmt.Errorf("%s got %d orders, %s got %d", snap.Lines[i-1].Name, prev, snap.Lines[i].Name, cur)
		}
	}
	return nil
}

func (w *factoryWorld) everyGeneratedOrderIsAccountedFor() error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	dispatched := 0
	for _, n := range snap.OrderBook.Dispatched {
		dispatched += n
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, snap.OrderBook.Generated, len(snap.OrderBook.Queue)+snap.OrderBook.ShedCount+dispatched)
	})
}

func (w *factoryWorld) atLeastJobsRejected(n int) error {
	snap, err := w.plantSnapshot()
	if err != nil {
		return err
	}
	rejected := 0
	for _, worker := range snap.Workers {
		rejected += worker.Rejected
	}
	return check(func(t assert.TestingT) bool {
		return assert.GreaterOrEqual(t, rejected, n)
	})
}

package steps

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/carfactory-go/internal/adapters/persistence"
	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/test/helpers"
)

var bddRestock = factory.RestockPolicy{
	MinDelay:  10 * time.Second,
	MaxDelay:  15 * time.Second,
	Increment: 3,
	Coalesce:  true,
}

func registerInventorySteps(sc *godog.ScenarioContext, w *factoryWorld) {
	// Given steps
	sc.Step(`^an inventory "([^"]*)" holding (\d+) units of each of "([^"]*)"$`, w.anInventoryHolding)
	sc.Step(`^an inventory "([^"]*)" holding (\d+) units of each of "([^"]*)" without restock coalescing$`, w.anInventoryHoldingWithoutCoalescing)

	// When steps
	sc.Step(`^a worker requests (\d+) parts for order (\d+)$`, w.aWorkerRequestsParts)

	// Then steps
	sc.Step(`^the worker should receive (\d+) distinct parts$`, w.theWorkerShouldReceiveDistinctParts)
	sc.Step(`^the last response should deliver (\d+) of (\d+) parts$`, w.theLastResponseShouldDeliver)
	sc.Step(`^"([^"]*)" should hold (\d+) units in total$`, w.inventoryShouldHoldInTotal)
	sc.Step(`^"([^"]*)" should have (\d+) pending restocks?$`, w.inventoryShouldHavePendingRestocks)
	sc.Step(`^every part in "([^"]*)" should have (\d+) units$`, w.everyPartShouldHave)
	sc.Step(`^no part in "([^"]*)" should have negative stock$`, w.noPartShouldBeNegative)
	sc.Step(`^the ledger should list (\d+) restocks? of "([^"]*)"$`, w.theLedgerShouldListRestocks)
}

func (w *factoryWorld) anInventoryHolding(name string, units int, kinds string) error {
	return w.startInventory(name, units, kinds, bddRestock)
}

func (w *factoryWorld) anInventoryHoldingWithoutCoalescing(name string, units int, kinds string) error {
	policy := bddRestock
	policy.Coalesce = false
	return w.startInventory(name, units, kinds, policy)
}

func (w *factoryWorld) startInventory(name string, units int, kinds string, policy factory.RestockPolicy) error {
	catalog, err := parts.NewCatalog(strings.Split(kinds, ","))
	if err != nil {
		return err
	}
	stock, err := parts.NewStock(catalog, units)
	if err != nil {
		return err
	}

	w.reporter = factory.NewReporter(w.clock, w.ledger)
	if err := w.reporter.Start(context.Background()); err != nil {
		return err
	}
	w.stops = append(w.stops, w.reporter.Stop)

	w.inv = factory.NewInventory(factory.InventoryOptions{
		Name:     name,
		Stock:    stock,
		Restock:  policy,
		Rand:     rand.New(rand.NewPCG(11, 13)),
		Clock:    w.clock,
		Reporter: w.reporter.Ref(),
		RunID:    w.runID,
	})
	if err := w.inv.Start(context.Background()); err != nil {
		return err
	}
	w.stops = append(w.stops, w.inv.Stop)
	w.replies = helpers.NewProbe[factory.WorkerMessage]("worker")
	return nil
}

func (w *factoryWorld) aWorkerRequestsParts(count, orderID int) error {
	if w.inv == nil {
		return fmt.Errorf("no inventory in this scenario")
	}
	id := order.ID(orderID)
	w.inv.Ref().Tell(factory.RequestParts{
		OrderID:   id,
		Count:     count,
		RequestID: "req-" + id.String(),
		ReplyTo:   w.replies,
	})

	msg, ok := w.replies.Next(stepTimeout)
	if !ok {
		return fmt.Errorf("inventory did not answer order %s", id)
	}
	resp, ok := msg.(factory.PartsResponse)
	if !ok {
		return fmt.Errorf("expected PartsResponse, got %T", msg)
	}
	w.responses = append(w.responses, resp)
	return w.settle()
}

func (w *factoryWorld) lastResponse() (factory.PartsResponse, error) {
	if len(w.responses) == 0 {
		return factory.PartsResponse{}, fmt.Errorf("no parts response received")
	}
	return w.responses[len(w.responses)-1], nil
}

func (w *factoryWorld) theWorkerShouldReceiveDistinctParts(count int) error {
	resp, err := w.lastResponse()
	if err != nil {
		return err
	}
	seen := make(map[parts.Kind]bool, len(resp.Delivered))
	for _, kind := range resp.Delivered {
		if seen[kind] {
			return fmt.Errorf("part %s delivered twice", kind)
		}
		seen[kind] = true
	}
	return check(func(t assert.TestingT) bool {
		return assert.Len(t, resp.Delivered, count)
	})
}

func (w *factoryWorld) theLastResponseShouldDeliver(delivered, requested int) error {
	resp, err := w.lastResponse()
	if err != nil {
		return err
	}
	if err := check(func(t assert.TestingT) bool {
		return assert.Len(t, resp.Requested, requested, "requested parts")
	}); err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Len(t, resp.Delivered, delivered, "delivered parts")
	})
}

func (w *factoryWorld) inventorySnapshot(name string) (factory.InventorySnapshot, error) {
	ctx, cancel := stepContext()
	defer cancel()
	if w.inv != nil && w.inv.Name() == name {
		return w.inv.Snapshot(ctx)
	}
	if w.plant != nil {
		for _, inv := range w.plant.Inventories {
			if inv.Name() == name {
				return inv.Snapshot(ctx)
			}
		}
	}
	return factory.InventorySnapshot{}, fmt.Errorf("unknown inventory %q", name)
}

func (w *factoryWorld) inventoryShouldHoldInTotal(name string, total int) error {
	snap, err := w.inventorySnapshot(name)
	if err != nil {
		return err
	}
	sum := 0
	for _, units := range snap.Stock {
		sum += units
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, total, sum, "total units in %s", name)
	})
}

func (w *factoryWorld) inventoryShouldHavePendingRestocks(name string, pending int) error {
	snap, err := w.inventorySnapshot(name)
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, pending, snap.PendingRestocks, "pending restocks in %s", name)
	})
}

func (w *factoryWorld) everyPartShouldHave(name string, units int) error {
	snap, err := w.inventorySnapshot(name)
	if err != nil {
		return err
	}
	for kind, got := range snap.Stock {
		if got != units {
			return fmt.Errorf("%s holds %d %s, expected %d", name, got, kind, units)
		}
	}
	return nil
}

func (w *factoryWorld) noPartShouldBeNegative(name string) error {
	snap, err := w.inventorySnapshot(name)
	if err != nil {
		return err
	}
	for kind, got := range snap.Stock {
		if got < 0 {
			return fmt.Errorf("%s holds %d %s", name, got, kind)
		}
	}
	return nil
}

func (w *factoryWorld) theLedgerShouldListRestocks(count int, name string) error {
	if err := w.drainEvents(); err != nil {
		return err
	}
	ctx, cancel := stepContext()
	defer cancel()

	entries, err := w.ledger.ListRestocks(ctx, persistence.LedgerFilter{RunID: w.runID})
	if err != nil {
		return err
	}
	matching := 0
	for _, e := range entries {
		if e.Inventory == name {
			matching++
		}
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, count, matching, "restocks of %s in the ledger", name)
	})
}

package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/test/helpers"
)

const bddGenerateEvery = 15 * time.Second

func registerOrderBookSteps(sc *godog.ScenarioContext, w *factoryWorld) {
	// Given steps
	sc.Step(`^an order book over lines "([^"]*)"$`, w.anOrderBookOverLines)
	sc.Step(`^an order book over lines "([^"]*)" holding at most (\d+) orders with policy "([^"]*)"$`, w.anOrderBookWithCapacity)

	// When steps
	sc.Step(`^(\d+) orders? (?:is|are) generated$`, w.ordersAreGenerated)
	sc.Step(`^the order book tries to assign (\d+) times?$`, w.theOrderBookTriesToAssign)

	// Then steps
	sc.Step(`^the orders should be dispatched as:$`, w.theOrdersShouldBeDispatchedAs)
	sc.Step(`^no line should have received an order$`, w.noLineShouldHaveReceivedAnOrder)
	sc.Step(`^the order queue should be "([^"]*)"$`, w.theOrderQueueShouldBe)
	sc.Step(`^the dispatch cursor should point at "([^"]*)"$`, w.theDispatchCursorShouldPointAt)
	sc.Step(`^(\d+) empty assignment attempts? should be counted$`, w.emptyAssignmentAttemptsShouldBeCounted)
	sc.Step(`^(\d+) orders should have been generated$`, w.ordersShouldHaveBeenGenerated)
	sc.Step(`^(\d+) orders should have been shed$`, w.ordersShouldHaveBeenShed)
	sc.Step(`^the order queue should hold (\d+) orders$`, w.theOrderQueueShouldHold)
}

func (w *factoryWorld) anOrderBookOverLines(lines string) error {
	return w.startOrderBook(lines, 100, string(order.OverflowDropNewest))
}

func (w *factoryWorld) anOrderBookWithCapacity(lines string, capacity int, policy string) error {
	return w.startOrderBook(lines, capacity, policy)
}

func (w *factoryWorld) startOrderBook(lines string, capacity int, policy string) error {
	overflow, err := order.ParseOverflowPolicy(policy)
	if err != nil {
		return err
	}

	var refs []actor.Ref[factory.LineMessage]
	for _, name := range strings.Split(lines, ",") {
		probe := helpers.NewProbe[factory.LineMessage](strings.TrimSpace(name))
		w.lineProbes = append(w.lineProbes, probe)
		refs = append(refs, probe)
	}

	book, err := factory.NewOrderBook(factory.OrderBookOptions{
		Lines:          refs,
		QueueCapacity:  capacity,
		OverflowPolicy: overflow,
		GenerateEvery:  bddGenerateEvery,
		Clock:          w.clock,
	})
	if err != nil {
		return err
	}
	if err := book.Start(context.Background()); err != nil {
		return err
	}
	w.book = book
	w.stops = append(w.stops, book.Stop)
	return w.settle()
}

// ordersAreGenerated fires the one-shot generation timer n times
func (w *factoryWorld) ordersAreGenerated(n int) error {
	if w.book == nil {
		return fmt.Errorf("no order book in this scenario")
	}
	for i := 0; i < n; i++ {
		if !w.clock.BlockUntilTimers(1, stepTimeout) {
			return fmt.Errorf("generation timer not armed before order %d", i+1)
		}
		w.clock.Advance(bddGenerateEvery)
		if err := w.settle(); err != nil {
			return err
		}
	}
	return nil
}

func (w *factoryWorld) theOrderBookTriesToAssign(times int) error {
	if w.book == nil {
		return fmt.Errorf("no order book in this scenario")
	}
	for i := 0; i < times; i++ {
		w.book.Ref().Tell(factory.TryAssignOrder{})
		if err := w.settle(); err != nil {
			return err
		}
	}
	return nil
}

func (w *factoryWorld) theOrdersShouldBeDispatchedAs(table *godog.Table) error {
	var want []dispatch
	for _, row := range table.Rows[1:] {
		id, err := cellInt(table, row, "order")
		if err != nil {
			return err
		}
		want = append(want, dispatch{line: cell(table, row, "line"), orderID: order.ID(id)})
	}

	// Probes are drained line by line, so compare per line in dispatch order
	byLine := func(ds []dispatch) map[string][]order.ID {
		out := map[string][]order.ID{}
		for _, d := range ds {
			out[d.line] = append(out[d.line], d.orderID)
		}
		return out
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, byLine(want), byLine(w.dispatched))
	})
}

func (w *factoryWorld) noLineShouldHaveReceivedAnOrder() error {
	return check(func(t assert.TestingT) bool {
		return assert.Empty(t, w.dispatched)
	})
}

func (w *factoryWorld) theOrderQueueShouldBe(expected string) error {
	snap, err := w.orderBookSnapshot()
	if err != nil {
		return err
	}
	want := []order.ID{}
	if expected != "" {
		for _, raw := range strings.Split(expected, ",") {
			id, err := order.ParseID(strings.TrimSpace(raw))
			if err != nil {
				return err
			}
			want = append(want, id)
		}
	}
	got := append([]order.ID{}, snap.Queue...)
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, want, got)
	})
}

func (w *factoryWorld) theDispatchCursorShouldPointAt(line string) error {
	snap, err := w.orderBookSnapshot()
	if err != nil {
		return err
	}
	if snap.Cursor < 0 || snap.Cursor >= len(w.lineProbes) {
		return fmt.Errorf("cursor %d out of range", snap.Cursor)
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, line, w.lineProbes[snap.Cursor].Name())
	})
}

func (w *factoryWorld) emptyAssignmentAttemptsShouldBeCounted(n int) error {
	snap, err := w.orderBookSnapshot()
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, n, snap.EmptyTicks)
	})
}

func (w *factoryWorld) ordersShouldHaveBeenGenerated(n int) error {
	snap, err := w.orderBookSnapshot()
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, n, snap.Generated)
	})
}

func (w *factoryWorld) ordersShouldHaveBeenShed(n int) error {
	snap, err := w.orderBookSnapshot()
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Equal(t, n, snap.ShedCount)
	})
}

func (w *factoryWorld) theOrderQueueShouldHold(n int) error {
	snap, err := w.orderBookSnapshot()
	if err != nil {
		return err
	}
	return check(func(t assert.TestingT) bool {
		return assert.Len(t, snap.Queue, n)
	})
}

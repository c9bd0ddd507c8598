package factory_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/test/helpers"
)

const wait = 2 * time.Second

var epoch = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type inventoryFixture struct {
	clock   *shared.MockClock
	inv     *factory.Inventory
	replies *helpers.Probe[factory.WorkerMessage]
	sink    *helpers.MockSink
}

func newInventory(t *testing.T, initial int, policy factory.RestockPolicy) *inventoryFixture {
	t.Helper()
	clock := shared.NewMockClock(epoch)
	stock, err := parts.NewStock(parts.MustNewCatalog("A", "B", "C", "D", "E"), initial)
	require.NoError(t, err)

	sink := helpers.NewMockSink()
	reporter := factory.NewReporter(clock, sink)
	require.NoError(t, reporter.Start(context.Background()))
	t.Cleanup(reporter.Stop)

	inv := factory.NewInventory(factory.InventoryOptions{
		Name:     "storage1",
		Stock:    stock,
		Restock:  policy,
		Rand:     seeded(7),
		Clock:    clock,
		Reporter: reporter.Ref(),
		RunID:    "run-test",
	})
	require.NoError(t, inv.Start(context.Background()))
	t.Cleanup(inv.Stop)

	return &inventoryFixture{
		clock:   clock,
		inv:     inv,
		replies: helpers.NewProbe[factory.WorkerMessage]("worker"),
		sink:    sink,
	}
}

func (f *inventoryFixture) request(t *testing.T, id order.ID, count int) factory.PartsResponse {
	t.Helper()
	f.inv.Ref().Tell(factory.RequestParts{
		OrderID:   id,
		Count:     count,
		RequestID: "req-" + id.String(),
		ReplyTo:   f.replies,
	})
	resp, ok := f.replies.Expect(t, wait).(factory.PartsResponse)
	require.True(t, ok)
	return resp
}

func (f *inventoryFixture) snapshot(t *testing.T) factory.InventorySnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	snap, err := f.inv.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

var defaultRestock = factory.RestockPolicy{
	MinDelay:  10 * time.Second,
	MaxDelay:  15 * time.Second,
	Increment: 3,
	Coalesce:  true,
}

func TestInventory_RepliesOncePerRequestWithDistinctKinds(t *testing.T) {
	// Arrange
	fx := newInventory(t, 4, defaultRestock)

	// Act
	resp := fx.request(t, 1, 2)

	// Assert
	assert.Equal(t, order.ID(1), resp.OrderID)
	assert.Equal(t, "req-#1", resp.RequestID)
	assert.Equal(t, "storage1", resp.Inventory)
	require.Len(t, resp.Requested, 2)
	assert.NotEqual(t, resp.Requested[0], resp.Requested[1])
	assert.Equal(t, resp.Requested, resp.Delivered)
	fx.replies.ExpectNone(t, 20*time.Millisecond)

	snap := fx.snapshot(t)
	assert.Equal(t, 18, sumStock(snap.Stock))
	for _, kind := range resp.Delivered {
		assert.Equal(t, 3, snap.Stock[kind])
	}
}

func TestInventory_CountsNeverNegativeUnderShortage(t *testing.T) {
	// Arrange
	fx := newInventory(t, 1, defaultRestock)
	delivered := map[parts.Kind]int{}

	// Act
	for i := 1; i <= 20; i++ {
		resp := fx.request(t, order.ID(i), 2)

		// Assert: delivered is a subset of requested
		assert.LessOrEqual(t, len(resp.Delivered), len(resp.Requested))
		for _, kind := range resp.Delivered {
			assert.Contains(t, resp.Requested, kind)
			delivered[kind]++
		}
	}

	snap := fx.snapshot(t)
	for kind, units := range snap.Stock {
		assert.GreaterOrEqual(t, units, 0)
		assert.Equal(t, 1-delivered[kind], units)
	}
	assert.Equal(t, 40, snap.Delivered+snap.Missing)
	assert.Equal(t, 5, snap.Delivered)
}

func TestInventory_ShortageTriggersRestockOfEveryKind(t *testing.T) {
	// Arrange
	fx := newInventory(t, 4, defaultRestock)

	// Act: keep requesting until some requested kind is out of stock
	partial := false
	for i := 1; i <= 50 && !partial; i++ {
		resp := fx.request(t, order.ID(i), 2)
		partial = len(resp.Delivered) < len(resp.Requested)
	}
	require.True(t, partial, "stock never ran out")

	before := fx.snapshot(t)
	assert.Equal(t, 1, before.PendingRestocks)
	require.True(t, fx.clock.BlockUntilTimers(1, wait))
	fx.clock.Advance(15 * time.Second)

	// Assert
	require.Eventually(t, func() bool { return fx.snapshot(t).Restocks == 1 }, wait, 5*time.Millisecond)
	after := fx.snapshot(t)
	for kind, units := range before.Stock {
		assert.Equal(t, units+3, after.Stock[kind], "kind %s", kind)
	}
	assert.Equal(t, 0, after.PendingRestocks)

	require.Eventually(t, func() bool { return len(fx.sink.Restocks()) == 1 }, wait, 5*time.Millisecond)
	event := fx.sink.Restocks()[0]
	assert.Equal(t, "storage1", event.Inventory)
	assert.Equal(t, "run-test", event.RunID)
	assert.Equal(t, after.Stock, event.StockAfter)
}

func TestInventory_RestockDelayWithinWindow(t *testing.T) {
	fx := newInventory(t, 0, factory.RestockPolicy{
		MinDelay:  10 * time.Second,
		MaxDelay:  10 * time.Second,
		Increment: 3,
		Coalesce:  true,
	})

	resp := fx.request(t, 1, 2)
	require.Empty(t, resp.Delivered)
	require.True(t, fx.clock.BlockUntilTimers(1, wait))

	fx.clock.Advance(10*time.Second - time.Millisecond)
	assert.Equal(t, 0, fx.snapshot(t).Restocks)

	fx.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return fx.snapshot(t).Restocks == 1 }, wait, 5*time.Millisecond)
	assert.Equal(t, 15, sumStock(fx.snapshot(t).Stock))
}

func TestInventory_RestockCoalescing(t *testing.T) {
	tests := []struct {
		name         string
		coalesce     bool
		wantTimers   int
		wantRestocks int
		wantStock    int
	}{
		{name: "coalesced", coalesce: true, wantTimers: 1, wantRestocks: 1, wantStock: 3},
		{name: "compounding", coalesce: false, wantTimers: 3, wantRestocks: 3, wantStock: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			policy := defaultRestock
			policy.Coalesce = tt.coalesce
			fx := newInventory(t, 0, policy)

			// Act: three empty deliveries
			for i := 1; i <= 3; i++ {
				resp := fx.request(t, order.ID(i), 1)
				require.Empty(t, resp.Delivered)
			}
			assert.Equal(t, tt.wantTimers, fx.clock.PendingTimers())
			fx.clock.Advance(15 * time.Second)

			// Assert
			require.Eventually(t, func() bool {
				return fx.snapshot(t).Restocks == tt.wantRestocks
			}, wait, 5*time.Millisecond)
			snap := fx.snapshot(t)
			for _, units := range snap.Stock {
				assert.Equal(t, tt.wantStock, units)
			}
		})
	}
}

func TestInventory_OutOfRangeCountGetsEmptyReply(t *testing.T) {
	fx := newInventory(t, 4, defaultRestock)

	resp := fx.request(t, 1, 9)

	assert.Empty(t, resp.Delivered)
	assert.Equal(t, 20, sumStock(fx.snapshot(t).Stock))
}

func sumStock(stock map[parts.Kind]int) int {
	total := 0
	for _, units := range stock {
		total += units
	}
	return total
}

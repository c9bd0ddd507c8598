package factory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
	"github.com/andrescamacho/carfactory-go/test/helpers"
)

func defaultFactoryConfig(seed uint64) config.FactoryConfig {
	cfg := config.DefaultConfig().Factory
	cfg.Seed = seed
	return cfg
}

// settle lets message cascades triggered by the last clock move finish.
// Every pass queries each agent once; a chain of n hops needs n passes.
func settle(t *testing.T, f *factory.Factory) factory.Snapshot {
	t.Helper()
	var snap factory.Snapshot
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		var err error
		snap, err = f.Snapshot(ctx)
		cancel()
		require.NoError(t, err)
	}
	return snap
}

func runFor(t *testing.T, clock *shared.MockClock, f *factory.Factory, d, step time.Duration) factory.Snapshot {
	t.Helper()
	snap := settle(t, f)
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		clock.Advance(step)
		snap = settle(t, f)
	}
	return snap
}

func TestBuild_WiresDefaultTopology(t *testing.T) {
	f, err := factory.Build(defaultFactoryConfig(1), factory.BuildOptions{RunID: "run-1"})
	require.NoError(t, err)

	assert.Len(t, f.Inventories, 2)
	assert.Len(t, f.Workers, 4)
	assert.Len(t, f.Lines, 2)
	assert.Equal(t, "Line-1", f.Lines[0].Name())
	assert.Equal(t, uint64(1), f.Seed())
	assert.Equal(t, 5, f.Catalog().Size())
}

func TestBuild_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.FactoryConfig)
	}{
		{name: "parts per job above catalog", mutate: func(cfg *config.FactoryConfig) { cfg.Worker.PartsPerJob = 6 }},
		{name: "unknown inventory", mutate: func(cfg *config.FactoryConfig) { cfg.Lines[0].Inventory = "x" }},
		{name: "empty catalog", mutate: func(cfg *config.FactoryConfig) { cfg.Catalog = nil }},
		{name: "bad busy policy", mutate: func(cfg *config.FactoryConfig) { cfg.Worker.BusyPolicy = "x" }},
		{name: "bad overflow policy", mutate: func(cfg *config.FactoryConfig) { cfg.Orders.OverflowPolicy = "x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultFactoryConfig(1)
			tt.mutate(&cfg)

			_, err := factory.Build(cfg, factory.BuildOptions{})

			assert.Error(t, err)
		})
	}
}

func TestFactory_DefaultPlantCompletesCars(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(epoch)
	sink := helpers.NewMockSink()
	logger := helpers.NewMockLogger()
	f, err := factory.Build(defaultFactoryConfig(42), factory.BuildOptions{
		Clock: clock,
		RunID: "run-e2e",
		Sinks: []factory.Sink{sink},
	})
	require.NoError(t, err)
	require.NoError(t, f.Start(common.WithLogger(context.Background(), logger)))
	defer f.Stop()

	// Act: five simulated minutes
	snap := runFor(t, clock, f, 5*time.Minute, time.Second)

	// Assert
	assert.Greater(t, snap.Completed(), 0)
	assert.Equal(t, 20, snap.OrderBook.Generated)
	for _, inv := range snap.Inventories {
		for kind, units := range inv.Stock {
			assert.GreaterOrEqual(t, units, 0, "%s/%s", inv.Name, kind)
		}
	}

	// Lines alternate: dispatch counts differ by at most one
	d1, d2 := snap.OrderBook.Dispatched["Line-1"], snap.OrderBook.Dispatched["Line-2"]
	assert.LessOrEqual(t, d1-d2, 1)
	assert.GreaterOrEqual(t, d1-d2, 0)

	require.Eventually(t, func() bool {
		return len(sink.Completions()) == snap.Completed()
	}, wait, 5*time.Millisecond)
	for _, c := range sink.Completions() {
		assert.Equal(t, "run-e2e", c.RunID)
		assert.GreaterOrEqual(t, c.CompletedAt.Sub(c.StartedAt), 8*time.Second)
	}
	assert.True(t, logger.Contains("Car fully assembled"))
}

func TestFactory_StarvationShowsAsQueueGrowthAndShedding(t *testing.T) {
	// Arrange: orders every second, dispatch every 10s, tiny queue
	cfg := defaultFactoryConfig(5)
	cfg.Orders.GenerateInterval = time.Second
	cfg.Orders.QueueCapacity = 5
	clock := shared.NewMockClock(epoch)
	f, err := factory.Build(cfg, factory.BuildOptions{Clock: clock})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	// Act
	snap := runFor(t, clock, f, 60*time.Second, time.Second)

	// Assert
	assert.Len(t, snap.OrderBook.Queue, 5)
	assert.Greater(t, snap.OrderBook.ShedCount, 0)
	assert.Equal(t, snap.OrderBook.Generated, len(snap.OrderBook.Queue)+snap.OrderBook.ShedCount+sumDispatched(snap))
}

func TestFactory_SameSeedSameRun(t *testing.T) {
	run := func() []string {
		clock := shared.NewMockClock(epoch)
		f, err := factory.Build(defaultFactoryConfig(99), factory.BuildOptions{Clock: clock})
		require.NoError(t, err)
		require.NoError(t, f.Start(context.Background()))
		defer f.Stop()

		snap := runFor(t, clock, f, 2*time.Minute, time.Second)
		var out []string
		for _, inv := range snap.Inventories {
			out = append(out, fmt.Sprintf("%s=%v", inv.Name, inv.Stock))
		}
		for _, w := range snap.Workers {
			out = append(out, fmt.Sprintf("%s=%d", w.Name, w.Completed))
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestFactory_RealClockSmoke(t *testing.T) {
	cfg := defaultFactoryConfig(0)
	cfg.Orders.GenerateInterval = 2 * time.Millisecond
	cfg.Orders.AssignInterval = 2 * time.Millisecond
	cfg.Worker.BuildDuration = time.Millisecond
	cfg.Worker.InstallDuration = time.Millisecond
	cfg.Restock.MinDelay = time.Millisecond
	cfg.Restock.MaxDelay = 3 * time.Millisecond

	f, err := factory.Build(cfg, factory.BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		snap, err := f.Snapshot(ctx)
		return err == nil && snap.Completed() >= 5
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFactory_StopIsIdempotent(t *testing.T) {
	f, err := factory.Build(defaultFactoryConfig(1), factory.BuildOptions{Clock: shared.NewMockClock(epoch)})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))

	f.Stop()
	f.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Snapshot(ctx)
	assert.Error(t, err)
}

func sumDispatched(snap factory.Snapshot) int {
	total := 0
	for _, n := range snap.OrderBook.Dispatched {
		total += n
	}
	return total
}

package factory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/job"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
	"github.com/andrescamacho/carfactory-go/pkg/utils"
)

// BuildOptions carries the collaborators that do not come from configuration
type BuildOptions struct {
	Clock shared.Clock
	RunID string // generated when empty
	Sinks []Sink

	// RequestID overrides the parts request id generator (tests)
	RequestID func() string
}

// Factory is the whole agent network of one run
type Factory struct {
	runID   string
	seed    uint64
	clock   shared.Clock
	catalog *parts.Catalog

	Inventories []*Inventory
	Workers     []*Worker
	Lines       []*ProductionLine
	OrderBook   *OrderBook
	Reporter    *Reporter

	stopOnce sync.Once
}

// Build constructs every agent from configuration. Nothing runs until Start.
func Build(cfg config.FactoryConfig, opts BuildOptions) (*Factory, error) {
	clock := opts.Clock
	if clock == nil {
		clock = shared.NewRealClock()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	runID := opts.RunID
	if runID == "" {
		runID = utils.GenerateRunID(clock.Now())
	}

	catalog, err := parts.NewCatalog(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if cfg.Worker.PartsPerJob > catalog.Size() {
		return nil, &parts.ErrInvalidRequestCount{Requested: cfg.Worker.PartsPerJob, CatalogSize: catalog.Size()}
	}

	busyPolicy, err := job.ParseBusyPolicy(cfg.Worker.BusyPolicy)
	if err != nil {
		return nil, err
	}
	overflow, err := order.ParseOverflowPolicy(cfg.Orders.OverflowPolicy)
	if err != nil {
		return nil, err
	}

	f := &Factory{
		runID:    runID,
		seed:     seed,
		clock:    clock,
		catalog:  catalog,
		Reporter: NewReporter(clock, opts.Sinks...),
	}

	inventories := make(map[string]*Inventory, len(cfg.Inventories))
	for _, invCfg := range cfg.Inventories {
		stock, err := parts.NewStock(catalog, invCfg.StockFor())
		if err != nil {
			return nil, fmt.Errorf("inventory %s: %w", invCfg.Name, err)
		}
		inv := NewInventory(InventoryOptions{
			Name:  invCfg.Name,
			Stock: stock,
			Restock: RestockPolicy{
				MinDelay:  cfg.Restock.MinDelay,
				MaxDelay:  cfg.Restock.MaxDelay,
				Increment: cfg.Restock.Increment,
				Coalesce:  cfg.Restock.CoalesceEnabled(),
			},
			Rand:     agentRand(seed, "inventory/"+invCfg.Name),
			Clock:    clock,
			Reporter: f.Reporter.Ref(),
			RunID:    runID,
		})
		inventories[invCfg.Name] = inv
		f.Inventories = append(f.Inventories, inv)
	}

	timing := JobTiming{
		Build:        cfg.Worker.BuildDuration,
		Install:      cfg.Worker.InstallDuration,
		PartsPerJob:  cfg.Worker.PartsPerJob,
		PartsTimeout: cfg.Worker.PartsTimeout,
	}

	for _, lineCfg := range cfg.Lines {
		inv, ok := inventories[lineCfg.Inventory]
		if !ok {
			return nil, fmt.Errorf("line %s references unknown inventory %s", lineCfg.Name, lineCfg.Inventory)
		}

		refs := make([]actor.Ref[WorkerMessage], 0, len(lineCfg.Workers))
		for _, name := range lineCfg.Workers {
			w := NewWorker(WorkerOptions{
				Name:          name,
				Inventory:     inv.Ref(),
				InventoryName: inv.Name(),
				Timing:        timing,
				BusyPolicy:    busyPolicy,
				MaxBacklog:    cfg.Worker.MaxBacklog,
				Clock:         clock,
				RequestID:     opts.RequestID,
			})
			f.Workers = append(f.Workers, w)
			refs = append(refs, w.Ref())
		}

		line, err := NewProductionLine(LineOptions{
			Name:          lineCfg.Name,
			Workers:       refs,
			InventoryName: inv.Name(),
			Rand:          agentRand(seed, "line/"+lineCfg.Name),
			Clock:         clock,
			Reporter:      f.Reporter.Ref(),
			RunID:         runID,
		})
		if err != nil {
			return nil, err
		}
		f.Lines = append(f.Lines, line)
	}

	lineRefs := make([]actor.Ref[LineMessage], len(f.Lines))
	for i, line := range f.Lines {
		lineRefs[i] = line.Ref()
	}
	f.OrderBook, err = NewOrderBook(OrderBookOptions{
		Lines:          lineRefs,
		QueueCapacity:  cfg.Orders.QueueCapacity,
		OverflowPolicy: overflow,
		GenerateEvery:  cfg.Orders.GenerateInterval,
		AssignEvery:    cfg.Orders.AssignInterval,
		Clock:          clock,
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// agentRand gives every agent its own stream derived from the run seed
func agentRand(seed uint64, name string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

func (f *Factory) RunID() string { return f.runID }

// Seed returns the effective seed, useful to replay a run
func (f *Factory) Seed() uint64 { return f.seed }

func (f *Factory) Catalog() *parts.Catalog { return f.catalog }

// Start spawns every agent, leaves first, and arms the order book timers last
func (f *Factory) Start(ctx context.Context) error {
	common.LoggerFromContext(ctx).Log(common.LevelInfo, "Starting factory", map[string]interface{}{
		"run_id":      f.runID,
		"seed":        f.seed,
		"inventories": len(f.Inventories),
		"lines":       len(f.Lines),
		"workers":     len(f.Workers),
	})

	if err := f.Reporter.Start(ctx); err != nil {
		return err
	}
	for _, inv := range f.Inventories {
		if err := inv.Start(ctx); err != nil {
			f.Stop()
			return err
		}
	}
	for _, w := range f.Workers {
		if err := w.Start(ctx); err != nil {
			f.Stop()
			return err
		}
	}
	for _, line := range f.Lines {
		if err := line.Start(ctx); err != nil {
			f.Stop()
			return err
		}
	}
	if err := f.OrderBook.Start(ctx); err != nil {
		f.Stop()
		return err
	}
	return nil
}

// Stop tears the network down, giving the reporter a few seconds to flush
func (f *Factory) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = f.Shutdown(ctx)
}

// Shutdown stops every agent, then waits (bounded by ctx) for the reporter to
// hand already-queued events to the sinks
func (f *Factory) Shutdown(ctx context.Context) error {
	var drainErr error
	f.stopOnce.Do(func() {
		f.OrderBook.Stop()
		for _, line := range f.Lines {
			line.Stop()
		}
		for _, w := range f.Workers {
			w.Stop()
		}
		for _, inv := range f.Inventories {
			inv.Stop()
		}

		if f.Reporter.agent.Status() == shared.LifecycleStatusRunning {
			drainErr = f.Reporter.Drain(ctx)
		}
		f.Reporter.Stop()
	})
	return drainErr
}

package factory

import (
	"context"
	"fmt"
)

// Snapshot is a consistent-per-agent view of the whole network. Agents are
// queried one after another, so the views are not taken at the same instant.
type Snapshot struct {
	RunID       string
	OrderBook   OrderBookSnapshot
	Lines       []LineSnapshot
	Workers     []WorkerSnapshot
	Inventories []InventorySnapshot
}

// Completed sums completions across lines
func (s Snapshot) Completed() int {
	total := 0
	for _, line := range s.Lines {
		total += line.Completed
	}
	return total
}

// Snapshot queries every agent
func (f *Factory) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{RunID: f.runID}

	ob, err := f.OrderBook.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("order book snapshot: %w", err)
	}
	snap.OrderBook = ob

	for _, line := range f.Lines {
		ls, err := line.Snapshot(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("line %s snapshot: %w", line.Name(), err)
		}
		snap.Lines = append(snap.Lines, ls)
	}
	for _, w := range f.Workers {
		ws, err := w.Snapshot(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("worker %s snapshot: %w", w.Name(), err)
		}
		snap.Workers = append(snap.Workers, ws)
	}
	for _, inv := range f.Inventories {
		is, err := inv.Snapshot(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("inventory %s snapshot: %w", inv.Name(), err)
		}
		snap.Inventories = append(snap.Inventories, is)
	}
	return snap, nil
}

// QueueDepth reports pending orders (metrics polling)
func (f *Factory) QueueDepth(ctx context.Context) (int, error) {
	ob, err := f.OrderBook.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(ob.Queue), nil
}

// StockLevels reports units on hand per inventory and kind (metrics polling)
func (f *Factory) StockLevels(ctx context.Context) (map[string]map[string]int, error) {
	levels := make(map[string]map[string]int, len(f.Inventories))
	for _, inv := range f.Inventories {
		snap, err := inv.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		kinds := make(map[string]int, len(snap.Stock))
		for kind, units := range snap.Stock {
			kinds[string(kind)] = units
		}
		levels[inv.Name()] = kinds
	}
	return levels, nil
}

// WorkerPhases reports each worker's current phase (metrics polling)
func (f *Factory) WorkerPhases(ctx context.Context) (map[string]string, error) {
	phases := make(map[string]string, len(f.Workers))
	for _, w := range f.Workers {
		snap, err := w.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		phases[w.Name()] = string(snap.Phase)
	}
	return phases, nil
}

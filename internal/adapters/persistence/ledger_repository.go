package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/order"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
)

// CompletionEntry is one ledger row read back for reporting
type CompletionEntry struct {
	RunID          string
	OrderID        order.ID
	Line           string
	Worker         string
	RequestedParts int
	Parts          []parts.Kind
	PartsTimedOut  bool
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
}

// RestockEntry is one restock row read back for reporting
type RestockEntry struct {
	RunID       string
	Inventory   string
	Increment   int
	StockAfter  map[parts.Kind]int
	RestockedAt time.Time
}

// RunSummary aggregates the completions of one run
type RunSummary struct {
	RunID       string
	Completions int64
	FirstAt     time.Time
	LastAt      time.Time
}

// LedgerFilter narrows ledger queries. Zero values mean "no filter".
type LedgerFilter struct {
	RunID  string
	Line   string
	Worker string
	Since  *time.Time
	Limit  int
	Offset int
}

// GormLedgerRepository records run events and reads them back.
// It is a report of what a run did, never a source of state at start-up.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GORM ledger repository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Name identifies the ledger among the reporter's sinks
func (r *GormLedgerRepository) Name() string { return "ledger" }

// Record persists a completion or restock event
func (r *GormLedgerRepository) Record(ctx context.Context, event factory.Event) error {
	switch e := event.(type) {
	case factory.CompletionEvent:
		return r.recordCompletion(ctx, e)
	case factory.RestockEvent:
		return r.recordRestock(ctx, e)
	default:
		return fmt.Errorf("unsupported ledger event %T", event)
	}
}

func (r *GormLedgerRepository) recordCompletion(ctx context.Context, e factory.CompletionEvent) error {
	partsJSON, err := json.Marshal(kindsToStrings(e.Parts))
	if err != nil {
		return fmt.Errorf("failed to marshal parts: %w", err)
	}

	model := &CompletionModel{
		RunID:          e.RunID,
		OrderID:        int(e.OrderID),
		Line:           e.Line,
		Worker:         e.Worker,
		RequestedParts: e.RequestedParts,
		DeliveredParts: len(e.Parts),
		Parts:          string(partsJSON),
		PartsTimedOut:  e.PartsTimedOut,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
		DurationMs:     e.CompletedAt.Sub(e.StartedAt).Milliseconds(),
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record completion of order %s: %w", e.OrderID, err)
	}
	return nil
}

func (r *GormLedgerRepository) recordRestock(ctx context.Context, e factory.RestockEvent) error {
	stock := make(map[string]int, len(e.StockAfter))
	for kind, count := range e.StockAfter {
		stock[string(kind)] = count
	}
	stockJSON, err := json.Marshal(stock)
	if err != nil {
		return fmt.Errorf("failed to marshal stock: %w", err)
	}

	model := &RestockModel{
		RunID:       e.RunID,
		Inventory:   e.Inventory,
		Increment:   e.Increment,
		StockAfter:  string(stockJSON),
		RestockedAt: e.At,
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record restock of %s: %w", e.Inventory, err)
	}
	return nil
}

// ListCompletions returns completions newest first
func (r *GormLedgerRepository) ListCompletions(ctx context.Context, filter LedgerFilter) ([]CompletionEntry, error) {
	var models []CompletionModel

	query := r.db.WithContext(ctx).Model(&CompletionModel{})
	if filter.RunID != "" {
		query = query.Where("run_id = ?", filter.RunID)
	}
	if filter.Line != "" {
		query = query.Where("line = ?", filter.Line)
	}
	if filter.Worker != "" {
		query = query.Where("worker = ?", filter.Worker)
	}
	if filter.Since != nil {
		query = query.Where("completed_at > ?", *filter.Since)
	}
	query = paginate(query.Order("completed_at DESC").Order("id DESC"), filter)

	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	entries := make([]CompletionEntry, 0, len(models))
	for _, model := range models {
		var names []string
		if model.Parts != "" {
			if err := json.Unmarshal([]byte(model.Parts), &names); err != nil {
				// Unreadable parts column, keep the row without parts
				names = nil
			}
		}
		entries = append(entries, CompletionEntry{
			RunID:          model.RunID,
			OrderID:        order.ID(model.OrderID),
			Line:           model.Line,
			Worker:         model.Worker,
			RequestedParts: model.RequestedParts,
			Parts:          stringsToKinds(names),
			PartsTimedOut:  model.PartsTimedOut,
			StartedAt:      model.StartedAt,
			CompletedAt:    model.CompletedAt,
			Duration:       time.Duration(model.DurationMs) * time.Millisecond,
		})
	}

	return entries, nil
}

// ListRestocks returns restocks newest first. Line and Worker filters do not apply.
func (r *GormLedgerRepository) ListRestocks(ctx context.Context, filter LedgerFilter) ([]RestockEntry, error) {
	var models []RestockModel

	query := r.db.WithContext(ctx).Model(&RestockModel{})
	if filter.RunID != "" {
		query = query.Where("run_id = ?", filter.RunID)
	}
	if filter.Since != nil {
		query = query.Where("restocked_at > ?", *filter.Since)
	}
	query = paginate(query.Order("restocked_at DESC").Order("id DESC"), filter)

	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list restocks: %w", err)
	}

	entries := make([]RestockEntry, 0, len(models))
	for _, model := range models {
		stock := make(map[string]int)
		if model.StockAfter != "" {
			if err := json.Unmarshal([]byte(model.StockAfter), &stock); err != nil {
				stock = map[string]int{}
			}
		}
		after := make(map[parts.Kind]int, len(stock))
		for name, count := range stock {
			after[parts.Kind(name)] = count
		}
		entries = append(entries, RestockEntry{
			RunID:       model.RunID,
			Inventory:   model.Inventory,
			Increment:   model.Increment,
			StockAfter:  after,
			RestockedAt: model.RestockedAt,
		})
	}

	return entries, nil
}

// ListRuns summarises every recorded run, most recent first
func (r *GormLedgerRepository) ListRuns(ctx context.Context) ([]RunSummary, error) {
	type row struct {
		RunID       string
		Completions int64
		FirstAt     string
		LastAt      string
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&CompletionModel{}).
		Select("run_id, COUNT(*) AS completions, MIN(completed_at) AS first_at, MAX(completed_at) AS last_at").
		Group("run_id").
		Order("last_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(rows))
	for _, rw := range rows {
		summaries = append(summaries, RunSummary{
			RunID:       rw.RunID,
			Completions: rw.Completions,
			FirstAt:     parseAggregateTime(rw.FirstAt),
			LastAt:      parseAggregateTime(rw.LastAt),
		})
	}
	return summaries, nil
}

// CountCompletions returns how many cars a run assembled
func (r *GormLedgerRepository) CountCompletions(ctx context.Context, runID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CompletionModel{}).
		Where("run_id = ?", runID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return count, nil
}

func paginate(query *gorm.DB, filter LedgerFilter) *gorm.DB {
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	return query
}

// parseAggregateTime reads MIN/MAX over a timestamp column. SQLite returns the
// stored text, PostgreSQL a timestamp rendered by the driver.
func parseAggregateTime(raw string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func kindsToStrings(kinds []parts.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func stringsToKinds(names []string) []parts.Kind {
	out := make([]parts.Kind, len(names))
	for i, n := range names {
		out[i] = parts.Kind(n)
	}
	return out
}

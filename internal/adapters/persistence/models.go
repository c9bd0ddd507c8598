package persistence

import (
	"time"
)

// CompletionModel represents the completions table: one row per assembled car
type CompletionModel struct {
	ID             int       `gorm:"column:id;primaryKey;autoIncrement"`
	RunID          string    `gorm:"column:run_id;not null;index:idx_completions_run"`
	OrderID        int       `gorm:"column:order_id;not null"`
	Line           string    `gorm:"column:line;not null"`
	Worker         string    `gorm:"column:worker;not null"`
	RequestedParts int       `gorm:"column:requested_parts;not null;default:0"`
	DeliveredParts int       `gorm:"column:delivered_parts;not null;default:0"`
	Parts          string    `gorm:"column:parts;type:text"` // JSON array as text
	PartsTimedOut  bool      `gorm:"column:parts_timed_out;not null;default:false"`
	StartedAt      time.Time `gorm:"column:started_at;not null"`
	CompletedAt    time.Time `gorm:"column:completed_at;not null;index:idx_completions_run"`
	DurationMs     int64     `gorm:"column:duration_ms;not null"`
}

func (CompletionModel) TableName() string {
	return "completions"
}

// RestockModel represents the restocks table
type RestockModel struct {
	ID          int       `gorm:"column:id;primaryKey;autoIncrement"`
	RunID       string    `gorm:"column:run_id;not null;index:idx_restocks_run"`
	Inventory   string    `gorm:"column:inventory;not null"`
	Increment   int       `gorm:"column:increment;not null"`
	StockAfter  string    `gorm:"column:stock_after;type:text"` // JSON object as text
	RestockedAt time.Time `gorm:"column:restocked_at;not null"`
}

func (RestockModel) TableName() string {
	return "restocks"
}

package helpers

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/database"
)

// SharedTestDB is the ledger database shared by the BDD scenarios
var SharedTestDB *gorm.DB

// InitializeSharedTestDB creates and migrates the shared ledger database.
// Called once in TestMain before running any scenario.
func InitializeSharedTestDB() error {
	db, err := database.OpenLedger(&config.DatabaseConfig{Type: "sqlite", Path: ":memory:"})
	if err != nil {
		return fmt.Errorf("failed to open shared test database: %w", err)
	}

	SharedTestDB = db
	return nil
}

// TruncateAllTables clears the ledger before each scenario
func TruncateAllTables() error {
	if SharedTestDB == nil {
		return fmt.Errorf("shared test database not initialized")
	}

	for _, table := range []string{"completions", "restocks"} {
		if err := SharedTestDB.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	return nil
}

// CloseSharedTestDB closes the shared database connection.
// Called in TestMain after all scenarios complete.
func CloseSharedTestDB() error {
	if SharedTestDB == nil {
		return nil
	}
	return database.Close(SharedTestDB)
}

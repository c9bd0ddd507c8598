package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID creates a sortable, human-readable identifier for one factory run.
// Format: run-{YYYYMMDD}-{HHMMSS}-{8charHexUUID}
//
// Example:
//   - Input: startedAt=2025-03-01T09:00:00Z
//   - Output: "run-20250301-090000-a3f8e2b1"
//
// The timestamp keeps ledger listings in start order; the UUID suffix keeps two
// runs started in the same second apart.
func GenerateRunID(startedAt time.Time) string {
	return "run-" + startedAt.UTC().Format("20060102-150405") + "-" + generateShortUUID()
}

// generateShortUUID creates an 8-character hex string from a UUID.
func generateShortUUID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

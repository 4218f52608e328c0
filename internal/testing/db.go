// Package testing provides test helpers shared across quantumfolio packages.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/quantumfolio/internal/database"
)

// NewTestDB creates a migrated SQLite database in a per-test temporary
// directory. The database is closed when the test finishes.
//
// Supported schema names:
//   - "history" - applies history_schema.sql
//   - "runs" - applies runs_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db
}

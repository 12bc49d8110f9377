// Package testing provides database helpers, fixtures and collaborator mocks for tests.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3" // cgo driver for in-memory repository tests

	"github.com/aristath/rebalancer/internal/database"
)

// NewTestDB creates a file-backed database through database.New with the
// embedded schema for name applied. The cleanup function closes and removes it.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	}
}

// NewMemoryDB opens an in-memory go-sqlite3 database holding the embedded
// schemas for every name given. A single connection keeps the data alive.
func NewMemoryDB(t *testing.T, names ...string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	for _, name := range names {
		schema, err := database.SchemaFor(name)
		if err != nil {
			t.Fatalf("Failed to load schema %s: %v", name, err)
		}
		if _, err := db.Exec(schema); err != nil {
			t.Fatalf("Failed to apply schema %s: %v", name, err)
		}
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

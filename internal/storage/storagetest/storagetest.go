// Package storagetest opens migrated SQLite-backed adapters for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/database"
	"github.com/MarcoPoloResearchLab/courier/internal/storage"
	"gorm.io/gorm"
)

// OpenDatabase returns a migrated database in the test's temp directory
// along with its DSN.
func OpenDatabase(testContext testing.TB) (*gorm.DB, database.Dialect, string) {
	testContext.Helper()
	dsn := filepath.Join(testContext.TempDir(), "courier.db")
	db, dialect, err := database.Open(dsn, database.PoolConfig{})
	if err != nil {
		testContext.Fatalf("open database: %v", err)
	}
	testContext.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	migrator := database.NewSchemaMigrator(database.SchemaMigratorConfig{})
	if err := migrator.EnsureSchema(context.Background(), dsn, db, dialect); err != nil {
		testContext.Fatalf("ensure schema: %v", err)
	}
	return db, dialect, dsn
}

// NewAdapter returns an adapter for workspace on a fresh migrated database.
func NewAdapter(testContext testing.TB, workspace communication.WorkspaceID) *storage.Adapter {
	testContext.Helper()
	db, dialect, _ := OpenDatabase(testContext)
	adapter, err := storage.NewAdapter(storage.AdapterConfig{DB: db, Style: dialect.Style(), Workspace: workspace})
	if err != nil {
		testContext.Fatalf("new adapter: %v", err)
	}
	return adapter
}

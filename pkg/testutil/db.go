package testutil

import (
	"context"
	"strings"
	"testing"

	// Pins the cgo driver that gorm.io/driver/sqlite registers as "sqlite3".
	_ "github.com/mattn/go-sqlite3"
	"github.com/mediastudio/studio-billing/pkg/database"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"gorm.io/driver/sqlite"
)

// SetupTestDB opens an in-memory SQLite database private to the test,
// migrated with the billing tables. It is closed when the test ends.
func SetupTestDB(t *testing.T) *database.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	client, err := database.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), logger.Discard())
	if err != nil {
		t.Fatalf("Failed to connect test database: %v", err)
	}

	// A shared-cache memory database lives as long as one connection does.
	sqlDB, err := client.DB.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := client.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})

	return client
}

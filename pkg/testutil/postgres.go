package testutil

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mediastudio/studio-billing/pkg/database"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"gorm.io/driver/postgres"
)

// SetupMockDB returns a client speaking the Postgres dialect over sqlmock,
// for asserting the exact statements the store issues.
func SetupMockDB(t *testing.T) (*database.Client, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	client, err := database.Open(dialector, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to open gorm connection: %v", err)
	}

	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet SQL expectations: %v", err)
		}
		mockDB.Close()
	})

	return client, mock
}

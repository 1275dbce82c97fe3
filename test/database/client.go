package database

import (
	"testing"

	"github.com/codeready-toolchain/relaylink/pkg/database"
	"github.com/codeready-toolchain/relaylink/test/util"
)

// NewTestClient creates a test database client.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The schema is migrated and dropped automatically when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	// Note: cleanup (schema drop and connection close) is handled by SetupTestDatabase
	return database.NewClientFromDB(util.SetupTestDatabase(t))
}

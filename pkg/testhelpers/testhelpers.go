// Package testhelpers provides shared test setup for service tests.
package testhelpers

import (
	"testing"

	"github.com/agentopia/toolbox/internal/migrations"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB creates a fresh in-memory SQLite database with all migrations
// applied. Each call returns an isolated database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection to ":memory:" opens its own database, so pin
	// the pool to a single connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migrations.Migrate(db))
	return db
}

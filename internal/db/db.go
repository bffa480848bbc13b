// Package db provides database connection functionality for the toolbox
// control plane.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSQLiteFile = "toolbox.db"

// NewDBConnection creates a database connection based on the supplied DSN.
// If the DSN is empty, a local SQLite database file is used, which is
// convenient for development. A postgres:// DSN selects the postgres driver.
func NewDBConnection(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if dsn == "" {
		dialector = sqlite.Open(defaultSQLiteFile)
	} else {
		dialector = postgres.Open(dsn)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

// Package migrations provides database schema migration for the toolbox
// control plane.
package migrations

import (
	"fmt"

	"github.com/agentopia/toolbox/internal/model"
	"gorm.io/gorm"
)

// Migrate runs the schema migrations for all control plane models.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Agent{},
		&model.HostEnvironment{},
		&model.ToolCatalogEntry{},
		&model.ToolInstance{},
		&model.ToolboxAccessGrant{},
		&model.ToolbeltItem{},
		&model.AgentToolCredential{},
		&model.AgentToolCapabilityPermission{},
		&model.CredentialAuditEntry{},
		&model.SecretRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

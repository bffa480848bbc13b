// Package catalog provides the Tool Catalog: the admin-curated registry of
// deployable tool templates.
package catalog

import (
	"errors"
	"fmt"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"gorm.io/gorm"
)

// CatalogService provides methods to manage tool templates in the database.
type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// CreateEntry registers a new tool template.
func (s *CatalogService) CreateEntry(input *types.CreateCatalogEntryInput) (*model.ToolCatalogEntry, error) {
	if err := types.ValidateCreateCatalogEntryInput(input); err != nil {
		return nil, err
	}

	var existing model.ToolCatalogEntry
	err := s.db.Where("name = ?", input.Name).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("catalog entry %s already exists: %w", input.Name, apperr.ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check for existing catalog entry: %w", err)
	}

	entry, err := model.NewToolCatalogEntry(input.Name, input.Image, input.SecretSlots, input.Capabilities)
	if err != nil {
		return nil, err
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create catalog entry: %w", err)
	}
	return entry, nil
}

// ListEntries retrieves all tool templates.
func (s *CatalogService) ListEntries() ([]model.ToolCatalogEntry, error) {
	var entries []model.ToolCatalogEntry
	if err := s.db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list catalog entries: %w", err)
	}
	return entries, nil
}

// Resolve returns the catalog entry for the given id. It is the lookup used
// by the instance registry (image), the toolbelt registry (capability names)
// and the credential broker (secret slots).
func (s *CatalogService) Resolve(id uint) (*model.ToolCatalogEntry, error) {
	var entry model.ToolCatalogEntry
	if err := s.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("catalog entry %d: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get catalog entry %d: %w", id, err)
	}
	return &entry, nil
}

// GetEntryByName returns the catalog entry with the given name.
func (s *CatalogService) GetEntryByName(name string) (*model.ToolCatalogEntry, error) {
	var entry model.ToolCatalogEntry
	if err := s.db.Where("name = ?", name).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("catalog entry %s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get catalog entry %s: %w", name, err)
	}
	return &entry, nil
}

// SetEnabled flips whether new instances of a template may be deployed.
// Instances already running are unaffected.
func (s *CatalogService) SetEnabled(id uint, enabled bool) error {
	entry, err := s.Resolve(id)
	if err != nil {
		return err
	}
	entry.Enabled = enabled
	if err := s.db.Save(entry).Error; err != nil {
		return fmt.Errorf("failed to update catalog entry %d: %w", id, err)
	}
	return nil
}

// DeleteEntry removes a tool template. Deletion is rejected while any tool
// instance still references the entry.
func (s *CatalogService) DeleteEntry(id uint) error {
	var count int64
	if err := s.db.Model(&model.ToolInstance{}).Where("catalog_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count instances of catalog entry %d: %w", id, err)
	}
	if count > 0 {
		return fmt.Errorf("catalog entry %d is referenced by %d tool instance(s): %w", id, count, apperr.ErrConflict)
	}

	if err := s.db.Unscoped().Delete(&model.ToolCatalogEntry{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete catalog entry %d: %w", id, err)
	}
	return nil
}

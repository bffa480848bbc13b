// Package toolbelt provides the Toolbelt Registry: per-agent bindings to
// Toolboxes and tool instances, the agent's own credentials for each tool,
// and the capability permissions gating what it may do with them.
package toolbelt

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentopia/toolbox/internal"
	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/secretstore"
	"github.com/agentopia/toolbox/pkg/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceConfig holds the configuration parameters for initializing the
// ToolbeltService.
type ServiceConfig struct {
	DB      *gorm.DB
	Secrets secretstore.Store
	Logger  *zap.Logger
}

// ToolbeltService owns access grants, toolbelt items, agent credentials and
// capability permissions.
type ToolbeltService struct {
	db      *gorm.DB
	secrets secretstore.Store
	logger  *zap.Logger
}

func NewToolbeltService(c *ServiceConfig) *ToolbeltService {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolbeltService{db: c.DB, secrets: c.Secrets, logger: logger}
}

// GrantHostAccess records that an agent may reach a Toolbox.
func (s *ToolbeltService) GrantHostAccess(agentID, toolboxID uint) (*model.ToolboxAccessGrant, error) {
	var host model.HostEnvironment
	if err := s.db.First(&host, toolboxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("toolbox %d: %w", toolboxID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get toolbox %d: %w", toolboxID, err)
	}

	var count int64
	if err := s.db.Model(&model.ToolboxAccessGrant{}).
		Where("agent_id = ? AND toolbox_id = ?", agentID, toolboxID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check for existing grant: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("agent %d already has access to toolbox %d: %w", agentID, toolboxID, apperr.ErrConflict)
	}

	grant := model.ToolboxAccessGrant{AgentID: agentID, ToolboxID: toolboxID}
	if err := s.db.Create(&grant).Error; err != nil {
		// The unique index backstops concurrent grants for the same pair.
		return nil, fmt.Errorf("failed to create access grant: %w", apperr.ErrConflict)
	}
	return &grant, nil
}

// RevokeHostAccess removes an agent's access to a Toolbox. Because access is a
// prerequisite for use, revocation cascades: every toolbelt item the agent has
// on that host is deactivated and its credentials and permissions go with it.
func (s *ToolbeltService) RevokeHostAccess(ctx context.Context, agentID, toolboxID uint) error {
	var grant model.ToolboxAccessGrant
	err := s.db.Where("agent_id = ? AND toolbox_id = ?", agentID, toolboxID).First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("access grant for agent %d on toolbox %d: %w", agentID, toolboxID, apperr.ErrNotFound)
		}
		return fmt.Errorf("failed to get access grant: %w", err)
	}

	var items []model.ToolbeltItem
	err = s.db.Joins("JOIN tool_instances ON tool_instances.id = toolbelt_items.tool_instance_id").
		Where("toolbelt_items.agent_id = ? AND tool_instances.toolbox_id = ?", agentID, toolboxID).
		Find(&items).Error
	if err != nil {
		return fmt.Errorf("failed to list toolbelt items on toolbox %d: %w", toolboxID, err)
	}

	for _, item := range items {
		if err := s.deactivateItem(ctx, &item); err != nil {
			return err
		}
	}

	if err := s.db.Unscoped().Delete(&grant).Error; err != nil {
		return fmt.Errorf("failed to delete access grant %d: %w", grant.ID, err)
	}

	s.logger.Info("toolbox access revoked",
		zap.Uint("agent_id", agentID),
		zap.Uint("toolbox_id", toolboxID),
		zap.Int("items_deactivated", len(items)),
	)
	return nil
}

// deactivateItem flips a toolbelt item inactive, revokes its credentials and
// releases their secret store references, and clears its permissions.
func (s *ToolbeltService) deactivateItem(ctx context.Context, item *model.ToolbeltItem) error {
	var creds []model.AgentToolCredential
	if err := s.db.Where("toolbelt_item_id = ?", item.ID).Find(&creds).Error; err != nil {
		return fmt.Errorf("failed to list credentials for toolbelt item %d: %w", item.ID, err)
	}
	for _, cred := range creds {
		if err := s.secrets.Delete(ctx, cred.SecretRef); err != nil {
			s.logger.Warn("failed to release secret store reference",
				zap.Uint("credential_id", cred.ID), zap.Error(err))
		}
		cred.Status = types.CredentialStatusRevoked
		if err := s.db.Save(&cred).Error; err != nil {
			return fmt.Errorf("failed to revoke credential %d: %w", cred.ID, err)
		}
	}

	if err := s.db.Unscoped().Where("toolbelt_item_id = ?", item.ID).
		Delete(&model.AgentToolCapabilityPermission{}).Error; err != nil {
		return fmt.Errorf("failed to delete permissions for toolbelt item %d: %w", item.ID, err)
	}

	item.Active = false
	if err := s.db.Save(item).Error; err != nil {
		return fmt.Errorf("failed to deactivate toolbelt item %d: %w", item.ID, err)
	}
	return nil
}

// AddToBelt adds a tool instance to an agent's belt. It requires an existing
// access grant covering the instance's host. The new item starts with no
// credential and no enabled capabilities: the safe default.
func (s *ToolbeltService) AddToBelt(agentID, toolInstanceID uint) (*model.ToolbeltItem, error) {
	var inst model.ToolInstance
	if err := s.db.First(&inst, toolInstanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tool instance %d: %w", toolInstanceID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tool instance %d: %w", toolInstanceID, err)
	}

	var grants int64
	if err := s.db.Model(&model.ToolboxAccessGrant{}).
		Where("agent_id = ? AND toolbox_id = ?", agentID, inst.ToolboxID).Count(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to check access grant: %w", err)
	}
	if grants == 0 {
		return nil, fmt.Errorf("agent %d has no access to toolbox %d: %w", agentID, inst.ToolboxID, apperr.ErrAuthorization)
	}

	var count int64
	if err := s.db.Model(&model.ToolbeltItem{}).
		Where("agent_id = ? AND tool_instance_id = ?", agentID, toolInstanceID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check for existing toolbelt item: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("tool instance %d is already in agent %d's belt: %w", toolInstanceID, agentID, apperr.ErrConflict)
	}

	item := model.ToolbeltItem{AgentID: agentID, ToolInstanceID: toolInstanceID, Active: true}
	if err := s.db.Create(&item).Error; err != nil {
		// Two concurrent adds race to the unique index; the loser gets a
		// conflict instead of a second row.
		return nil, fmt.Errorf("failed to create toolbelt item: %w", apperr.ErrConflict)
	}
	return &item, nil
}

// GetItem returns the toolbelt item with the given id.
func (s *ToolbeltService) GetItem(id uint) (*model.ToolbeltItem, error) {
	var item model.ToolbeltItem
	if err := s.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("toolbelt item %d: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get toolbelt item %d: %w", id, err)
	}
	return &item, nil
}

// ListItems returns the agent's toolbelt as API representations, including
// whether each item currently carries an active credential.
func (s *ToolbeltService) ListItems(agentID uint) ([]types.ToolbeltItem, error) {
	var items []model.ToolbeltItem
	if err := s.db.Where("agent_id = ?", agentID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list toolbelt items: %w", err)
	}

	resp := make([]types.ToolbeltItem, len(items))
	for i, item := range items {
		var activeCreds int64
		if err := s.db.Model(&model.AgentToolCredential{}).
			Where("toolbelt_item_id = ? AND status = ?", item.ID, types.CredentialStatusActive).
			Count(&activeCreds).Error; err != nil {
			return nil, fmt.Errorf("failed to check credentials for toolbelt item %d: %w", item.ID, err)
		}
		resp[i] = types.ToolbeltItem{
			ID:             item.ID,
			AgentID:        item.AgentID,
			ToolInstanceID: item.ToolInstanceID,
			Active:         item.Active,
			HasCredential:  activeCreds > 0,
		}
	}
	return resp, nil
}

// RemoveFromBelt deletes a toolbelt item along with its credentials and
// permissions, and releases the referenced secrets.
func (s *ToolbeltService) RemoveFromBelt(ctx context.Context, itemID uint) error {
	item, err := s.GetItem(itemID)
	if err != nil {
		return err
	}

	if err := s.deactivateItem(ctx, item); err != nil {
		return err
	}

	if err := s.db.Unscoped().Where("toolbelt_item_id = ?", itemID).Delete(&model.AgentToolCredential{}).Error; err != nil {
		return fmt.Errorf("failed to delete credentials for toolbelt item %d: %w", itemID, err)
	}
	if err := s.db.Unscoped().Delete(&model.ToolbeltItem{}, itemID).Error; err != nil {
		return fmt.Errorf("failed to delete toolbelt item %d: %w", itemID, err)
	}
	return nil
}

// catalogForItem resolves the catalog entry behind a toolbelt item, for
// validating secret kinds and capability names.
func (s *ToolbeltService) catalogForItem(item *model.ToolbeltItem) (*model.ToolCatalogEntry, error) {
	var inst model.ToolInstance
	if err := s.db.First(&inst, item.ToolInstanceID).Error; err != nil {
		return nil, fmt.Errorf("failed to get tool instance %d: %w", item.ToolInstanceID, err)
	}
	var entry model.ToolCatalogEntry
	if err := s.db.First(&entry, inst.CatalogID).Error; err != nil {
		return nil, fmt.Errorf("failed to get catalog entry %d: %w", inst.CatalogID, err)
	}
	return &entry, nil
}

// SetCredential binds an agent-scoped secret to a toolbelt item. The raw
// secret goes straight to the secret store; only the opaque reference and a
// masked display identifier are persisted. Replacing an existing credential
// releases the old secret store entry only after the new one is committed, so
// there is no window where neither secret is retrievable.
func (s *ToolbeltService) SetCredential(ctx context.Context, itemID uint, input *types.SetCredentialInput) (*model.AgentToolCredential, error) {
	if input.Kind == "" {
		return nil, fmt.Errorf("credential kind is required")
	}
	if input.Secret == "" {
		return nil, fmt.Errorf("secret must not be empty")
	}

	item, err := s.GetItem(itemID)
	if err != nil {
		return nil, err
	}

	entry, err := s.catalogForItem(item)
	if err != nil {
		return nil, err
	}
	ok, err := entry.HasSecretSlot(input.Kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tool %s declares no secret slot %q", entry.Name, input.Kind)
	}

	ref, err := s.secrets.Put(ctx, input.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to store secret: %w", apperr.ErrCredential)
	}

	var cred model.AgentToolCredential
	err = s.db.Where("toolbelt_item_id = ? AND kind = ?", itemID, input.Kind).First(&cred).Error
	switch {
	case err == nil:
		oldRef := cred.SecretRef
		cred.SecretRef = ref
		cred.DisplayID = internal.MaskSecret(input.Secret)
		cred.Status = types.CredentialStatusActive
		if err := s.db.Save(&cred).Error; err != nil {
			// Roll back the new secret; the old one stays retrievable.
			if delErr := s.secrets.Delete(ctx, ref); delErr != nil {
				s.logger.Warn("failed to roll back secret store entry", zap.Error(delErr))
			}
			return nil, fmt.Errorf("failed to update credential: %w", err)
		}
		if err := s.secrets.Delete(ctx, oldRef); err != nil {
			s.logger.Warn("failed to release replaced secret store reference", zap.Error(err))
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		cred = model.AgentToolCredential{
			ToolbeltItemID: itemID,
			Kind:           input.Kind,
			SecretRef:      ref,
			DisplayID:      internal.MaskSecret(input.Secret),
			Status:         types.CredentialStatusActive,
		}
		if err := s.db.Create(&cred).Error; err != nil {
			if delErr := s.secrets.Delete(ctx, ref); delErr != nil {
				s.logger.Warn("failed to roll back secret store entry", zap.Error(delErr))
			}
			return nil, fmt.Errorf("failed to create credential: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}

	s.logger.Info("credential set",
		zap.Uint("toolbelt_item_id", itemID),
		zap.String("kind", input.Kind),
		zap.String("display_id", cred.DisplayID),
	)
	return &cred, nil
}

// SetCapabilityPermission upserts the per-capability switch for a toolbelt
// item. The capability name must be one the catalog entry declares.
func (s *ToolbeltService) SetCapabilityPermission(itemID uint, input *types.SetCapabilityPermissionInput) (*model.AgentToolCapabilityPermission, error) {
	if input.Capability == "" {
		return nil, fmt.Errorf("capability is required")
	}

	item, err := s.GetItem(itemID)
	if err != nil {
		return nil, err
	}

	entry, err := s.catalogForItem(item)
	if err != nil {
		return nil, err
	}
	ok, err := entry.HasCapability(input.Capability)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tool %s declares no capability %q", entry.Name, input.Capability)
	}

	var perm model.AgentToolCapabilityPermission
	err = s.db.Where("toolbelt_item_id = ? AND capability = ?", itemID, input.Capability).First(&perm).Error
	switch {
	case err == nil:
		perm.Allowed = input.Allowed
		if err := s.db.Save(&perm).Error; err != nil {
			return nil, fmt.Errorf("failed to update capability permission: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		perm = model.AgentToolCapabilityPermission{
			ToolbeltItemID: itemID,
			Capability:     input.Capability,
			Allowed:        input.Allowed,
		}
		if err := s.db.Create(&perm).Error; err != nil {
			return nil, fmt.Errorf("failed to create capability permission: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to look up capability permission: %w", err)
	}
	return &perm, nil
}

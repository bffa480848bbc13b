package toolbelt

import (
	"errors"
	"fmt"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckAuthorization is the single choke point every tool execution passes
// through. An agent may exercise a capability on a tool instance only when
// the whole chain holds:
//
//   - an access grant covers the instance's toolbox,
//   - an active toolbelt item binds the agent to the instance,
//   - the item carries an active credential,
//   - the capability is explicitly allowed on the item.
//
// Anything short of a complete chain is a denial. The returned error never
// says which link was missing; the full reason is logged server-side only.
func (s *ToolbeltService) CheckAuthorization(agentID, toolInstanceID uint, capability string) (*model.ToolInstance, error) {
	deny := func(reason string) (*model.ToolInstance, error) {
		s.logger.Warn("tool execution denied",
			zap.Uint("agent_id", agentID),
			zap.Uint("tool_instance_id", toolInstanceID),
			zap.String("capability", capability),
			zap.String("reason", reason),
		)
		return nil, apperr.ErrAuthorization
	}

	var inst model.ToolInstance
	if err := s.db.First(&inst, toolInstanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deny("tool instance does not exist")
		}
		return nil, fmt.Errorf("failed to get tool instance %d: %w", toolInstanceID, err)
	}

	var grants int64
	if err := s.db.Model(&model.ToolboxAccessGrant{}).
		Where("agent_id = ? AND toolbox_id = ?", agentID, inst.ToolboxID).Count(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to check access grant: %w", err)
	}
	if grants == 0 {
		return deny("no access grant for toolbox")
	}

	var item model.ToolbeltItem
	err := s.db.Where("agent_id = ? AND tool_instance_id = ?", agentID, toolInstanceID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deny("tool not in belt")
		}
		return nil, fmt.Errorf("failed to get toolbelt item: %w", err)
	}
	if !item.Active {
		return deny("toolbelt item inactive")
	}

	var activeCreds int64
	if err := s.db.Model(&model.AgentToolCredential{}).
		Where("toolbelt_item_id = ? AND status = ?", item.ID, types.CredentialStatusActive).
		Count(&activeCreds).Error; err != nil {
		return nil, fmt.Errorf("failed to check credentials: %w", err)
	}
	if activeCreds == 0 {
		return deny("no active credential")
	}

	var perm model.AgentToolCapabilityPermission
	err = s.db.Where("toolbelt_item_id = ? AND capability = ?", item.ID, capability).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return deny("capability not configured")
		}
		return nil, fmt.Errorf("failed to get capability permission: %w", err)
	}
	if !perm.Allowed {
		return deny("capability not allowed")
	}

	return &inst, nil
}

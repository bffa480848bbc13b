// Package instance provides the Tool Instance Registry: records of concrete
// tool deployments on Toolboxes, and the command relay that keeps the host
// agents in line with them.
package instance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/secretstore"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HostCommander relays commands to the host agent on a Toolbox. The control
// plane authenticates itself to the agent with the shared system key, which
// the implementation holds.
type HostCommander interface {
	Deploy(ctx context.Context, address string, cmd types.DeployCommand) error
	Start(ctx context.Context, address string, name string) error
	Stop(ctx context.Context, address string, name string) error
	Remove(ctx context.Context, address string, name string) error
	Execute(ctx context.Context, address string, name string, cmd types.ExecuteCommand) (*types.ExecuteResult, error)
}

// ServiceConfig holds the configuration parameters for initializing the
// InstanceService.
type ServiceConfig struct {
	DB        *gorm.DB
	Commander HostCommander
	Secrets   secretstore.Store
	Logger    *zap.Logger
}

// InstanceService owns ToolInstance records and drives their state machine.
type InstanceService struct {
	db        *gorm.DB
	commander HostCommander
	secrets   secretstore.Store
	logger    *zap.Logger
}

func NewInstanceService(c *ServiceConfig) *InstanceService {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceService{db: c.DB, commander: c.Commander, secrets: c.Secrets, logger: logger}
}

// GetInstance returns the ToolInstance with the given id.
func (s *InstanceService) GetInstance(id uint) (*model.ToolInstance, error) {
	var inst model.ToolInstance
	if err := s.db.First(&inst, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tool instance %d: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tool instance %d: %w", id, err)
	}
	return &inst, nil
}

// ListInstances returns all instances deployed on the given Toolbox.
func (s *InstanceService) ListInstances(toolboxID uint) ([]model.ToolInstance, error) {
	var instances []model.ToolInstance
	if err := s.db.Where("toolbox_id = ?", toolboxID).Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("failed to list instances for toolbox %d: %w", toolboxID, err)
	}
	return instances, nil
}

// Deploy creates a new ToolInstance on an active Toolbox and relays the deploy
// command to its host agent. Deployment is asynchronous by design: image pulls
// are slow, so the instance reaches running only via a later status report,
// never from this call.
func (s *InstanceService) Deploy(ctx context.Context, toolboxID uint, input *types.DeployToolInstanceInput) (*model.ToolInstance, error) {
	if err := types.ValidateEntityName(input.Name); err != nil {
		return nil, err
	}

	var host model.HostEnvironment
	if err := s.db.First(&host, toolboxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("toolbox %d: %w", toolboxID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get toolbox %d: %w", toolboxID, err)
	}
	if host.Status != types.ToolboxStatusActive {
		return nil, fmt.Errorf("toolbox %d is %s, deploy requires an active toolbox: %w",
			toolboxID, host.Status, apperr.ErrConflict)
	}

	var entry model.ToolCatalogEntry
	if err := s.db.First(&entry, input.CatalogID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("catalog entry %d: %w", input.CatalogID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get catalog entry %d: %w", input.CatalogID, err)
	}
	if !entry.Enabled {
		return nil, fmt.Errorf("catalog entry %s is disabled: %w", entry.Name, apperr.ErrConflict)
	}

	var count int64
	if err := s.db.Model(&model.ToolInstance{}).
		Where("toolbox_id = ? AND name = ?", toolboxID, input.Name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check instance name uniqueness: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("instance name %s already in use on toolbox %d: %w",
			input.Name, toolboxID, apperr.ErrConflict)
	}

	inst := model.ToolInstance{
		Name:      input.Name,
		ToolboxID: toolboxID,
		CatalogID: entry.ID,
		Status:    types.ToolInstanceStatusPendingDeploy,
	}
	if err := s.db.Create(&inst).Error; err != nil {
		return nil, fmt.Errorf("failed to create tool instance: %w", err)
	}

	cmd := types.DeployCommand{InstanceID: inst.ID, Name: inst.Name, Image: entry.Image}
	if err := s.commander.Deploy(ctx, host.Address, cmd); err != nil {
		inst.Status = types.ToolInstanceStatusError
		inst.StatusDetail = fmt.Sprintf("deploy command failed: %v", err)
		if saveErr := s.db.Save(&inst).Error; saveErr != nil {
			s.logger.Error("failed to persist deploy error", zap.Uint("instance_id", inst.ID), zap.Error(saveErr))
		}
		return nil, fmt.Errorf("failed to relay deploy to toolbox %d: %w", toolboxID, apperr.ErrCommunication)
	}

	// Acknowledged: the image pull is underway on the host.
	inst.Status = types.ToolInstanceStatusDeploying
	if err := s.db.Save(&inst).Error; err != nil {
		return nil, fmt.Errorf("failed to persist deploying state: %w", err)
	}

	s.logger.Info("tool instance deploying",
		zap.Uint("instance_id", inst.ID),
		zap.Uint("toolbox_id", toolboxID),
		zap.String("image", entry.Image),
	)
	return &inst, nil
}

// Start relays a start command for a stopped instance. The status update is
// optimistic; the next status report confirms it.
func (s *InstanceService) Start(ctx context.Context, id uint) error {
	return s.relaySimple(ctx, id, types.ToolInstanceStatusPendingStart, s.commander.Start)
}

// Stop relays a stop command for a running instance. The status update is
// optimistic; the next status report confirms it.
func (s *InstanceService) Stop(ctx context.Context, id uint) error {
	return s.relaySimple(ctx, id, types.ToolInstanceStatusPendingStop, s.commander.Stop)
}

func (s *InstanceService) relaySimple(
	ctx context.Context,
	id uint,
	optimistic types.ToolInstanceStatus,
	relay func(ctx context.Context, address, name string) error,
) error {
	inst, err := s.GetInstance(id)
	if err != nil {
		return err
	}

	var host model.HostEnvironment
	if err := s.db.First(&host, inst.ToolboxID).Error; err != nil {
		return fmt.Errorf("failed to get toolbox %d: %w", inst.ToolboxID, err)
	}

	if err := relay(ctx, host.Address, inst.Name); err != nil {
		return fmt.Errorf("failed to relay command to toolbox %d: %w", inst.ToolboxID, apperr.ErrCommunication)
	}

	inst.Status = optimistic
	if err := s.db.Save(inst).Error; err != nil {
		return fmt.Errorf("failed to persist instance state: %w", err)
	}
	return nil
}

// Remove tears an instance down. Toolbelt items referencing it are
// cascade-invalidated first: the owning agents lose the tool and their
// credentials for it are revoked and released from the secret store. The
// registry row is removed once the host agent acknowledges.
func (s *InstanceService) Remove(ctx context.Context, id uint) error {
	inst, err := s.GetInstance(id)
	if err != nil {
		return err
	}

	var host model.HostEnvironment
	if err := s.db.First(&host, inst.ToolboxID).Error; err != nil {
		return fmt.Errorf("failed to get toolbox %d: %w", inst.ToolboxID, err)
	}

	inst.Status = types.ToolInstanceStatusPendingDelete
	if err := s.db.Save(inst).Error; err != nil {
		return fmt.Errorf("failed to persist pending delete: %w", err)
	}

	if err := s.invalidateToolbeltItems(ctx, inst.ID); err != nil {
		return err
	}

	if err := s.commander.Remove(ctx, host.Address, inst.Name); err != nil {
		inst.Status = types.ToolInstanceStatusDeleting
		inst.StatusDetail = fmt.Sprintf("remove command failed: %v", err)
		if saveErr := s.db.Save(inst).Error; saveErr != nil {
			s.logger.Error("failed to persist remove error", zap.Uint("instance_id", inst.ID), zap.Error(saveErr))
		}
		return fmt.Errorf("failed to relay remove to toolbox %d: %w", inst.ToolboxID, apperr.ErrCommunication)
	}

	if err := s.db.Unscoped().Delete(&model.ToolInstance{}, inst.ID).Error; err != nil {
		return fmt.Errorf("failed to delete tool instance %d: %w", id, err)
	}

	s.logger.Info("tool instance removed", zap.Uint("instance_id", id), zap.Uint("toolbox_id", inst.ToolboxID))
	return nil
}

// PurgeToolbox retires every instance recorded against a toolbox that is
// going away. Toolbelt items are cascade-invalidated just like on Remove, but
// no commands are relayed: the host itself is being released.
func (s *InstanceService) PurgeToolbox(ctx context.Context, toolboxID uint) error {
	instances, err := s.ListInstances(toolboxID)
	if err != nil {
		return err
	}
	for i := range instances {
		if err := s.invalidateToolbeltItems(ctx, instances[i].ID); err != nil {
			return err
		}
	}
	if err := s.db.Where("toolbox_id = ?", toolboxID).Delete(&model.ToolInstance{}).Error; err != nil {
		return fmt.Errorf("failed to remove instances of toolbox %d: %w", toolboxID, err)
	}
	return nil
}

// Execute relays an already-authorized capability execution to the host agent
// managing the instance. The instance must be running; the host agent fetches
// the calling agent's credential itself, so the command carries identity only.
func (s *InstanceService) Execute(ctx context.Context, inst *model.ToolInstance, agentID uint, capability string, payload map[string]any) (*types.ExecuteResult, error) {
	if inst.Status != types.ToolInstanceStatusRunning {
		return nil, fmt.Errorf("tool instance %s is %s, execution requires a running instance: %w",
			inst.Name, inst.Status, apperr.ErrConflict)
	}

	var host model.HostEnvironment
	if err := s.db.First(&host, inst.ToolboxID).Error; err != nil {
		return nil, fmt.Errorf("failed to get toolbox %d: %w", inst.ToolboxID, err)
	}
	if host.Status != types.ToolboxStatusActive {
		return nil, fmt.Errorf("toolbox %d is %s: %w", host.ID, host.Status, apperr.ErrCommunication)
	}

	cmd := types.ExecuteCommand{
		RequestID:      uuid.NewString(),
		AgentID:        agentID,
		ToolInstanceID: inst.ID,
		Capability:     capability,
		Payload:        payload,
	}

	result, err := s.commander.Execute(ctx, host.Address, inst.Name, cmd)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("execution %s: %w", cmd.RequestID, apperr.ErrTimeout)
		}
		return nil, fmt.Errorf("execution %s failed: %w", cmd.RequestID, apperr.ErrCommunication)
	}
	return result, nil
}

// invalidateToolbeltItems deactivates every toolbelt item referencing the
// instance and hard-deletes the credentials and capability permissions hanging
// off them. Secret store references are released as the credentials go.
func (s *InstanceService) invalidateToolbeltItems(ctx context.Context, instanceID uint) error {
	var items []model.ToolbeltItem
	if err := s.db.Where("tool_instance_id = ?", instanceID).Find(&items).Error; err != nil {
		return fmt.Errorf("failed to list toolbelt items for instance %d: %w", instanceID, err)
	}

	for _, item := range items {
		var creds []model.AgentToolCredential
		if err := s.db.Where("toolbelt_item_id = ?", item.ID).Find(&creds).Error; err != nil {
			return fmt.Errorf("failed to list credentials for toolbelt item %d: %w", item.ID, err)
		}
		for _, cred := range creds {
			if err := s.secrets.Delete(ctx, cred.SecretRef); err != nil {
				s.logger.Warn("failed to release secret store reference",
					zap.Uint("credential_id", cred.ID), zap.Error(err))
			}
		}

		if err := s.db.Unscoped().Where("toolbelt_item_id = ?", item.ID).Delete(&model.AgentToolCredential{}).Error; err != nil {
			return fmt.Errorf("failed to delete credentials for toolbelt item %d: %w", item.ID, err)
		}
		if err := s.db.Unscoped().Where("toolbelt_item_id = ?", item.ID).Delete(&model.AgentToolCapabilityPermission{}).Error; err != nil {
			return fmt.Errorf("failed to delete permissions for toolbelt item %d: %w", item.ID, err)
		}
		if err := s.db.Unscoped().Delete(&model.ToolbeltItem{}, item.ID).Error; err != nil {
			return fmt.Errorf("failed to delete toolbelt item %d: %w", item.ID, err)
		}
	}
	return nil
}

// ApplyStatusReport applies one per-instance entry from a heartbeat payload
// sent by the host agent on the given Toolbox. It is idempotent: reports
// overwrite status and details, a report for an unknown instance id is
// ignored (the instance was already removed), and a report can never
// resurrect an instance that is on its way out. Reports for instances on a
// different Toolbox are refused: a host may only speak for its own instances.
func (s *InstanceService) ApplyStatusReport(toolboxID uint, report types.InstanceStatusReport) error {
	reported, err := types.ValidateToolInstanceStatus(report.Status)
	if err != nil {
		return err
	}

	var inst model.ToolInstance
	if err := s.db.First(&inst, report.InstanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Already removed; the host agent will clean up after its next
			// remove command or report the container gone.
			return nil
		}
		return fmt.Errorf("failed to get tool instance %d: %w", report.InstanceID, err)
	}

	if inst.ToolboxID != toolboxID {
		s.logger.Warn("status report for instance on another toolbox",
			zap.Uint("toolbox_id", toolboxID),
			zap.Uint("instance_id", inst.ID),
			zap.Uint("instance_toolbox_id", inst.ToolboxID),
		)
		return apperr.ErrAuthorization
	}

	if inst.Status.IsDeleting() {
		// Deletions win over late heartbeats.
		return nil
	}

	now := time.Now().UTC()
	inst.Status = reported
	inst.StatusDetail = report.Details
	inst.LastHeartbeatAt = &now
	if err := s.db.Save(&inst).Error; err != nil {
		return fmt.Errorf("failed to persist status report for instance %d: %w", inst.ID, err)
	}
	return nil
}

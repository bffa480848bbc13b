// Package hostenv provides the Host Environment Registry: the lifecycle
// record of every Toolbox and the orchestration that provisions and
// deprovisions the underlying compute hosts.
package hostenv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentopia/toolbox/internal"
	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/cloud"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ToolInstancePurger retires a toolbox's instances together with the toolbelt
// items, credentials and secret store rows recorded against them.
type ToolInstancePurger interface {
	PurgeToolbox(ctx context.Context, toolboxID uint) error
}

// ServiceConfig holds the configuration parameters for initializing the
// HostEnvService.
type ServiceConfig struct {
	DB          *gorm.DB
	Provisioner cloud.Provisioner
	Instances   ToolInstancePurger
	Logger      *zap.Logger

	// ControlPlaneURL is the base URL the host agent on a new Toolbox calls
	// home to.
	ControlPlaneURL string

	// SystemKey is the fixed shared key the control plane uses to
	// authenticate to host agents. It is injected into every new host's
	// startup payload.
	SystemKey string

	// AddressPollInterval is how often the provisioning poller asks the cloud
	// adapter whether the new host has a network address yet.
	AddressPollInterval time.Duration

	// AddressPollTimeout bounds how long provisioning waits for an address.
	AddressPollTimeout time.Duration
}

// HostEnvService owns HostEnvironment records and drives their state machine.
type HostEnvService struct {
	db          *gorm.DB
	provisioner cloud.Provisioner
	instances   ToolInstancePurger
	logger      *zap.Logger

	controlPlaneURL string
	systemKey       string

	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewHostEnvService(c *ServiceConfig) *HostEnvService {
	pollInterval := c.AddressPollInterval
	if pollInterval == 0 {
		pollInterval = 5 * time.Second
	}
	pollTimeout := c.AddressPollTimeout
	if pollTimeout == 0 {
		pollTimeout = 5 * time.Minute
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostEnvService{
		db:              c.DB,
		provisioner:     c.Provisioner,
		instances:       c.Instances,
		logger:          logger,
		controlPlaneURL: c.ControlPlaneURL,
		systemKey:       c.SystemKey,
		pollInterval:    pollInterval,
		pollTimeout:     pollTimeout,
	}
}

// GetToolbox returns the HostEnvironment with the given id.
func (s *HostEnvService) GetToolbox(id uint) (*model.HostEnvironment, error) {
	var host model.HostEnvironment
	if err := s.db.First(&host, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("toolbox %d: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get toolbox %d: %w", id, err)
	}
	return &host, nil
}

// ListToolboxes returns all HostEnvironments owned by the given owner.
func (s *HostEnvService) ListToolboxes(owner string) ([]model.HostEnvironment, error) {
	var hosts []model.HostEnvironment
	if err := s.db.Where("owner = ?", owner).Find(&hosts).Error; err != nil {
		return nil, fmt.Errorf("failed to list toolboxes: %w", err)
	}
	return hosts, nil
}

// GetToolboxByBearerSecret authenticates a host agent by exact match of its
// per-host bearer secret.
func (s *HostEnvService) GetToolboxByBearerSecret(secret string) (*model.HostEnvironment, error) {
	if secret == "" {
		return nil, apperr.ErrAuthorization
	}
	var host model.HostEnvironment
	if err := s.db.Where("bearer_secret = ?", secret).First(&host).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrAuthorization
		}
		return nil, fmt.Errorf("failed to look up toolbox by bearer secret: %w", err)
	}
	return &host, nil
}

// Provision creates a new HostEnvironment and starts provisioning the
// underlying compute host in the background. The caller polls GetToolbox for
// progress; provisioning never blocks the request.
func (s *HostEnvService) Provision(owner string, input *types.ProvisionToolboxInput) (*model.HostEnvironment, error) {
	if err := types.ValidateProvisionToolboxInput(input); err != nil {
		return nil, err
	}

	// The bearer secret is generated exactly once, here. It is never
	// regenerated while the host is active.
	secret, err := internal.GenerateAccessToken()
	if err != nil {
		return nil, err
	}

	host := model.HostEnvironment{
		Name:         input.Name,
		Owner:        owner,
		BearerSecret: secret,
		Status:       types.ToolboxStatusPendingProvision,
	}
	if err := s.db.Create(&host).Error; err != nil {
		return nil, fmt.Errorf("failed to create toolbox record: %w", err)
	}

	go s.provision(host.ID, *input)

	return &host, nil
}

// provision runs the asynchronous part of provisioning: create the host,
// wait for the provider to assign an address, then hand over to the
// heartbeat path by entering awaiting_heartbeat.
func (s *HostEnvService) provision(id uint, input types.ProvisionToolboxInput) {
	ctx, cancel := context.WithTimeout(context.Background(), s.pollTimeout)
	defer cancel()

	host, err := s.GetToolbox(id)
	if err != nil {
		s.logger.Error("provisioning aborted, toolbox record vanished", zap.Uint("toolbox_id", id), zap.Error(err))
		return
	}

	userData := buildUserData(s.controlPlaneURL, host.BearerSecret, s.systemKey)
	created, err := s.provisioner.CreateHost(ctx, cloud.HostRequest{
		Name:     input.Name,
		Region:   input.Region,
		Size:     input.Size,
		Image:    input.Image,
		UserData: userData,
	})
	if err != nil {
		s.failProvisioning(id, fmt.Sprintf("cloud host creation failed: %v", err))
		return
	}

	// Column-scoped updates only: the host agent may start heartbeating at any
	// point from here on, and a full-struct save would clobber whatever the
	// heartbeat path wrote. The status moves forward only from the states this
	// goroutine owns, so a host the first heartbeat already made active stays
	// active.
	if err := s.db.Model(&model.HostEnvironment{}).Where("id = ?", id).
		Update("provider_instance_id", created.ProviderID).Error; err != nil {
		s.logger.Error("failed to persist provisioning state", zap.Uint("toolbox_id", id), zap.Error(err))
		return
	}
	if err := s.db.Model(&model.HostEnvironment{}).
		Where("id = ? AND status = ?", id, types.ToolboxStatusPendingProvision).
		Update("status", types.ToolboxStatusProvisioning).Error; err != nil {
		s.logger.Error("failed to persist provisioning state", zap.Uint("toolbox_id", id), zap.Error(err))
		return
	}
	s.logger.Info("cloud host created",
		zap.Uint("toolbox_id", id),
		zap.String("provider_instance_id", created.ProviderID),
	)

	address, err := s.waitForAddress(ctx, created.ProviderID)
	if err != nil {
		s.failProvisioning(id, fmt.Sprintf("waiting for host address failed: %v", err))
		return
	}

	if err := s.db.Model(&model.HostEnvironment{}).Where("id = ?", id).
		Update("address", address).Error; err != nil {
		s.logger.Error("failed to persist host address", zap.Uint("toolbox_id", id), zap.Error(err))
		return
	}
	if err := s.db.Model(&model.HostEnvironment{}).
		Where("id = ? AND status IN ?", id,
			[]types.ToolboxStatus{types.ToolboxStatusPendingProvision, types.ToolboxStatusProvisioning}).
		Update("status", types.ToolboxStatusAwaitingHeartbeat).Error; err != nil {
		s.logger.Error("failed to persist host address", zap.Uint("toolbox_id", id), zap.Error(err))
		return
	}
	s.logger.Info("toolbox awaiting first heartbeat",
		zap.Uint("toolbox_id", id),
		zap.String("address", address),
	)
}

func (s *HostEnvService) waitForAddress(ctx context.Context, providerID string) (string, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		h, err := s.provisioner.GetHost(ctx, providerID)
		if err != nil {
			return "", err
		}
		if h.Address != "" {
			return h.Address, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("timed out waiting for host address: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// failProvisioning marks the toolbox as error_provisioning with the failure
// message. There is no automatic retry: the owner retries explicitly.
func (s *HostEnvService) failProvisioning(id uint, detail string) {
	s.logger.Error("provisioning failed", zap.Uint("toolbox_id", id), zap.String("detail", detail))
	err := s.db.Model(&model.HostEnvironment{}).Where("id = ?", id).Updates(map[string]any{
		"status":        types.ToolboxStatusErrorProvisioning,
		"status_detail": detail,
	}).Error
	if err != nil {
		s.logger.Error("failed to persist provisioning error", zap.Uint("toolbox_id", id), zap.Error(err))
	}
}

// Deprovision releases the underlying compute host and retires the record.
// A "resource already gone" response from the provider counts as success.
// On adapter failure the record is left in error_deprovisioning for an
// explicit retry.
func (s *HostEnvService) Deprovision(ctx context.Context, id uint) error {
	host, err := s.GetToolbox(id)
	if err != nil {
		return err
	}
	if host.Status == types.ToolboxStatusDeprovisioned {
		return nil
	}

	host.Status = types.ToolboxStatusDeprovisioning
	if err := s.db.Save(host).Error; err != nil {
		return fmt.Errorf("failed to persist deprovisioning state: %w", err)
	}

	if host.ProviderInstanceID != "" {
		if err := s.provisioner.DeleteHost(ctx, host.ProviderInstanceID); err != nil && !errors.Is(err, cloud.ErrHostNotFound) {
			host.Status = types.ToolboxStatusErrorDeprovisioning
			host.StatusDetail = fmt.Sprintf("cloud host deletion failed: %v", err)
			if saveErr := s.db.Save(host).Error; saveErr != nil {
				s.logger.Error("failed to persist deprovisioning error", zap.Uint("toolbox_id", id), zap.Error(saveErr))
			}
			return fmt.Errorf("%s: %w", host.StatusDetail, apperr.ErrProvisioning)
		}
	}

	// The bearer secret is replaced with a per-host tombstone: it can never
	// authenticate again, and the unique index stays satisfied across many
	// deprovisioned hosts.
	host.Status = types.ToolboxStatusDeprovisioned
	host.Address = ""
	host.BearerSecret = fmt.Sprintf("revoked:%d", host.ID)
	host.StatusDetail = ""
	if err := s.db.Save(host).Error; err != nil {
		return fmt.Errorf("failed to persist deprovisioned state: %w", err)
	}

	// The record is destroyed (soft-deleted) only after the host is confirmed
	// released. Instances on the host go with it, and so does everything
	// recorded against them: toolbelt items, credentials, secret store rows.
	if s.instances != nil {
		if err := s.instances.PurgeToolbox(ctx, host.ID); err != nil {
			return fmt.Errorf("failed to purge instances of toolbox %d: %w", id, err)
		}
	} else if err := s.db.Where("toolbox_id = ?", host.ID).Delete(&model.ToolInstance{}).Error; err != nil {
		return fmt.Errorf("failed to remove instances of toolbox %d: %w", id, err)
	}
	if err := s.db.Delete(host).Error; err != nil {
		return fmt.Errorf("failed to retire toolbox %d: %w", id, err)
	}

	s.logger.Info("toolbox deprovisioned", zap.Uint("toolbox_id", id))
	return nil
}

// buildUserData renders the cloud-init payload that configures the host agent
// on first boot with its identity and the control plane's.
func buildUserData(controlPlaneURL, bearerSecret, systemKey string) string {
	return fmt.Sprintf(`#cloud-config
write_files:
  - path: /etc/toolbox/agent.yaml
    permissions: "0600"
    content: |
      control_plane_url: %q
      bearer_secret: %q
      system_key: %q
runcmd:
  - systemctl enable --now toolbox-host-agent
`, controlPlaneURL, bearerSecret, systemKey)
}

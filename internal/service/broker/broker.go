// Package broker provides just-in-time credential resolution for host agents.
// A host agent never holds secrets at rest: it fetches the calling agent's
// credential for a single execution, uses it, and discards it.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/secretstore"
	"github.com/agentopia/toolbox/internal/telemetry"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceConfig holds the configuration parameters for initializing the
// BrokerService.
type ServiceConfig struct {
	DB      *gorm.DB
	Secrets secretstore.Store
	Metrics telemetry.CustomMetrics
	Logger  *zap.Logger
}

// BrokerService resolves credentials for authenticated host agents and keeps
// the audit trail of every fetch.
type BrokerService struct {
	db      *gorm.DB
	secrets secretstore.Store
	metrics telemetry.CustomMetrics
	logger  *zap.Logger
}

func NewBrokerService(c *ServiceConfig) *BrokerService {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := c.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopCustomMetrics()
	}
	return &BrokerService{db: c.DB, secrets: c.Secrets, metrics: metrics, logger: logger}
}

// FetchCredential resolves the named agent's active credential for a tool
// instance, on behalf of the already-authenticated host. The instance must
// live on that host: a host agent can only ask about its own tools.
//
// Every fetch, allowed or not, is decided here; every allowed fetch leaves an
// audit row. The audit row records who fetched what and when, never the
// secret itself.
func (s *BrokerService) FetchCredential(ctx context.Context, host *model.HostEnvironment, req *types.FetchCredentialRequest) (*types.FetchCredentialResponse, error) {
	resp, err := s.fetchCredential(ctx, host, req)
	if err != nil {
		if errors.Is(err, apperr.ErrAuthorization) || errors.Is(err, apperr.ErrCredential) {
			s.metrics.RecordCredentialFetch(ctx, telemetry.ExecutionOutcomeDenied)
		} else {
			s.metrics.RecordCredentialFetch(ctx, telemetry.ExecutionOutcomeError)
		}
		return nil, err
	}
	s.metrics.RecordCredentialFetch(ctx, telemetry.ExecutionOutcomeSuccess)
	return resp, nil
}

func (s *BrokerService) fetchCredential(ctx context.Context, host *model.HostEnvironment, req *types.FetchCredentialRequest) (*types.FetchCredentialResponse, error) {
	var inst model.ToolInstance
	if err := s.db.First(&inst, req.ToolInstanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrAuthorization
		}
		return nil, fmt.Errorf("failed to get tool instance %d: %w", req.ToolInstanceID, err)
	}
	if inst.ToolboxID != host.ID {
		s.logger.Warn("host asked for a credential of a foreign instance",
			zap.Uint("toolbox_id", host.ID),
			zap.Uint("tool_instance_id", inst.ID),
		)
		return nil, apperr.ErrAuthorization
	}

	var item model.ToolbeltItem
	err := s.db.Where("agent_id = ? AND tool_instance_id = ? AND active = ?", req.AgentID, req.ToolInstanceID, true).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrAuthorization
		}
		return nil, fmt.Errorf("failed to get toolbelt item: %w", err)
	}

	var cred model.AgentToolCredential
	err = s.db.Where("toolbelt_item_id = ? AND status = ?", item.ID, types.CredentialStatusActive).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no active credential for toolbelt item %d: %w", item.ID, apperr.ErrCredential)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	secret, err := s.secrets.Get(ctx, cred.SecretRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", apperr.ErrCredential)
	}

	audit := model.CredentialAuditEntry{
		RequestID:      uuid.NewString(),
		ToolboxID:      host.ID,
		AgentID:        req.AgentID,
		ToolInstanceID: req.ToolInstanceID,
		Kind:           cred.Kind,
	}
	if err := s.db.Create(&audit).Error; err != nil {
		// No audit row, no secret.
		return nil, fmt.Errorf("failed to record credential fetch: %w", err)
	}

	s.logger.Info("credential fetched",
		zap.String("request_id", audit.RequestID),
		zap.Uint("toolbox_id", host.ID),
		zap.Uint("agent_id", req.AgentID),
		zap.Uint("tool_instance_id", req.ToolInstanceID),
		zap.String("kind", cred.Kind),
	)

	return &types.FetchCredentialResponse{Kind: cred.Kind, Secret: secret}, nil
}

// ListAuditEntries returns the credential fetch audit rows for one toolbox,
// newest first.
func (s *BrokerService) ListAuditEntries(toolboxID uint) ([]model.CredentialAuditEntry, error) {
	var entries []model.CredentialAuditEntry
	if err := s.db.Where("toolbox_id = ?", toolboxID).Order("id DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

package hostenv

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"go.uber.org/zap"
)

// ReceiveHeartbeat authenticates a host agent by its bearer secret and applies
// the host-level part of the heartbeat. The caller fans the per-instance
// reports out to the instance registry.
//
// Heartbeats are idempotent and never regress a toolbox to an earlier
// lifecycle state: a late heartbeat cannot pull an active host back to
// provisioning, and a deprovisioning host ignores them entirely.
func (s *HostEnvService) ReceiveHeartbeat(secret string, req *types.HeartbeatRequest) (*model.HostEnvironment, error) {
	host, err := s.GetToolboxByBearerSecret(secret)
	if err != nil {
		return nil, err
	}

	switch host.Status {
	case types.ToolboxStatusProvisioning, types.ToolboxStatusAwaitingHeartbeat:
		// First contact from the host agent.
		host.Status = types.ToolboxStatusActive
		s.logger.Info("toolbox is active", zap.Uint("toolbox_id", host.ID))
	case types.ToolboxStatusUnresponsive:
		// The host came back.
		host.Status = types.ToolboxStatusActive
		s.logger.Info("toolbox recovered", zap.Uint("toolbox_id", host.ID))
	case types.ToolboxStatusActive:
		// Steady state.
	default:
		// Deprovisioning or terminal: a straggler heartbeat must not advance
		// or resurrect the record.
		s.logger.Warn("ignoring heartbeat for toolbox outside active lifecycle",
			zap.Uint("toolbox_id", host.ID),
			zap.String("status", string(host.Status)),
		)
		return host, nil
	}

	now := time.Now().UTC()
	host.LastHeartbeatAt = &now
	host.AgentVersion = req.AgentVersion

	health, err := json.Marshal(req.HostHealth)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host health: %w", err)
	}
	host.Health = health

	if err := s.db.Save(host).Error; err != nil {
		return nil, fmt.Errorf("failed to persist heartbeat for toolbox %d: %w", host.ID, err)
	}
	return host, nil
}

// MarkUnresponsiveToolboxes flips active toolboxes whose last heartbeat is
// older than staleAfter to unresponsive. It is called by the periodic
// staleness sweep, never by the heartbeat handler: the absence of a heartbeat
// is not itself an event.
func (s *HostEnvService) MarkUnresponsiveToolboxes(staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	result := s.db.Model(&model.HostEnvironment{}).
		Where("status = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)", types.ToolboxStatusActive, cutoff).
		Update("status", types.ToolboxStatusUnresponsive)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep stale toolboxes: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Warn("marked toolboxes unresponsive", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

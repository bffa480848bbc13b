// Package reconcile ties the heartbeat stream to the registries: each
// heartbeat updates the host record and fans its per-instance reports out to
// the instance registry, and a background sweep flips silent hosts to
// unresponsive.
package reconcile

import (
	"context"
	"time"

	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/service/hostenv"
	"github.com/agentopia/toolbox/internal/service/instance"
	"github.com/agentopia/toolbox/internal/telemetry"
	"github.com/agentopia/toolbox/pkg/types"
	"go.uber.org/zap"
)

// ServiceConfig holds the configuration parameters for initializing the
// Reconciler.
type ServiceConfig struct {
	Hosts     *hostenv.HostEnvService
	Instances *instance.InstanceService
	Metrics   telemetry.CustomMetrics
	Logger    *zap.Logger

	// SweepInterval is how often the staleness sweep runs.
	SweepInterval time.Duration

	// StaleAfter is how long a toolbox may go without a heartbeat before the
	// sweep marks it unresponsive.
	StaleAfter time.Duration
}

type Reconciler struct {
	hosts     *hostenv.HostEnvService
	instances *instance.InstanceService
	metrics   telemetry.CustomMetrics
	logger    *zap.Logger

	sweepInterval time.Duration
	staleAfter    time.Duration
}

func NewReconciler(c *ServiceConfig) *Reconciler {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := c.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopCustomMetrics()
	}
	sweepInterval := c.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}
	staleAfter := c.StaleAfter
	if staleAfter == 0 {
		staleAfter = 5 * time.Minute
	}
	return &Reconciler{
		hosts:         c.Hosts,
		instances:     c.Instances,
		metrics:       metrics,
		logger:        logger,
		sweepInterval: sweepInterval,
		staleAfter:    staleAfter,
	}
}

// HandleHeartbeat processes one heartbeat from a host agent: authenticate,
// update the host record, then apply every per-instance report. A bad report
// for one instance does not block the others.
func (r *Reconciler) HandleHeartbeat(ctx context.Context, bearerSecret string, req *types.HeartbeatRequest) (*model.HostEnvironment, error) {
	host, err := r.hosts.ReceiveHeartbeat(bearerSecret, req)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordHeartbeat(ctx)

	for _, report := range req.ToolInstances {
		if err := r.instances.ApplyStatusReport(host.ID, report); err != nil {
			r.logger.Warn("failed to apply instance status report",
				zap.Uint("toolbox_id", host.ID),
				zap.Uint("instance_id", report.InstanceID),
				zap.Error(err),
			)
		}
	}
	return host, nil
}

// RunStalenessSweep runs the unresponsiveness sweep until the context is
// cancelled. Call it in its own goroutine.
func (r *Reconciler) RunStalenessSweep(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.hosts.MarkUnresponsiveToolboxes(r.staleAfter); err != nil {
				r.logger.Error("staleness sweep failed", zap.Error(err))
			}
		}
	}
}

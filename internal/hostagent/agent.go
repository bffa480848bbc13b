package hostagent

import (
	"context"
	"time"

	"github.com/agentopia/toolbox/pkg/types"
	"github.com/agentopia/toolbox/pkg/version"
	"go.uber.org/zap"
)

// Agent wires the host agent together: the container manager, the inbound
// command server and the outbound heartbeat loop.
type Agent struct {
	cfg     *Config
	control *ControlPlaneClient
	manager *Manager
	server  *Server
	logger  *zap.Logger

	startedAt time.Time
}

func NewAgent(cfg *Config, runtime ContainerRuntime, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	control := NewControlPlaneClient(cfg.ControlPlaneURL, cfg.BearerSecret)
	manager := NewManager(&ManagerConfig{
		Runtime:                runtime,
		Credentials:            control,
		Logger:                 logger,
		ExecuteTimeout:         cfg.ExecuteTimeout,
		CredentialFetchTimeout: cfg.CredentialFetchTimeout,
	})
	return &Agent{
		cfg:       cfg,
		control:   control,
		manager:   manager,
		server:    NewServer(cfg.ListenAddr, cfg.SystemKey, manager),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Run starts the heartbeat loop and the inbound command server. It blocks
// until the server exits.
func (a *Agent) Run(ctx context.Context) error {
	go a.heartbeatLoop(ctx)

	a.logger.Info("host agent listening",
		zap.String("addr", a.cfg.ListenAddr),
		zap.String("control_plane", a.cfg.ControlPlaneURL),
	)
	return a.server.Start()
}

// heartbeatLoop reports to the control plane on a fixed interval. The first
// heartbeat goes out immediately: it is what flips a fresh Toolbox to active.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	a.sendHeartbeat(ctx)

	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendHeartbeat(ctx)
		}
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context) {
	req := &types.HeartbeatRequest{
		AgentVersion: version.GetVersion(),
		HostHealth: types.HostHealth{
			UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
		},
		ToolInstances: a.manager.StatusReports(),
	}
	if err := a.control.Heartbeat(ctx, req); err != nil {
		// Transient by assumption; the control plane's staleness sweep deals
		// with prolonged silence.
		a.logger.Warn("heartbeat failed", zap.Error(err))
	}
}

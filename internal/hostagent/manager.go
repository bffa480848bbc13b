package hostagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/pkg/types"
	"go.uber.org/zap"
)

// toolEntrypoint is the in-container command every tool image provides. It
// receives the capability name as its argument and the payload via the
// environment.
const toolEntrypoint = "/opt/tool/run"

// CredentialFetcher resolves an agent's credential for a single execution.
type CredentialFetcher interface {
	FetchCredential(ctx context.Context, req *types.FetchCredentialRequest) (*types.FetchCredentialResponse, error)
}

type managedInstance struct {
	ID      uint
	Name    string
	Image   string
	Status  types.ToolInstanceStatus
	Details string
}

// Manager owns the tool containers on one Toolbox. All mutations of a given
// container are serialized through a per-container lock so concurrent
// commands from the control plane cannot interleave.
type Manager struct {
	runtime     ContainerRuntime
	creds       CredentialFetcher
	logger      *zap.Logger
	execTimeout time.Duration
	credTimeout time.Duration

	mu        sync.Mutex
	instances map[uint]*managedInstance
	locks     map[string]*sync.Mutex
}

type ManagerConfig struct {
	Runtime                ContainerRuntime
	Credentials            CredentialFetcher
	Logger                 *zap.Logger
	ExecuteTimeout         time.Duration
	CredentialFetchTimeout time.Duration
}

func NewManager(c *ManagerConfig) *Manager {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	execTimeout := c.ExecuteTimeout
	if execTimeout == 0 {
		execTimeout = 60 * time.Second
	}
	credTimeout := c.CredentialFetchTimeout
	if credTimeout == 0 {
		credTimeout = 5 * time.Second
	}
	return &Manager{
		runtime:     c.Runtime,
		creds:       c.Credentials,
		logger:      logger,
		execTimeout: execTimeout,
		credTimeout: credTimeout,
		instances:   make(map[uint]*managedInstance),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	return l
}

func (m *Manager) byName(name string) *managedInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		if inst.Name == name {
			return inst
		}
	}
	return nil
}

func (m *Manager) setStatus(id uint, status types.ToolInstanceStatus, details string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		inst.Status = status
		inst.Details = details
	}
}

// Deploy registers a new tool instance and brings its container up in the
// background: the image pull can take minutes, and the control plane learns
// the outcome from the next heartbeat.
func (m *Manager) Deploy(cmd types.DeployCommand) error {
	m.mu.Lock()
	if _, ok := m.instances[cmd.InstanceID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("instance %d is already managed: %w", cmd.InstanceID, apperr.ErrConflict)
	}
	for _, inst := range m.instances {
		if inst.Name == cmd.Name {
			m.mu.Unlock()
			return fmt.Errorf("container name %s is already in use: %w", cmd.Name, apperr.ErrConflict)
		}
	}
	m.instances[cmd.InstanceID] = &managedInstance{
		ID:     cmd.InstanceID,
		Name:   cmd.Name,
		Image:  cmd.Image,
		Status: types.ToolInstanceStatusDeploying,
	}
	m.mu.Unlock()

	go m.deploy(cmd)
	return nil
}

func (m *Manager) deploy(cmd types.DeployCommand) {
	lock := m.lockFor(cmd.Name)
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()

	if err := m.runtime.PullImage(ctx, cmd.Image); err != nil {
		m.logger.Error("image pull failed", zap.String("image", cmd.Image), zap.Error(err))
		m.setStatus(cmd.InstanceID, types.ToolInstanceStatusError, fmt.Sprintf("image pull failed: %v", err))
		return
	}
	if err := m.runtime.CreateContainer(ctx, cmd.Name, cmd.Image); err != nil {
		m.logger.Error("container create failed", zap.String("name", cmd.Name), zap.Error(err))
		m.setStatus(cmd.InstanceID, types.ToolInstanceStatusError, fmt.Sprintf("container create failed: %v", err))
		return
	}
	if err := m.runtime.StartContainer(ctx, cmd.Name); err != nil {
		m.logger.Error("container start failed", zap.String("name", cmd.Name), zap.Error(err))
		m.setStatus(cmd.InstanceID, types.ToolInstanceStatusError, fmt.Sprintf("container start failed: %v", err))
		return
	}

	m.setStatus(cmd.InstanceID, types.ToolInstanceStatusRunning, "")
	m.logger.Info("tool instance running", zap.Uint("instance_id", cmd.InstanceID), zap.String("name", cmd.Name))
}

// StartTool starts a stopped tool container.
func (m *Manager) StartTool(ctx context.Context, name string) error {
	inst := m.byName(name)
	if inst == nil {
		return fmt.Errorf("tool %s: %w", name, apperr.ErrNotFound)
	}

	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if err := m.runtime.StartContainer(ctx, name); err != nil {
		m.setStatus(inst.ID, types.ToolInstanceStatusError, fmt.Sprintf("start failed: %v", err))
		return fmt.Errorf("failed to start tool %s: %w", name, err)
	}
	m.setStatus(inst.ID, types.ToolInstanceStatusRunning, "")
	return nil
}

// StopTool stops a running tool container.
func (m *Manager) StopTool(ctx context.Context, name string) error {
	inst := m.byName(name)
	if inst == nil {
		return fmt.Errorf("tool %s: %w", name, apperr.ErrNotFound)
	}

	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if err := m.runtime.StopContainer(ctx, name); err != nil {
		m.setStatus(inst.ID, types.ToolInstanceStatusError, fmt.Sprintf("stop failed: %v", err))
		return fmt.Errorf("failed to stop tool %s: %w", name, err)
	}
	m.setStatus(inst.ID, types.ToolInstanceStatusStopped, "")
	return nil
}

// RemoveTool removes a tool container and forgets the instance. Removing a
// container the runtime no longer knows about succeeds: the desired state is
// "gone", and it is.
func (m *Manager) RemoveTool(ctx context.Context, name string) error {
	inst := m.byName(name)
	if inst == nil {
		return nil
	}

	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if err := m.runtime.RemoveContainer(ctx, name); err != nil && !errors.Is(err, ErrContainerNotFound) {
		m.setStatus(inst.ID, types.ToolInstanceStatusError, fmt.Sprintf("remove failed: %v", err))
		return fmt.Errorf("failed to remove tool %s: %w", name, err)
	}

	m.mu.Lock()
	delete(m.instances, inst.ID)
	delete(m.locks, name)
	m.mu.Unlock()
	return nil
}

// Execute runs one capability inside a running tool container. The calling
// agent's credential is fetched just in time, injected into the exec's
// environment only, and discarded with it. The execution runs on a detached,
// bounded context so a dropped inbound connection cannot orphan it mid-exec.
func (m *Manager) Execute(ctx context.Context, name string, cmd types.ExecuteCommand) (*types.ExecuteResult, error) {
	inst := m.byName(name)
	if inst == nil || inst.ID != cmd.ToolInstanceID {
		return nil, fmt.Errorf("tool %s: %w", name, apperr.ErrNotFound)
	}
	if inst.Status != types.ToolInstanceStatusRunning {
		return nil, fmt.Errorf("tool instance %d is %s: %w", inst.ID, inst.Status, apperr.ErrConflict)
	}

	credCtx, cancelCred := context.WithTimeout(ctx, m.credTimeout)
	defer cancelCred()
	cred, err := m.creds.FetchCredential(credCtx, &types.FetchCredentialRequest{
		AgentID:        cmd.AgentID,
		ToolInstanceID: cmd.ToolInstanceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credential for request %s: %w", cmd.RequestID, apperr.ErrCredential)
	}

	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for request %s: %w", cmd.RequestID, err)
	}

	env := []string{
		"TOOLBOX_REQUEST_ID=" + cmd.RequestID,
		"TOOLBOX_CAPABILITY=" + cmd.Capability,
		"TOOLBOX_PAYLOAD=" + string(payload),
		credentialEnvVar(cred.Kind) + "=" + cred.Secret,
	}

	execCtx, cancelExec := context.WithTimeout(context.Background(), m.execTimeout)
	defer cancelExec()

	result, err := m.runtime.Exec(execCtx, ExecRequest{
		ContainerName: inst.Name,
		Cmd:           []string{toolEntrypoint, cmd.Capability},
		Env:           env,
	})
	if err != nil {
		if execCtx.Err() != nil {
			// The container is left as-is; the next heartbeat reconciles it.
			return nil, fmt.Errorf("execution %s: %w", cmd.RequestID, apperr.ErrTimeout)
		}
		return nil, fmt.Errorf("execution %s failed: %w", cmd.RequestID, err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("execution %s exited with code %d: %s", cmd.RequestID, result.ExitCode, result.Output)
	}

	return &types.ExecuteResult{RequestID: cmd.RequestID, Output: result.Output}, nil
}

// StatusReports snapshots every managed instance for the next heartbeat.
func (m *Manager) StatusReports() []types.InstanceStatusReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	reports := make([]types.InstanceStatusReport, 0, len(m.instances))
	for _, inst := range m.instances {
		reports = append(reports, types.InstanceStatusReport{
			InstanceID: inst.ID,
			Status:     string(inst.Status),
			Details:    inst.Details,
		})
	}
	return reports
}

// credentialEnvVar maps a secret slot kind to the environment variable the
// tool reads it from, eg- "api_key" becomes TOOLBOX_SECRET_API_KEY.
func credentialEnvVar(kind string) string {
	return "TOOLBOX_SECRET_" + strings.ToUpper(strings.ReplaceAll(kind, "-", "_"))
}

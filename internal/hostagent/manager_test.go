package hostagent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainer struct {
	image   string
	running bool
}

type fakeRuntime struct {
	mu         sync.Mutex
	pulled     []string
	containers map[string]*fakeContainer
	execs      []ExecRequest

	pullErr error
	execFn  func(req ExecRequest) (*ExecResult, error)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]*fakeContainer)}
}

func (f *fakeRuntime) PullImage(_ context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeRuntime) CreateContainer(_ context.Context, name, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = &fakeContainer{image: image}
	return nil
}

func (f *fakeRuntime) StartContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ErrContainerNotFound
	}
	c.running = true
	return nil
}

func (f *fakeRuntime) StopContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ErrContainerNotFound
	}
	c.running = false
	return nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return ErrContainerNotFound
	}
	delete(f.containers, name)
	return nil
}

func (f *fakeRuntime) IsRunning(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return false, ErrContainerNotFound
	}
	return c.running, nil
}

func (f *fakeRuntime) Exec(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	f.mu.Lock()
	f.execs = append(f.execs, req)
	fn := f.execFn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &ExecResult{Output: "ok", ExitCode: 0}, nil
}

type fakeCredentials struct {
	mu      sync.Mutex
	fetches int
	resp    *types.FetchCredentialResponse
	err     error
}

func (f *fakeCredentials) FetchCredential(_ context.Context, _ *types.FetchCredentialRequest) (*types.FetchCredentialResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeCredentials) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func newManager(rt ContainerRuntime, creds CredentialFetcher) *Manager {
	return NewManager(&ManagerConfig{
		Runtime:                rt,
		Credentials:            creds,
		ExecuteTimeout:         time.Second,
		CredentialFetchTimeout: time.Second,
	})
}

// deployAndWait deploys echo-tool and waits for the background deploy to
// settle.
func deployAndWait(t *testing.T, m *Manager, want types.ToolInstanceStatus) {
	t.Helper()
	require.NoError(t, m.Deploy(types.DeployCommand{
		InstanceID: 7, Name: "echo-tool", Image: "ghcr.io/agentopia/echo-tool:latest",
	}))
	require.Eventually(t, func() bool {
		for _, r := range m.StatusReports() {
			if r.InstanceID == 7 && r.Status == string(want) {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDeployBringsContainerUp(t *testing.T) {
	rt := newFakeRuntime()
	m := newManager(rt, &fakeCredentials{})

	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	assert.Equal(t, []string{"ghcr.io/agentopia/echo-tool:latest"}, rt.pulled)
	running, err := rt.IsRunning(context.Background(), "echo-tool")
	require.NoError(t, err)
	assert.True(t, running)
}

func TestDeployDuplicate(t *testing.T) {
	m := newManager(newFakeRuntime(), &fakeCredentials{})
	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	err := m.Deploy(types.DeployCommand{InstanceID: 7, Name: "echo-tool", Image: "x"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = m.Deploy(types.DeployCommand{InstanceID: 8, Name: "echo-tool", Image: "x"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeployPullFailureReportsError(t *testing.T) {
	rt := newFakeRuntime()
	rt.pullErr = errors.New("registry unreachable")
	m := newManager(rt, &fakeCredentials{})

	deployAndWait(t, m, types.ToolInstanceStatusError)

	reports := m.StatusReports()
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Details, "registry unreachable")
}

func TestStartStopRemove(t *testing.T) {
	rt := newFakeRuntime()
	m := newManager(rt, &fakeCredentials{})
	ctx := context.Background()

	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	require.NoError(t, m.StopTool(ctx, "echo-tool"))
	running, err := rt.IsRunning(ctx, "echo-tool")
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, m.StartTool(ctx, "echo-tool"))

	require.NoError(t, m.RemoveTool(ctx, "echo-tool"))
	assert.Empty(t, m.StatusReports())

	// Idempotent: removing again is fine.
	assert.NoError(t, m.RemoveTool(ctx, "echo-tool"))
}

func TestExecuteInjectsCredentialOnce(t *testing.T) {
	rt := newFakeRuntime()
	creds := &fakeCredentials{resp: &types.FetchCredentialResponse{Kind: "api_key", Secret: "k-123"}}
	m := newManager(rt, creds)

	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	result, err := m.Execute(context.Background(), "echo-tool", types.ExecuteCommand{
		RequestID: "r-1", AgentID: 3, ToolInstanceID: 7,
		Capability: "echo.send", Payload: map[string]any{"message": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "r-1", result.RequestID)

	// Exactly one just-in-time fetch per execution.
	assert.Equal(t, 1, creds.count())

	require.Len(t, rt.execs, 1)
	exec := rt.execs[0]
	assert.Equal(t, []string{toolEntrypoint, "echo.send"}, exec.Cmd)
	assert.Contains(t, exec.Env, "TOOLBOX_SECRET_API_KEY=k-123")
	assert.Contains(t, exec.Env, "TOOLBOX_REQUEST_ID=r-1")

	// A second execution fetches again: nothing was cached.
	_, err = m.Execute(context.Background(), "echo-tool", types.ExecuteCommand{
		RequestID: "r-2", AgentID: 3, ToolInstanceID: 7, Capability: "echo.send",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, creds.count())
}

func TestExecuteRequiresRunningInstance(t *testing.T) {
	m := newManager(newFakeRuntime(), &fakeCredentials{})
	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	require.NoError(t, m.StopTool(context.Background(), "echo-tool"))

	_, err := m.Execute(context.Background(), "echo-tool", types.ExecuteCommand{RequestID: "r-1", ToolInstanceID: 7})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = m.Execute(context.Background(), "no-such-tool", types.ExecuteCommand{RequestID: "r-2", ToolInstanceID: 999})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// A name that resolves to a different instance than the command claims is
	// refused too.
	_, err = m.Execute(context.Background(), "echo-tool", types.ExecuteCommand{RequestID: "r-3", ToolInstanceID: 999})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExecuteCredentialFailure(t *testing.T) {
	creds := &fakeCredentials{err: errors.New("no active credential")}
	m := newManager(newFakeRuntime(), creds)
	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	_, err := m.Execute(context.Background(), "echo-tool", types.ExecuteCommand{
		RequestID: "r-1", ToolInstanceID: 7, Capability: "echo.send",
	})
	assert.ErrorIs(t, err, apperr.ErrCredential)
}

func TestExecuteTimeout(t *testing.T) {
	rt := newFakeRuntime()
	rt.execFn = func(_ ExecRequest) (*ExecResult, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, context.DeadlineExceeded
	}
	creds := &fakeCredentials{resp: &types.FetchCredentialResponse{Kind: "api_key", Secret: "k-123"}}
	m := NewManager(&ManagerConfig{
		Runtime:                rt,
		Credentials:            creds,
		ExecuteTimeout:         50 * time.Millisecond,
		CredentialFetchTimeout: time.Second,
	})
	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	_, err := m.Execute(context.Background(), "echo-tool", types.ExecuteCommand{
		RequestID: "r-1", ToolInstanceID: 7, Capability: "echo.send",
	})
	assert.ErrorIs(t, err, apperr.ErrTimeout)
}

func TestExecuteNonZeroExit(t *testing.T) {
	rt := newFakeRuntime()
	rt.execFn = func(_ ExecRequest) (*ExecResult, error) {
		return &ExecResult{Output: "boom", ExitCode: 2}, nil
	}
	creds := &fakeCredentials{resp: &types.FetchCredentialResponse{Kind: "api_key", Secret: "k-123"}}
	m := newManager(rt, creds)
	deployAndWait(t, m, types.ToolInstanceStatusRunning)

	_, err := m.Execute(context.Background(), "echo-tool", types.ExecuteCommand{
		RequestID: "r-1", ToolInstanceID: 7, Capability: "echo.send",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 2")
}

func TestCredentialEnvVar(t *testing.T) {
	assert.Equal(t, "TOOLBOX_SECRET_API_KEY", credentialEnvVar("api_key"))
	assert.Equal(t, "TOOLBOX_SECRET_OAUTH_TOKEN", credentialEnvVar("oauth-token"))
}

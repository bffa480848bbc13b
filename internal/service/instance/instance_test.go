package instance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/secretstore"
	"github.com/agentopia/toolbox/pkg/testhelpers"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeCommander records relayed commands and fails on demand.
type fakeCommander struct {
	mu sync.Mutex

	deploys []types.DeployCommand
	starts  []string
	stops   []string
	removes []string

	deployErr error
	removeErr error
}

func (f *fakeCommander) Deploy(_ context.Context, _ string, cmd types.DeployCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deployErr != nil {
		return f.deployErr
	}
	f.deploys = append(f.deploys, cmd)
	return nil
}

func (f *fakeCommander) Start(_ context.Context, _ string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, name)
	return nil
}

func (f *fakeCommander) Stop(_ context.Context, _ string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, name)
	return nil
}

func (f *fakeCommander) Remove(_ context.Context, _ string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removes = append(f.removes, name)
	return nil
}

func (f *fakeCommander) Execute(_ context.Context, _ string, _ string, cmd types.ExecuteCommand) (*types.ExecuteResult, error) {
	return &types.ExecuteResult{RequestID: cmd.RequestID, Output: "ok"}, nil
}

type fixture struct {
	db        *gorm.DB
	svc       *InstanceService
	commander *fakeCommander
	secrets   secretstore.Store
	host      model.HostEnvironment
	entry     model.ToolCatalogEntry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewTestDB(t)

	key, err := secretstore.GenerateKey()
	require.NoError(t, err)
	secrets, err := secretstore.NewLocalStore(db, key)
	require.NoError(t, err)

	commander := &fakeCommander{}
	svc := NewInstanceService(&ServiceConfig{DB: db, Commander: commander, Secrets: secrets})

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		Address: "10.0.0.1", Status: types.ToolboxStatusActive,
	}
	require.NoError(t, db.Create(&host).Error)

	entry, err := model.NewToolCatalogEntry(
		"echo",
		"ghcr.io/agentopia/echo-tool:latest",
		[]types.SecretSlot{{Kind: "api_key"}},
		[]types.Capability{{Name: "echo.send"}},
	)
	require.NoError(t, err)
	require.NoError(t, db.Create(entry).Error)

	return &fixture{db: db, svc: svc, commander: commander, secrets: secrets, host: host, entry: *entry}
}

func TestDeploy(t *testing.T) {
	f := newFixture(t)

	inst, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ToolInstanceStatusDeploying, inst.Status)

	require.Len(t, f.commander.deploys, 1)
	assert.Equal(t, inst.ID, f.commander.deploys[0].InstanceID)
	assert.Equal(t, "ghcr.io/agentopia/echo-tool:latest", f.commander.deploys[0].Image)
}

func TestDeployRequiresActiveToolbox(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Model(&f.host).Update("status", types.ToolboxStatusProvisioning).Error)

	_, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, f.commander.deploys)
}

func TestDeployDuplicateNameOnToolbox(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)

	_, err = f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeployRelayFailureMarksError(t *testing.T) {
	f := newFixture(t)
	f.commander.deployErr = errors.New("connection refused")

	_, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	assert.ErrorIs(t, err, apperr.ErrCommunication)

	var inst model.ToolInstance
	require.NoError(t, f.db.Where("name = ?", "echo-tool").First(&inst).Error)
	assert.Equal(t, types.ToolInstanceStatusError, inst.Status)
	assert.Contains(t, inst.StatusDetail, "connection refused")
}

func TestStartStopOptimisticStates(t *testing.T) {
	f := newFixture(t)

	inst, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Stop(context.Background(), inst.ID))
	got, err := f.svc.GetInstance(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolInstanceStatusPendingStop, got.Status)
	assert.Equal(t, []string{"echo-tool"}, f.commander.stops)

	require.NoError(t, f.svc.Start(context.Background(), inst.ID))
	got, err = f.svc.GetInstance(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolInstanceStatusPendingStart, got.Status)
	assert.Equal(t, []string{"echo-tool"}, f.commander.starts)
}

func TestApplyStatusReport(t *testing.T) {
	f := newFixture(t)

	inst, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)

	err = f.svc.ApplyStatusReport(f.host.ID, types.InstanceStatusReport{InstanceID: inst.ID, Status: "running"})
	require.NoError(t, err)

	got, err := f.svc.GetInstance(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolInstanceStatusRunning, got.Status)
	assert.NotNil(t, got.LastHeartbeatAt)
}

func TestApplyStatusReportForeignToolboxDenied(t *testing.T) {
	f := newFixture(t)

	inst, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.ToolInstance{}).Where("id = ?", inst.ID).
		Update("status", types.ToolInstanceStatusRunning).Error)

	other := model.HostEnvironment{
		Name: "box-2", Owner: "u2", BearerSecret: "bs-2",
		Address: "10.0.0.2", Status: types.ToolboxStatusActive,
	}
	require.NoError(t, f.db.Create(&other).Error)

	// A report from another toolbox must not touch the instance.
	err = f.svc.ApplyStatusReport(other.ID, types.InstanceStatusReport{InstanceID: inst.ID, Status: "error"})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	got, err := f.svc.GetInstance(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolInstanceStatusRunning, got.Status)
}

func TestApplyStatusReportUnknownInstanceIgnored(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ApplyStatusReport(f.host.ID, types.InstanceStatusReport{InstanceID: 9999, Status: "running"})
	assert.NoError(t, err)
}

func TestApplyStatusReportRejectsLifecycleStates(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ApplyStatusReport(f.host.ID, types.InstanceStatusReport{InstanceID: 1, Status: "pending_delete"})
	assert.Error(t, err)
}

func TestApplyStatusReportDeletionWins(t *testing.T) {
	f := newFixture(t)

	inst, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&model.ToolInstance{}).Where("id = ?", inst.ID).
		Update("status", types.ToolInstanceStatusPendingDelete).Error)

	// A straggler heartbeat still sees the container running. It must not
	// pull the instance back.
	err = f.svc.ApplyStatusReport(f.host.ID, types.InstanceStatusReport{InstanceID: inst.ID, Status: "running"})
	require.NoError(t, err)

	got, err := f.svc.GetInstance(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolInstanceStatusPendingDelete, got.Status)
}

func TestRemoveCascadesToolbeltItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inst, err := f.svc.Deploy(ctx, f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)

	ag := model.Agent{Name: "worker", Role: types.AgentRoleAgent, AccessToken: "tok-1"}
	require.NoError(t, f.db.Create(&ag).Error)
	item := model.ToolbeltItem{AgentID: ag.ID, ToolInstanceID: inst.ID, Active: true}
	require.NoError(t, f.db.Create(&item).Error)

	ref, err := f.secrets.Put(ctx, "k-123")
	require.NoError(t, err)
	cred := model.AgentToolCredential{
		ToolbeltItemID: item.ID, Kind: "api_key", SecretRef: ref,
		DisplayID: "****-123", Status: types.CredentialStatusActive,
	}
	require.NoError(t, f.db.Create(&cred).Error)
	perm := model.AgentToolCapabilityPermission{ToolbeltItemID: item.ID, Capability: "echo.send", Allowed: true}
	require.NoError(t, f.db.Create(&perm).Error)

	require.NoError(t, f.svc.Remove(ctx, inst.ID))

	assert.Equal(t, []string{"echo-tool"}, f.commander.removes)

	var count int64
	f.db.Model(&model.ToolInstance{}).Where("id = ?", inst.ID).Count(&count)
	assert.Zero(t, count)
	f.db.Model(&model.ToolbeltItem{}).Where("id = ?", item.ID).Count(&count)
	assert.Zero(t, count)
	f.db.Model(&model.AgentToolCredential{}).Where("id = ?", cred.ID).Count(&count)
	assert.Zero(t, count)
	f.db.Model(&model.AgentToolCapabilityPermission{}).Where("id = ?", perm.ID).Count(&count)
	assert.Zero(t, count)

	_, err = f.secrets.Get(ctx, ref)
	assert.ErrorIs(t, err, secretstore.ErrSecretNotFound)
}

func TestExecuteRequiresRunningInstance(t *testing.T) {
	f := newFixture(t)

	inst, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)

	// Still deploying.
	_, err = f.svc.Execute(context.Background(), inst, 1, "echo.send", nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, f.svc.ApplyStatusReport(f.host.ID, types.InstanceStatusReport{InstanceID: inst.ID, Status: "running"}))
	inst, err = f.svc.GetInstance(inst.ID)
	require.NoError(t, err)

	result, err := f.svc.Execute(context.Background(), inst, 1, "echo.send", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RequestID)
}

func TestRemoveRelayFailureLeavesDeleting(t *testing.T) {
	f := newFixture(t)
	f.commander.removeErr = errors.New("host unreachable")

	inst, err := f.svc.Deploy(context.Background(), f.host.ID, &types.DeployToolInstanceInput{
		CatalogID: f.entry.ID, Name: "echo-tool",
	})
	require.NoError(t, err)

	err = f.svc.Remove(context.Background(), inst.ID)
	assert.ErrorIs(t, err, apperr.ErrCommunication)

	got, err := f.svc.GetInstance(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolInstanceStatusDeleting, got.Status)
}

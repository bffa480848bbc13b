package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/agentopia/toolbox/internal/cloud"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/service/hostenv"
	"github.com/agentopia/toolbox/internal/service/instance"
	"github.com/agentopia/toolbox/pkg/testhelpers"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type nopCommander struct{}

func (nopCommander) Deploy(context.Context, string, types.DeployCommand) error { return nil }
func (nopCommander) Start(context.Context, string, string) error               { return nil }
func (nopCommander) Stop(context.Context, string, string) error                { return nil }
func (nopCommander) Remove(context.Context, string, string) error              { return nil }
func (nopCommander) Execute(context.Context, string, string, types.ExecuteCommand) (*types.ExecuteResult, error) {
	return &types.ExecuteResult{}, nil
}

func newReconciler(t *testing.T) (*Reconciler, *gorm.DB) {
	t.Helper()
	db := testhelpers.NewTestDB(t)

	instances := instance.NewInstanceService(&instance.ServiceConfig{DB: db, Commander: nopCommander{}})
	hosts := hostenv.NewHostEnvService(&hostenv.ServiceConfig{DB: db, Provisioner: cloud.NewFakeProvisioner(), Instances: instances})

	r := NewReconciler(&ServiceConfig{
		Hosts:         hosts,
		Instances:     instances,
		SweepInterval: 5 * time.Millisecond,
		StaleAfter:    time.Minute,
	})
	return r, db
}

func TestHandleHeartbeatFansOutInstanceReports(t *testing.T) {
	r, db := newReconciler(t)

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		Status: types.ToolboxStatusAwaitingHeartbeat,
	}
	require.NoError(t, db.Create(&host).Error)
	inst := model.ToolInstance{Name: "echo-tool", ToolboxID: host.ID, CatalogID: 1, Status: types.ToolInstanceStatusDeploying}
	require.NoError(t, db.Create(&inst).Error)

	got, err := r.HandleHeartbeat(context.Background(), "bs-1", &types.HeartbeatRequest{
		AgentVersion: "0.1.0",
		ToolInstances: []types.InstanceStatusReport{
			{InstanceID: inst.ID, Status: "running"},
			// Unknown ids and invalid statuses must not fail the heartbeat.
			{InstanceID: 9999, Status: "running"},
			{InstanceID: inst.ID, Status: "levitating"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusActive, got.Status)

	var updated model.ToolInstance
	require.NoError(t, db.First(&updated, inst.ID).Error)
	assert.Equal(t, types.ToolInstanceStatusRunning, updated.Status)
}

func TestHandleHeartbeatIgnoresForeignInstanceReports(t *testing.T) {
	r, db := newReconciler(t)

	reporter := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		Status: types.ToolboxStatusActive,
	}
	require.NoError(t, db.Create(&reporter).Error)
	other := model.HostEnvironment{
		Name: "box-2", Owner: "u2", BearerSecret: "bs-2",
		Status: types.ToolboxStatusActive,
	}
	require.NoError(t, db.Create(&other).Error)

	inst := model.ToolInstance{Name: "echo-tool", ToolboxID: other.ID, CatalogID: 1, Status: types.ToolInstanceStatusRunning}
	require.NoError(t, db.Create(&inst).Error)

	// box-1's agent claims box-2's instance has failed. The heartbeat itself
	// succeeds, but the foreign report must not land.
	_, err := r.HandleHeartbeat(context.Background(), "bs-1", &types.HeartbeatRequest{
		AgentVersion: "0.1.0",
		ToolInstances: []types.InstanceStatusReport{
			{InstanceID: inst.ID, Status: "error", Details: "container exited"},
		},
	})
	require.NoError(t, err)

	var got model.ToolInstance
	require.NoError(t, db.First(&got, inst.ID).Error)
	assert.Equal(t, types.ToolInstanceStatusRunning, got.Status)
	assert.Empty(t, got.StatusDetail)
}

func TestRunStalenessSweep(t *testing.T) {
	r, db := newReconciler(t)

	stale := time.Now().UTC().Add(-time.Hour)
	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		Status: types.ToolboxStatusActive, LastHeartbeatAt: &stale,
	}
	require.NoError(t, db.Create(&host).Error)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunStalenessSweep(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		var got model.HostEnvironment
		if err := db.First(&got, host.ID).Error; err != nil {
			return false
		}
		return got.Status == types.ToolboxStatusUnresponsive
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

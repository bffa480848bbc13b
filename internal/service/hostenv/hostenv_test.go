package hostenv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/cloud"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/secretstore"
	"github.com/agentopia/toolbox/internal/service/instance"
	"github.com/agentopia/toolbox/pkg/testhelpers"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T, p cloud.Provisioner) (*HostEnvService, *gorm.DB) {
	t.Helper()
	svc, db, _ := newServiceWithSecrets(t, p)
	return svc, db
}

func newServiceWithSecrets(t *testing.T, p cloud.Provisioner) (*HostEnvService, *gorm.DB, secretstore.Store) {
	t.Helper()
	db := testhelpers.NewTestDB(t)

	key, err := secretstore.GenerateKey()
	require.NoError(t, err)
	secrets, err := secretstore.NewLocalStore(db, key)
	require.NoError(t, err)
	instances := instance.NewInstanceService(&instance.ServiceConfig{DB: db, Secrets: secrets})

	svc := NewHostEnvService(&ServiceConfig{
		DB:                  db,
		Provisioner:         p,
		Instances:           instances,
		ControlPlaneURL:     "https://control.example.com",
		SystemKey:           "sk-test",
		AddressPollInterval: time.Millisecond,
		AddressPollTimeout:  time.Second,
	})
	return svc, db, secrets
}

// waitForStatus polls until the toolbox reaches one of the wanted statuses,
// since provisioning runs in a background goroutine.
func waitForStatus(t *testing.T, svc *HostEnvService, id uint, wanted ...types.ToolboxStatus) *model.HostEnvironment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		host, err := svc.GetToolbox(id)
		require.NoError(t, err)
		for _, w := range wanted {
			if host.Status == w {
				return host
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	host, _ := svc.GetToolbox(id)
	t.Fatalf("toolbox %d never reached %v, stuck at %s", id, wanted, host.Status)
	return nil
}

func TestProvisionReachesAwaitingHeartbeat(t *testing.T) {
	p := cloud.NewFakeProvisioner()
	p.PollsUntilAddress = 2
	svc, _ := newService(t, p)

	host, err := svc.Provision("u1", &types.ProvisionToolboxInput{Name: "box-1", Region: "nyc3", Size: "s-1vcpu-1gb"})
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusPendingProvision, host.Status)
	assert.NotEmpty(t, host.BearerSecret)

	got := waitForStatus(t, svc, host.ID, types.ToolboxStatusAwaitingHeartbeat)
	assert.NotEmpty(t, got.Address)
	assert.NotEmpty(t, got.ProviderInstanceID)
	// The bearer secret generated at creation survives provisioning untouched.
	assert.Equal(t, host.BearerSecret, got.BearerSecret)
}

func TestProvisionKeepsEarlyHeartbeatActive(t *testing.T) {
	p := cloud.NewFakeProvisioner()
	p.PollsUntilAddress = 200
	svc, _ := newService(t, p)

	host, err := svc.Provision("u1", &types.ProvisionToolboxInput{Name: "box-1", Region: "nyc3", Size: "s-1vcpu-1gb"})
	require.NoError(t, err)

	// The host agent calls home while the poller is still waiting for the
	// provider to assign an address.
	waitForStatus(t, svc, host.ID, types.ToolboxStatusProvisioning)
	_, err = svc.ReceiveHeartbeat(host.BearerSecret, &types.HeartbeatRequest{AgentVersion: "0.1.0"})
	require.NoError(t, err)

	// Once the address lands, the toolbox must still be active with its
	// heartbeat intact, not regressed to awaiting_heartbeat.
	require.Eventually(t, func() bool {
		got, err := svc.GetToolbox(host.ID)
		require.NoError(t, err)
		return got.Address != ""
	}, 2*time.Second, 5*time.Millisecond)

	got, err := svc.GetToolbox(host.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusActive, got.Status)
	assert.NotNil(t, got.LastHeartbeatAt)
	assert.Equal(t, "0.1.0", got.AgentVersion)
	assert.NotEmpty(t, got.ProviderInstanceID)
}

func TestProvisionCreateFailure(t *testing.T) {
	p := cloud.NewFakeProvisioner()
	p.CreateErr = errors.New("quota exceeded")
	svc, _ := newService(t, p)

	host, err := svc.Provision("u1", &types.ProvisionToolboxInput{Name: "box-1", Region: "nyc3", Size: "s-1vcpu-1gb"})
	require.NoError(t, err)

	got := waitForStatus(t, svc, host.ID, types.ToolboxStatusErrorProvisioning)
	assert.Contains(t, got.StatusDetail, "quota exceeded")
}

func TestProvisionRejectsInvalidInput(t *testing.T) {
	svc, _ := newService(t, cloud.NewFakeProvisioner())

	_, err := svc.Provision("u1", &types.ProvisionToolboxInput{Name: ""})
	assert.Error(t, err)
}

func TestHeartbeatTransitions(t *testing.T) {
	svc, db := newService(t, cloud.NewFakeProvisioner())

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		Status: types.ToolboxStatusAwaitingHeartbeat,
	}
	require.NoError(t, db.Create(&host).Error)

	req := &types.HeartbeatRequest{AgentVersion: "0.1.0", HostHealth: types.HostHealth{UptimeSeconds: 30}}

	got, err := svc.ReceiveHeartbeat("bs-1", req)
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusActive, got.Status)
	assert.NotNil(t, got.LastHeartbeatAt)
	assert.Equal(t, "0.1.0", got.AgentVersion)

	// Steady state: a second heartbeat stays active.
	got, err = svc.ReceiveHeartbeat("bs-1", req)
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusActive, got.Status)
}

func TestHeartbeatRecoversUnresponsiveToolbox(t *testing.T) {
	svc, db := newService(t, cloud.NewFakeProvisioner())

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		Status: types.ToolboxStatusUnresponsive,
	}
	require.NoError(t, db.Create(&host).Error)

	got, err := svc.ReceiveHeartbeat("bs-1", &types.HeartbeatRequest{AgentVersion: "0.1.0"})
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusActive, got.Status)
}

func TestHeartbeatIgnoredOutsideActiveLifecycle(t *testing.T) {
	svc, db := newService(t, cloud.NewFakeProvisioner())

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		Status: types.ToolboxStatusDeprovisioning,
	}
	require.NoError(t, db.Create(&host).Error)

	got, err := svc.ReceiveHeartbeat("bs-1", &types.HeartbeatRequest{AgentVersion: "0.1.0"})
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusDeprovisioning, got.Status)
	assert.Nil(t, got.LastHeartbeatAt)
}

func TestHeartbeatUnknownSecretDenied(t *testing.T) {
	svc, _ := newService(t, cloud.NewFakeProvisioner())

	_, err := svc.ReceiveHeartbeat("nope", &types.HeartbeatRequest{})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	_, err = svc.ReceiveHeartbeat("", &types.HeartbeatRequest{})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestMarkUnresponsiveToolboxes(t *testing.T) {
	svc, db := newService(t, cloud.NewFakeProvisioner())

	stale := time.Now().UTC().Add(-10 * time.Minute)
	fresh := time.Now().UTC()
	hosts := []model.HostEnvironment{
		{Name: "stale", Owner: "u1", BearerSecret: "bs-1", Status: types.ToolboxStatusActive, LastHeartbeatAt: &stale},
		{Name: "fresh", Owner: "u1", BearerSecret: "bs-2", Status: types.ToolboxStatusActive, LastHeartbeatAt: &fresh},
		{Name: "never", Owner: "u1", BearerSecret: "bs-3", Status: types.ToolboxStatusActive},
		{Name: "provisioning", Owner: "u1", BearerSecret: "bs-4", Status: types.ToolboxStatusProvisioning},
	}
	for i := range hosts {
		require.NoError(t, db.Create(&hosts[i]).Error)
	}

	flipped, err := svc.MarkUnresponsiveToolboxes(5 * time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, flipped)

	got, err := svc.GetToolbox(hosts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusUnresponsive, got.Status)

	got, err = svc.GetToolbox(hosts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusActive, got.Status)

	// Only active toolboxes are swept.
	got, err = svc.GetToolbox(hosts[3].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ToolboxStatusProvisioning, got.Status)
}

func TestDeprovision(t *testing.T) {
	p := cloud.NewFakeProvisioner()
	svc, db := newService(t, p)

	created, err := p.CreateHost(context.Background(), cloud.HostRequest{Name: "box-1"})
	require.NoError(t, err)

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		ProviderInstanceID: created.ProviderID,
		Address:            "10.0.0.1",
		Status:             types.ToolboxStatusActive,
	}
	require.NoError(t, db.Create(&host).Error)
	inst := model.ToolInstance{Name: "echo-tool", ToolboxID: host.ID, CatalogID: 1, Status: types.ToolInstanceStatusRunning}
	require.NoError(t, db.Create(&inst).Error)

	require.NoError(t, svc.Deprovision(context.Background(), host.ID))

	// The record is retired and its bearer secret can never authenticate again.
	_, err = svc.GetToolbox(host.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.GetToolboxByBearerSecret("bs-1")
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	var gone model.HostEnvironment
	require.NoError(t, db.Unscoped().First(&gone, host.ID).Error)
	assert.Equal(t, types.ToolboxStatusDeprovisioned, gone.Status)
	assert.Empty(t, gone.Address)

	var instances int64
	db.Model(&model.ToolInstance{}).Where("toolbox_id = ?", host.ID).Count(&instances)
	assert.Zero(t, instances)
}

func TestDeprovisionCascadesToolbeltItems(t *testing.T) {
	p := cloud.NewFakeProvisioner()
	svc, db, secrets := newServiceWithSecrets(t, p)
	ctx := context.Background()

	created, err := p.CreateHost(ctx, cloud.HostRequest{Name: "box-1"})
	require.NoError(t, err)

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		ProviderInstanceID: created.ProviderID,
		Address:            "10.0.0.1",
		Status:             types.ToolboxStatusActive,
	}
	require.NoError(t, db.Create(&host).Error)
	inst := model.ToolInstance{Name: "echo-tool", ToolboxID: host.ID, CatalogID: 1, Status: types.ToolInstanceStatusRunning}
	require.NoError(t, db.Create(&inst).Error)

	ag := model.Agent{Name: "worker", Role: types.AgentRoleAgent, AccessToken: "tok-1"}
	require.NoError(t, db.Create(&ag).Error)
	item := model.ToolbeltItem{AgentID: ag.ID, ToolInstanceID: inst.ID, Active: true}
	require.NoError(t, db.Create(&item).Error)

	ref, err := secrets.Put(ctx, "k-123")
	require.NoError(t, err)
	cred := model.AgentToolCredential{
		ToolbeltItemID: item.ID, Kind: "api_key", SecretRef: ref,
		DisplayID: "****-123", Status: types.CredentialStatusActive,
	}
	require.NoError(t, db.Create(&cred).Error)

	require.NoError(t, svc.Deprovision(ctx, host.ID))

	// Nothing recorded against the host's instances survives: the item, the
	// credential and its secret store row all go with the toolbox.
	var count int64
	db.Model(&model.ToolbeltItem{}).Where("id = ?", item.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&model.AgentToolCredential{}).Where("id = ?", cred.ID).Count(&count)
	assert.Zero(t, count)

	_, err = secrets.Get(ctx, ref)
	assert.ErrorIs(t, err, secretstore.ErrSecretNotFound)
}

func TestDeprovisionToleratesMissingHost(t *testing.T) {
	svc, db := newService(t, cloud.NewFakeProvisioner())

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		ProviderInstanceID: "already-gone",
		Status:             types.ToolboxStatusActive,
	}
	require.NoError(t, db.Create(&host).Error)

	assert.NoError(t, svc.Deprovision(context.Background(), host.ID))
}

func TestDeprovisionAdapterFailure(t *testing.T) {
	p := cloud.NewFakeProvisioner()
	p.DeleteErr = errors.New("provider outage")
	svc, db := newService(t, p)

	host := model.HostEnvironment{
		Name: "box-1", Owner: "u1", BearerSecret: "bs-1",
		ProviderInstanceID: "fake-1",
		Status:             types.ToolboxStatusActive,
	}
	require.NoError(t, db.Create(&host).Error)

	err := svc.Deprovision(context.Background(), host.ID)
	assert.ErrorIs(t, err, apperr.ErrProvisioning)

	got, getErr := svc.GetToolbox(host.ID)
	require.NoError(t, getErr)
	assert.Equal(t, types.ToolboxStatusErrorDeprovisioning, got.Status)
	// The bearer secret is not revoked until the host is confirmed released.
	assert.Equal(t, "bs-1", got.BearerSecret)
}

func TestBuildUserData(t *testing.T) {
	data := buildUserData("https://control.example.com", "bs-1", "sk-test")
	assert.Contains(t, data, "#cloud-config")
	assert.Contains(t, data, "control_plane_url: \"https://control.example.com\"")
	assert.Contains(t, data, "bearer_secret: \"bs-1\"")
	assert.Contains(t, data, "system_key: \"sk-test\"")
}

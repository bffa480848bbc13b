package broker

import (
	"context"
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

type fixture struct {
	db      *gorm.DB
	svc     *BrokerService
	secrets secretstore.Store

	agent model.Agent
	host  model.HostEnvironment
	other model.HostEnvironment
	inst  model.ToolInstance
	item  model.ToolbeltItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewTestDB(t)

	key, err := secretstore.GenerateKey()
	require.NoError(t, err)
	secrets, err := secretstore.NewLocalStore(db, key)
	require.NoError(t, err)

	svc := NewBrokerService(&ServiceConfig{DB: db, Secrets: secrets})

	agent := model.Agent{Name: "worker", Role: types.AgentRoleAgent, AccessToken: "tok-1"}
	require.NoError(t, db.Create(&agent).Error)

	host := model.HostEnvironment{Name: "box-1", Owner: "u1", BearerSecret: "bs-1", Status: types.ToolboxStatusActive}
	require.NoError(t, db.Create(&host).Error)
	other := model.HostEnvironment{Name: "box-2", Owner: "u1", BearerSecret: "bs-2", Status: types.ToolboxStatusActive}
	require.NoError(t, db.Create(&other).Error)

	entry, err := model.NewToolCatalogEntry(
		"echo",
		"ghcr.io/agentopia/echo-tool:latest",
		[]types.SecretSlot{{Kind: "api_key"}},
		[]types.Capability{{Name: "echo.send"}},
	)
	require.NoError(t, err)
	require.NoError(t, db.Create(entry).Error)

	inst := model.ToolInstance{Name: "echo-tool", ToolboxID: host.ID, CatalogID: entry.ID, Status: types.ToolInstanceStatusRunning}
	require.NoError(t, db.Create(&inst).Error)

	item := model.ToolbeltItem{AgentID: agent.ID, ToolInstanceID: inst.ID, Active: true}
	require.NoError(t, db.Create(&item).Error)

	return &fixture{db: db, svc: svc, secrets: secrets, agent: agent, host: host, other: other, inst: inst, item: item}
}

func (f *fixture) storeCredential(t *testing.T, secret string, status types.CredentialStatus) model.AgentToolCredential {
	t.Helper()
	ref, err := f.secrets.Put(context.Background(), secret)
	require.NoError(t, err)
	cred := model.AgentToolCredential{
		ToolbeltItemID: f.item.ID, Kind: "api_key", SecretRef: ref,
		DisplayID: "****-123", Status: status,
	}
	require.NoError(t, f.db.Create(&cred).Error)
	return cred
}

func TestFetchCredential(t *testing.T) {
	f := newFixture(t)
	f.storeCredential(t, "k-123", types.CredentialStatusActive)

	resp, err := f.svc.FetchCredential(context.Background(), &f.host, &types.FetchCredentialRequest{
		AgentID: f.agent.ID, ToolInstanceID: f.inst.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "api_key", resp.Kind)
	assert.Equal(t, "k-123", resp.Secret)

	// Every allowed fetch leaves exactly one audit row, with no secret in it.
	var entries []model.CredentialAuditEntry
	require.NoError(t, f.db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].RequestID)
	assert.Equal(t, f.host.ID, entries[0].ToolboxID)
	assert.Equal(t, f.agent.ID, entries[0].AgentID)
	assert.Equal(t, f.inst.ID, entries[0].ToolInstanceID)
	assert.Equal(t, "api_key", entries[0].Kind)
}

func TestFetchCredentialForeignInstanceDenied(t *testing.T) {
	f := newFixture(t)
	f.storeCredential(t, "k-123", types.CredentialStatusActive)

	// A host agent can only ask about instances on its own toolbox.
	_, err := f.svc.FetchCredential(context.Background(), &f.other, &types.FetchCredentialRequest{
		AgentID: f.agent.ID, ToolInstanceID: f.inst.ID,
	})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	var audits int64
	f.db.Model(&model.CredentialAuditEntry{}).Count(&audits)
	assert.Zero(t, audits)
}

func TestFetchCredentialUnknownInstanceDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FetchCredential(context.Background(), &f.host, &types.FetchCredentialRequest{
		AgentID: f.agent.ID, ToolInstanceID: 9999,
	})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestFetchCredentialInactiveItemDenied(t *testing.T) {
	f := newFixture(t)
	f.storeCredential(t, "k-123", types.CredentialStatusActive)

	require.NoError(t, f.db.Model(&model.ToolbeltItem{}).
		Where("id = ?", f.item.ID).Update("active", false).Error)

	_, err := f.svc.FetchCredential(context.Background(), &f.host, &types.FetchCredentialRequest{
		AgentID: f.agent.ID, ToolInstanceID: f.inst.ID,
	})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestFetchCredentialRevokedCredential(t *testing.T) {
	f := newFixture(t)
	f.storeCredential(t, "k-123", types.CredentialStatusRevoked)

	_, err := f.svc.FetchCredential(context.Background(), &f.host, &types.FetchCredentialRequest{
		AgentID: f.agent.ID, ToolInstanceID: f.inst.ID,
	})
	assert.ErrorIs(t, err, apperr.ErrCredential)
}

func TestListAuditEntries(t *testing.T) {
	f := newFixture(t)
	f.storeCredential(t, "k-123", types.CredentialStatusActive)

	for range 3 {
		_, err := f.svc.FetchCredential(context.Background(), &f.host, &types.FetchCredentialRequest{
			AgentID: f.agent.ID, ToolInstanceID: f.inst.ID,
		})
		require.NoError(t, err)
	}

	entries, err := f.svc.ListAuditEntries(f.host.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = f.svc.ListAuditEntries(f.other.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

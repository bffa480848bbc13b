package agent

import (
	"testing"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/pkg/testhelpers"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAdminAgent(t *testing.T) {
	s := NewAgentService(testhelpers.NewTestDB(t))

	admin, err := s.CreateAdminAgent()
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Name)
	assert.Equal(t, types.AgentRoleAdmin, admin.Role)
	assert.NotEmpty(t, admin.AccessToken)
}

func TestCreateAgentAndAuthenticate(t *testing.T) {
	s := NewAgentService(testhelpers.NewTestDB(t))

	ag, err := s.CreateAgent("worker")
	require.NoError(t, err)
	assert.Equal(t, types.AgentRoleAgent, ag.Role)

	got, err := s.GetAgentByAccessToken(ag.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, ag.ID, got.ID)

	_, err = s.GetAgentByAccessToken("bogus")
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	_, err = s.GetAgentByAccessToken("")
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestCreateAgentDuplicateName(t *testing.T) {
	s := NewAgentService(testhelpers.NewTestDB(t))

	_, err := s.CreateAgent("worker")
	require.NoError(t, err)

	_, err = s.CreateAgent("worker")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateAgentRejectsInvalidName(t *testing.T) {
	s := NewAgentService(testhelpers.NewTestDB(t))

	_, err := s.CreateAgent("bad name!")
	assert.Error(t, err)
}

func TestDeleteAgent(t *testing.T) {
	s := NewAgentService(testhelpers.NewTestDB(t))

	admin, err := s.CreateAdminAgent()
	require.NoError(t, err)
	_, err = s.CreateAgent("worker")
	require.NoError(t, err)

	require.NoError(t, s.DeleteAgent("worker"))
	_, err = s.GetAgentByName("worker")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = s.DeleteAgent(admin.Name)
	assert.Error(t, err)
}

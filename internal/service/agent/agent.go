// Package agent provides management of agent principals: the identities that
// authenticate to the control plane and own toolbelts.
package agent

import (
	"errors"
	"fmt"

	"github.com/agentopia/toolbox/internal"
	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"gorm.io/gorm"
)

// AgentService provides methods to manage agent principals.
type AgentService struct {
	db *gorm.DB
}

func NewAgentService(db *gorm.DB) *AgentService {
	return &AgentService{db: db}
}

// CreateAdminAgent creates the initial admin principal. The access token is
// returned exactly once, at creation.
func (a *AgentService) CreateAdminAgent() (*model.Agent, error) {
	token, err := internal.GenerateAccessToken()
	if err != nil {
		return nil, err
	}
	admin := model.Agent{
		Name:        "admin",
		Role:        types.AgentRoleAdmin,
		AccessToken: token,
	}
	if err := a.db.Create(&admin).Error; err != nil {
		return nil, fmt.Errorf("failed to create admin agent: %w", err)
	}
	return &admin, nil
}

// CreateAgent creates a new standard agent principal with a freshly generated
// access token.
func (a *AgentService) CreateAgent(name string) (*model.Agent, error) {
	if err := types.ValidateEntityName(name); err != nil {
		return nil, err
	}

	token, err := internal.GenerateAccessToken()
	if err != nil {
		return nil, err
	}
	ag := model.Agent{
		Name:        name,
		Role:        types.AgentRoleAgent,
		AccessToken: token,
	}
	if err := a.db.Create(&ag).Error; err != nil {
		return nil, fmt.Errorf("failed to create agent %s: %w", name, apperr.ErrConflict)
	}
	return &ag, nil
}

// GetAgentByAccessToken returns the agent associated with the provided access
// token.
func (a *AgentService) GetAgentByAccessToken(token string) (*model.Agent, error) {
	if token == "" {
		return nil, apperr.ErrAuthorization
	}
	var ag model.Agent
	if err := a.db.Where("access_token = ?", token).First(&ag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrAuthorization
		}
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return &ag, nil
}

// GetAgentByName returns the agent with the given name.
func (a *AgentService) GetAgentByName(name string) (*model.Agent, error) {
	var ag model.Agent
	if err := a.db.Where("name = ?", name).First(&ag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agent %s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find agent %s: %w", name, err)
	}
	return &ag, nil
}

// ListAgents retrieves all agent principals.
func (a *AgentService) ListAgents() ([]model.Agent, error) {
	var agents []model.Agent
	if err := a.db.Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes a standard agent principal. Admin principals cannot be
// deleted.
func (a *AgentService) DeleteAgent(name string) error {
	ag, err := a.GetAgentByName(name)
	if err != nil {
		return err
	}
	if ag.Role == types.AgentRoleAdmin {
		return fmt.Errorf("cannot delete an admin agent")
	}
	if err := a.db.Unscoped().Delete(&model.Agent{}, ag.ID).Error; err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", name, err)
	}
	return nil
}

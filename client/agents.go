package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentopia/toolbox/pkg/types"
)

// CreateAgent registers a new agent principal with the control plane.
// The returned access token is shown exactly once and cannot be retrieved later.
func (c *Client) CreateAgent(name string) (*types.CreateAgentResponse, error) {
	u, _ := c.constructAPIEndpoint("/agents")

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var created types.CreateAgentResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &created, nil
}

// ListAgents lists all agent principals known to the control plane.
func (c *Client) ListAgents() ([]*types.Agent, error) {
	u, _ := c.constructAPIEndpoint("/agents")

	req, err := c.newRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var agents []*types.Agent
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes an agent principal by name.
func (c *Client) DeleteAgent(name string) error {
	u, _ := c.constructAPIEndpoint("/agents/" + name)

	req, err := c.newRequest(http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// WhoAmI returns the agent principal associated with the client's access token.
func (c *Client) WhoAmI() (*types.Agent, error) {
	u, _ := c.constructAPIEndpoint("/agents/whoami")

	req, err := c.newRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var ag types.Agent
	if err := json.NewDecoder(resp.Body).Decode(&ag); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &ag, nil
}

// GrantToolboxAccess grants an agent access to a Toolbox.
func (c *Client) GrantToolboxAccess(agentName string, toolboxID uint) (*types.ToolboxAccessGrant, error) {
	u, _ := c.constructAPIEndpoint("/agents/" + agentName + "/grants")

	body, err := json.Marshal(&types.GrantToolboxAccessInput{ToolboxID: toolboxID})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var grant types.ToolboxAccessGrant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &grant, nil
}

// RevokeToolboxAccess revokes an agent's access to a Toolbox.
// This also deactivates the agent's toolbelt items on that host.
func (c *Client) RevokeToolboxAccess(agentName string, toolboxID uint) error {
	u, _ := c.constructAPIEndpoint(
		"/agents/" + agentName + "/grants/" + strconv.FormatUint(uint64(toolboxID), 10),
	)

	req, err := c.newRequest(http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}
	return nil
}

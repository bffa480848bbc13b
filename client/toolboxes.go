package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentopia/toolbox/pkg/types"
)

func toolboxPath(id uint) string {
	return "/toolboxes/" + strconv.FormatUint(uint64(id), 10)
}

// ProvisionToolbox asks the control plane to provision a new compute host.
// Provisioning is asynchronous: poll GetToolbox for progress.
func (c *Client) ProvisionToolbox(input *types.ProvisionToolboxInput) (*types.ProvisionToolboxResponse, error) {
	u, _ := c.constructAPIEndpoint("/toolboxes")

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provisioning request: %w", err)
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

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var accepted types.ProvisionToolboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &accepted, nil
}

// ListToolboxes lists all Toolboxes known to the control plane.
func (c *Client) ListToolboxes() ([]*types.Toolbox, error) {
	u, _ := c.constructAPIEndpoint("/toolboxes")

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

	var toolboxes []*types.Toolbox
	if err := json.NewDecoder(resp.Body).Decode(&toolboxes); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return toolboxes, nil
}

// GetToolbox returns a single Toolbox by id.
func (c *Client) GetToolbox(id uint) (*types.Toolbox, error) {
	u, _ := c.constructAPIEndpoint(toolboxPath(id))

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

	var toolbox types.Toolbox
	if err := json.NewDecoder(resp.Body).Decode(&toolbox); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &toolbox, nil
}

// DeprovisionToolbox retires a Toolbox and destroys its cloud resources.
func (c *Client) DeprovisionToolbox(id uint) error {
	u, _ := c.constructAPIEndpoint(toolboxPath(id))

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

// ListAuditEntries lists the credential fetch audit trail of a Toolbox,
// newest first.
func (c *Client) ListAuditEntries(toolboxID uint) ([]*types.CredentialAuditEntry, error) {
	u, _ := c.constructAPIEndpoint(toolboxPath(toolboxID) + "/audit")

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

	var entries []*types.CredentialAuditEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return entries, nil
}

// DeployToolInstance deploys a catalog entry onto a Toolbox.
func (c *Client) DeployToolInstance(toolboxID uint, input *types.DeployToolInstanceInput) (*types.ToolInstance, error) {
	u, _ := c.constructAPIEndpoint(toolboxPath(toolboxID) + "/tools")

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deploy request: %w", err)
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

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var inst types.ToolInstance
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &inst, nil
}

// ListToolInstances lists the tool instances deployed on a Toolbox.
func (c *Client) ListToolInstances(toolboxID uint) ([]*types.ToolInstance, error) {
	u, _ := c.constructAPIEndpoint(toolboxPath(toolboxID) + "/tools")

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

	var instances []*types.ToolInstance
	if err := json.NewDecoder(resp.Body).Decode(&instances); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return instances, nil
}

// StartToolInstance starts a stopped tool instance.
func (c *Client) StartToolInstance(id uint) error {
	return c.toolInstanceAction(id, "start")
}

// StopToolInstance stops a running tool instance.
func (c *Client) StopToolInstance(id uint) error {
	return c.toolInstanceAction(id, "stop")
}

func (c *Client) toolInstanceAction(id uint, action string) error {
	u, _ := c.constructAPIEndpoint(
		"/tools/" + strconv.FormatUint(uint64(id), 10) + "/" + action,
	)

	req, err := c.newRequest(http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// RemoveToolInstance removes a tool instance from its Toolbox.
func (c *Client) RemoveToolInstance(id uint) error {
	u, _ := c.constructAPIEndpoint("/tools/" + strconv.FormatUint(uint64(id), 10))

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

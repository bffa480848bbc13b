package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentopia/toolbox/pkg/types"
)

func toolbeltItemPath(id uint) string {
	return "/toolbelt/" + strconv.FormatUint(uint64(id), 10)
}

// ListToolbelt lists the calling agent's toolbelt items.
func (c *Client) ListToolbelt() ([]*types.ToolbeltItem, error) {
	u, _ := c.constructAPIEndpoint("/toolbelt")

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

	var items []*types.ToolbeltItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return items, nil
}

// AddToBelt adds a tool instance to the calling agent's toolbelt.
// The agent must hold an access grant for the instance's Toolbox.
func (c *Client) AddToBelt(toolInstanceID uint) (*types.ToolbeltItem, error) {
	u, _ := c.constructAPIEndpoint("/toolbelt")

	body, err := json.Marshal(&types.AddToolbeltItemInput{ToolInstanceID: toolInstanceID})
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

	var item types.ToolbeltItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &item, nil
}

// RemoveFromBelt removes a toolbelt item and destroys its stored credentials.
func (c *Client) RemoveFromBelt(itemID uint) error {
	u, _ := c.constructAPIEndpoint(toolbeltItemPath(itemID))

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

// SetCredential binds a secret to a toolbelt item. The secret travels only in
// this request; the response carries a masked display id, never the secret.
func (c *Client) SetCredential(itemID uint, input *types.SetCredentialInput) (*types.SetCredentialResponse, error) {
	u, _ := c.constructAPIEndpoint(toolbeltItemPath(itemID) + "/credential")

	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var cred types.SetCredentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &cred, nil
}

// SetCapabilityPermission enables or disables one capability of a toolbelt item.
func (c *Client) SetCapabilityPermission(itemID uint, input *types.SetCapabilityPermissionInput) error {
	u, _ := c.constructAPIEndpoint(toolbeltItemPath(itemID) + "/permissions")

	body, err := json.Marshal(input)
	if err != nil {
		return err
	}

	req, err := c.newRequest(http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// ExecuteTool executes a capability of a toolbelt item and returns its output.
func (c *Client) ExecuteTool(itemID uint, input *types.ExecuteToolInput) (*types.ExecuteToolResponse, error) {
	u, _ := c.constructAPIEndpoint(toolbeltItemPath(itemID) + "/execute")

	body, err := json.Marshal(input)
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

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result types.ExecuteToolResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

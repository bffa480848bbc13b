package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentopia/toolbox/pkg/types"
)

// CreateCatalogEntry registers a new tool template in the catalog.
func (c *Client) CreateCatalogEntry(input *types.CreateCatalogEntryInput) (*types.ToolCatalogEntry, error) {
	u, _ := c.constructAPIEndpoint("/catalog")

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog entry: %w", err)
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

	var entry types.ToolCatalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &entry, nil
}

// ListCatalog lists all tool templates in the catalog.
func (c *Client) ListCatalog() ([]*types.ToolCatalogEntry, error) {
	u, _ := c.constructAPIEndpoint("/catalog")

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

	var entries []*types.ToolCatalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return entries, nil
}

// GetCatalogEntry returns the catalog entry with the given name.
func (c *Client) GetCatalogEntry(name string) (*types.ToolCatalogEntry, error) {
	entries, err := c.ListCatalog()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("catalog entry '%s' not found", name)
}

// SetCatalogEntryEnabled enables or disables a catalog entry.
// Disabling an entry blocks new deployments but leaves running instances alone.
func (c *Client) SetCatalogEntryEnabled(name string, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	u, _ := c.constructAPIEndpoint("/catalog/" + name + "/" + action)

	req, err := c.newRequest(http.MethodPost, u, nil)
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

// DeleteCatalogEntry removes a tool template from the catalog.
func (c *Client) DeleteCatalogEntry(name string) error {
	u, _ := c.constructAPIEndpoint("/catalog/" + name)

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

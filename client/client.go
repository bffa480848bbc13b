// Package client provides a Go client for the Toolbox control plane API.
// It is used by the CLI and can be embedded in other Go programs.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/agentopia/toolbox/internal/api"
)

// Client communicates with the Toolbox control plane API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a new control plane API client.
// If httpClient is nil, http.DefaultClient is used.
func NewClient(baseURL, accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  httpClient,
	}
}

// constructAPIEndpoint returns the full URL for the given API path.
func (c *Client) constructAPIEndpoint(subPath string) (string, error) {
	u, err := url.JoinPath(c.baseURL, api.V0ApiPathPrefix, subPath)
	if err != nil {
		return "", fmt.Errorf("failed to construct API endpoint for %s: %w", subPath, err)
	}
	return u, nil
}

// newRequest creates a new HTTP request with the access token attached, if
// the client has one.
func (c *Client) newRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return req, nil
}

// parseErrorResponse reads an error response from the control plane and
// converts it into a Go error.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, body.Error)
}

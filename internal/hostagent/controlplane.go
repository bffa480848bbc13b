package hostagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentopia/toolbox/pkg/types"
)

// ControlPlaneClient is the host agent's upstream client: heartbeats out,
// credentials in. Every request carries the per-host bearer secret.
type ControlPlaneClient struct {
	baseURL      string
	bearerSecret string
	httpClient   *http.Client
}

func NewControlPlaneClient(baseURL, bearerSecret string) *ControlPlaneClient {
	return &ControlPlaneClient{
		baseURL:      baseURL,
		bearerSecret: bearerSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Heartbeat reports the host's health and per-instance statuses.
func (c *ControlPlaneClient) Heartbeat(ctx context.Context, req *types.HeartbeatRequest) error {
	return c.post(ctx, "/hostagent/heartbeat", req, nil)
}

// FetchCredential resolves the calling agent's secret for one execution. The
// returned secret is held in memory only and discarded after the execution.
func (c *ControlPlaneClient) FetchCredential(ctx context.Context, req *types.FetchCredentialRequest) (*types.FetchCredentialResponse, error) {
	var resp types.FetchCredentialResponse
	if err := c.post(ctx, "/hostagent/fetch-credential", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ControlPlaneClient) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", u, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("control plane returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("control plane returned unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", u, err)
		}
	}
	return nil
}

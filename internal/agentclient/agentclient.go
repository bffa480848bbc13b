// Package agentclient is the control plane's HTTP client for host agents.
// It implements the command relay: every lifecycle and execution command a
// registry issues travels through here to the agent on the target Toolbox.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentopia/toolbox/pkg/types"
	"github.com/cenkalti/backoff/v4"
)

// DefaultAgentPort is the port host agents listen on.
const DefaultAgentPort = 8484

const defaultRequestTimeout = 30 * time.Second

// Client relays commands to host agents. It satisfies the registries'
// HostCommander interface.
type Client struct {
	httpClient *http.Client

	// systemKey authenticates the control plane to every host agent.
	systemKey string

	agentPort int

	// maxRetries bounds the retry loop for idempotent commands.
	maxRetries uint64
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	SystemKey  string
	AgentPort  int
	Timeout    time.Duration
	MaxRetries uint64
}

func NewClient(opts Options) *Client {
	port := opts.AgentPort
	if port == 0 {
		port = DefaultAgentPort
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		systemKey:  opts.SystemKey,
		agentPort:  port,
		maxRetries: retries,
	}
}

// Deploy instructs the agent to pull the image and create the container.
func (c *Client) Deploy(ctx context.Context, address string, cmd types.DeployCommand) error {
	return c.doRetry(ctx, http.MethodPost, address, "/tools", cmd, http.StatusAccepted, nil)
}

// Start starts a stopped tool container.
func (c *Client) Start(ctx context.Context, address string, name string) error {
	return c.doRetry(ctx, http.MethodPost, address, "/tools/"+name+"/start", nil, http.StatusOK, nil)
}

// Stop stops a running tool container.
func (c *Client) Stop(ctx context.Context, address string, name string) error {
	return c.doRetry(ctx, http.MethodPost, address, "/tools/"+name+"/stop", nil, http.StatusOK, nil)
}

// Remove stops and removes a tool container. Removing a container the agent
// no longer knows about succeeds.
func (c *Client) Remove(ctx context.Context, address string, name string) error {
	return c.doRetry(ctx, http.MethodDelete, address, "/tools/"+name, nil, http.StatusNoContent, nil)
}

// Execute runs a capability inside a tool container. Executions are not
// idempotent, so there is exactly one attempt.
func (c *Client) Execute(ctx context.Context, address string, name string, cmd types.ExecuteCommand) (*types.ExecuteResult, error) {
	var result types.ExecuteResult
	if err := c.do(ctx, http.MethodPost, address, "/tools/"+name+"/execute", cmd, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches the agent's view of itself and its managed containers.
func (c *Client) Status(ctx context.Context, address string) (*types.AgentStatusResponse, error) {
	var status types.AgentStatusResponse
	if err := c.do(ctx, http.MethodGet, address, "/status", nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// doRetry wraps do with bounded exponential backoff for idempotent commands.
// Client-side errors are permanent; only transport failures and agent-side
// errors are retried.
func (c *Client) doRetry(ctx context.Context, method, address, path string, body any, wantStatus int, out any) error {
	op := func() error {
		return c.do(ctx, method, address, path, body, wantStatus, out)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

func (c *Client) do(ctx context.Context, method, address, path string, body any, wantStatus int, out any) error {
	u := c.baseURL(address) + path

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request to %s: %w", u, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.systemKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		err := c.parseErrorResponse(resp)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response from %s: %w", u, err))
		}
	}
	return nil
}

// baseURL turns a registry address into the agent's base URL. Addresses that
// already carry a port (as in tests) are used as-is.
func (c *Client) baseURL(address string) string {
	if strings.Contains(address, ":") {
		return "http://" + address
	}
	return fmt.Sprintf("http://%s:%d", address, c.agentPort)
}

func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("host agent returned %d: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("host agent returned unexpected status %d", resp.StatusCode)
}

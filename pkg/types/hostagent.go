package types

// These types form the wire contract between the control plane and the host
// agent process running on each Toolbox. Both directions are authenticated:
// the host agent proves which host it is with its per-host bearer secret, and
// the control plane proves it is the control plane with the shared system key.

// HostHealth is a free-form snapshot of a Toolbox's health, reported with
// every heartbeat.
type HostHealth struct {
	UptimeSeconds int64  `json:"uptime_seconds"`
	LoadNote      string `json:"load_note,omitempty"`
}

// InstanceStatusReport is the host agent's view of one locally managed tool instance.
type InstanceStatusReport struct {
	InstanceID uint   `json:"instance_id"`
	Status     string `json:"status"`
	Details    string `json:"details,omitempty"`
}

// HeartbeatRequest is POSTed by the host agent to /hostagent/heartbeat on a
// fixed interval.
type HeartbeatRequest struct {
	AgentVersion  string                 `json:"agent_version"`
	HostHealth    HostHealth             `json:"host_health"`
	ToolInstances []InstanceStatusReport `json:"tool_instances"`
}

// FetchCredentialRequest is sent by the host agent to resolve the calling
// agent's secret for a single execution.
type FetchCredentialRequest struct {
	AgentID        uint `json:"agent_id"`
	ToolInstanceID uint `json:"tool_instance_id"`
}

// FetchCredentialResponse carries the decrypted secret by value, exactly once.
// The host agent must discard it after the execution it was fetched for.
type FetchCredentialResponse struct {
	Kind   string `json:"kind"`
	Secret string `json:"secret"`
}

// DeployCommand instructs the host agent to pull an image and create a
// container for a tool instance.
type DeployCommand struct {
	InstanceID uint   `json:"instance_id"`
	Name       string `json:"name"`
	Image      string `json:"image"`
}

// ExecuteCommand instructs the host agent to run a capability inside a running
// tool instance on behalf of the named agent. It carries the calling agent's
// identity, never its secret; the host agent fetches the secret just in time.
type ExecuteCommand struct {
	RequestID      string         `json:"request_id"`
	AgentID        uint           `json:"agent_id"`
	ToolInstanceID uint           `json:"tool_instance_id"`
	Capability     string         `json:"capability"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// ExecuteResult is the host agent's response to an ExecuteCommand.
type ExecuteResult struct {
	RequestID string `json:"request_id"`
	Output    string `json:"output"`
}

// AgentStatusResponse describes the host agent and its managed instances,
// served at GET /status on the host agent.
type AgentStatusResponse struct {
	Version   string                 `json:"version"`
	Instances []InstanceStatusReport `json:"instances"`
}

package types

// CredentialStatus represents the state of an agent's credential for a toolbelt item.
type CredentialStatus string

const (
	CredentialStatusActive         CredentialStatus = "active"
	CredentialStatusRevoked        CredentialStatus = "revoked"
	CredentialStatusRequiresReauth CredentialStatus = "requires_reauth"
	CredentialStatusError          CredentialStatus = "error"
)

// ToolboxAccessGrant records that an agent may reach a Toolbox.
// It is a necessary but not sufficient condition for using any tool on that host.
type ToolboxAccessGrant struct {
	ID        uint   `json:"id"`
	AgentID   uint   `json:"agent_id"`
	ToolboxID uint   `json:"toolbox_id"`
	GrantedAt string `json:"granted_at"`
}

// ToolbeltItem represents a tool instance an agent has added to its personal kit.
type ToolbeltItem struct {
	ID             uint   `json:"id"`
	AgentID        uint   `json:"agent_id"`
	ToolInstanceID uint   `json:"tool_instance_id"`
	Active         bool   `json:"active"`
	HasCredential  bool   `json:"has_credential"`
}

// GrantToolboxAccessInput is the request body for granting an agent access to a Toolbox.
type GrantToolboxAccessInput struct {
	ToolboxID uint `json:"toolbox_id"`
}

// AddToolbeltItemInput is the request body for adding a tool instance to an agent's belt.
type AddToolbeltItemInput struct {
	ToolInstanceID uint `json:"tool_instance_id"`
}

// SetCredentialInput is the request body for binding an agent-scoped secret to a
// toolbelt item. The raw secret is carried only in this request and handed straight
// to the secret store; it is never persisted or logged.
type SetCredentialInput struct {
	// Kind must match one of the catalog entry's declared secret slots.
	Kind string `json:"kind"`

	// Secret is the raw secret material.
	Secret string `json:"secret"`
}

// SetCredentialResponse returns the stored credential's metadata. The secret
// itself is replaced by a masked display identifier.
type SetCredentialResponse struct {
	ID        uint             `json:"id"`
	Kind      string           `json:"kind"`
	DisplayID string           `json:"display_id"`
	Status    CredentialStatus `json:"status"`
}

// SetCapabilityPermissionInput is the request body for enabling or disabling a
// capability of a toolbelt item for the owning agent.
type SetCapabilityPermissionInput struct {
	// Capability must match one of the catalog entry's declared capability names.
	Capability string `json:"capability"`

	Allowed bool `json:"allowed"`
}

// ExecuteToolInput is the request body for executing a capability of a tool in
// the agent's belt. This request passes the control plane's authorization choke
// point before it is relayed to the host agent.
type ExecuteToolInput struct {
	Capability string         `json:"capability"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ExecuteToolResponse carries the capability's output back to the caller.
type ExecuteToolResponse struct {
	RequestID string `json:"request_id"`
	Output    string `json:"output"`
}

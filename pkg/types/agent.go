package types

// AgentRole represents the role of an API principal.
type AgentRole string

const (
	AgentRoleAdmin AgentRole = "admin"
	AgentRoleAgent AgentRole = "agent"
)

// Agent represents a software agent known to the control plane.
// Agents authenticate to the API with a bearer access token.
type Agent struct {
	ID   uint      `json:"id"`
	Name string    `json:"name"`
	Role AgentRole `json:"role"`
}

// CreateAgentResponse is returned when a new agent principal is created.
// It is the only place the access token is ever shown.
type CreateAgentResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
}

// ServerMetadata represents the control plane metadata response.
type ServerMetadata struct {
	Version string `json:"version"`
}

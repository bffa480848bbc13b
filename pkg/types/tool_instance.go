package types

import "fmt"

// ToolInstanceStatus represents the lifecycle state of one deployment of a
// catalog entry onto a Toolbox.
type ToolInstanceStatus string

const (
	ToolInstanceStatusPendingDeploy ToolInstanceStatus = "pending_deploy"
	ToolInstanceStatusDeploying     ToolInstanceStatus = "deploying"
	ToolInstanceStatusRunning       ToolInstanceStatus = "running"
	ToolInstanceStatusStopped       ToolInstanceStatus = "stopped"
	ToolInstanceStatusPendingStart  ToolInstanceStatus = "pending_start"
	ToolInstanceStatusPendingStop   ToolInstanceStatus = "pending_stop"
	ToolInstanceStatusPendingDelete ToolInstanceStatus = "pending_delete"
	ToolInstanceStatusDeleting      ToolInstanceStatus = "deleting"
	ToolInstanceStatusError         ToolInstanceStatus = "error"
)

// IsDeleting returns true if the instance is on its way out.
// Status reports from a Toolbox can never pull an instance back out of these
// states: deletions win over late heartbeats.
func (s ToolInstanceStatus) IsDeleting() bool {
	return s == ToolInstanceStatusPendingDelete || s == ToolInstanceStatusDeleting
}

// ValidateToolInstanceStatus validates a status string reported by a host agent.
func ValidateToolInstanceStatus(input string) (ToolInstanceStatus, error) {
	switch ToolInstanceStatus(input) {
	case ToolInstanceStatusDeploying, ToolInstanceStatusRunning, ToolInstanceStatusStopped,
		ToolInstanceStatusError:
		return ToolInstanceStatus(input), nil
	default:
		return "", fmt.Errorf("unsupported tool instance status: %s", input)
	}
}

// ToolInstance represents one running deployment of a catalog entry on a Toolbox.
type ToolInstance struct {
	ID            uint               `json:"id"`
	ToolboxID     uint               `json:"toolbox_id"`
	CatalogID     uint               `json:"catalog_id"`
	Name          string             `json:"name"`
	Status        ToolInstanceStatus `json:"status"`
	Port          int                `json:"port,omitempty"`
	StatusDetail  string             `json:"status_detail,omitempty"`
	LastHeartbeat string             `json:"last_heartbeat,omitempty"`
}

// DeployToolInstanceInput is the request body for deploying a catalog entry onto a Toolbox.
type DeployToolInstanceInput struct {
	// CatalogID (mandatory) references the tool template to deploy.
	CatalogID uint `json:"catalog_id"`

	// Name (mandatory) is the instance name, unique within the Toolbox.
	Name string `json:"name"`
}

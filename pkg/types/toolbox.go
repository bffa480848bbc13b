package types

import (
	"encoding/json"
	"fmt"
)

// ToolboxStatus represents the lifecycle state of a Toolbox (a provisioned compute host).
// All states a Toolbox can be in are defined in this file with this type.
type ToolboxStatus string

const (
	ToolboxStatusPendingProvision    ToolboxStatus = "pending_provision"
	ToolboxStatusProvisioning        ToolboxStatus = "provisioning"
	ToolboxStatusAwaitingHeartbeat   ToolboxStatus = "awaiting_heartbeat"
	ToolboxStatusActive              ToolboxStatus = "active"
	ToolboxStatusUnresponsive        ToolboxStatus = "unresponsive"
	ToolboxStatusPendingDeprovision  ToolboxStatus = "pending_deprovision"
	ToolboxStatusDeprovisioning      ToolboxStatus = "deprovisioning"
	ToolboxStatusDeprovisioned       ToolboxStatus = "deprovisioned"
	ToolboxStatusErrorProvisioning   ToolboxStatus = "error_provisioning"
	ToolboxStatusErrorDeprovisioning ToolboxStatus = "error_deprovisioning"
)

// toolboxStatusRank orders toolbox states by how far along the lifecycle they are.
// Heartbeat processing uses this to refuse regressing a host to an earlier state.
var toolboxStatusRank = map[ToolboxStatus]int{
	ToolboxStatusPendingProvision:    0,
	ToolboxStatusProvisioning:        1,
	ToolboxStatusAwaitingHeartbeat:   2,
	ToolboxStatusActive:              3,
	ToolboxStatusUnresponsive:        3,
	ToolboxStatusPendingDeprovision:  4,
	ToolboxStatusDeprovisioning:      5,
	ToolboxStatusDeprovisioned:       6,
	ToolboxStatusErrorProvisioning:   6,
	ToolboxStatusErrorDeprovisioning: 6,
}

// AdvancesOver returns true if s is at least as far along the lifecycle as other.
func (s ToolboxStatus) AdvancesOver(other ToolboxStatus) bool {
	return toolboxStatusRank[s] >= toolboxStatusRank[other]
}

// IsTerminal returns true if the status is a terminal state of the toolbox lifecycle.
func (s ToolboxStatus) IsTerminal() bool {
	return s == ToolboxStatusDeprovisioned || s == ToolboxStatusErrorDeprovisioning
}

// Toolbox represents a provisioned compute host shared across many agents.
type Toolbox struct {
	ID           uint          `json:"id"`
	Name         string        `json:"name"`
	Owner        string        `json:"owner"`
	Status       ToolboxStatus `json:"status"`
	Address      string        `json:"address,omitempty"`
	AgentVersion string        `json:"agent_version,omitempty"`
	LastHeartbeat string       `json:"last_heartbeat,omitempty"`
	StatusDetail string        `json:"status_detail,omitempty"`

	// Health is the free-form health snapshot from the host's last heartbeat.
	Health json.RawMessage `json:"health,omitempty"`
}

// ProvisionToolboxInput is the request body for provisioning a new Toolbox.
type ProvisionToolboxInput struct {
	// Name (mandatory) is a display name for the new Toolbox.
	Name string `json:"name"`

	// Region is the cloud region to create the host in (eg- "nyc3").
	Region string `json:"region"`

	// Size is the provider-specific machine size slug (eg- "s-1vcpu-1gb").
	Size string `json:"size"`

	// Image is the base OS image for the host.
	Image string `json:"image,omitempty"`
}

// ProvisionToolboxResponse is returned when a provisioning request is accepted.
// Provisioning is asynchronous: the caller polls GET /toolboxes/{id} for progress.
type ProvisionToolboxResponse struct {
	ID     uint          `json:"id"`
	Status ToolboxStatus `json:"status"`
}

// CredentialAuditEntry is one credential fetch recorded by the broker.
// It carries identifiers only, never secret material.
type CredentialAuditEntry struct {
	ID             uint   `json:"id"`
	RequestID      string `json:"request_id"`
	ToolboxID      uint   `json:"toolbox_id"`
	AgentID        uint   `json:"agent_id"`
	ToolInstanceID uint   `json:"tool_instance_id"`
	Kind           string `json:"kind"`
	FetchedAt      string `json:"fetched_at"`
}

// ValidateProvisionToolboxInput checks the mandatory provisioning parameters.
func ValidateProvisionToolboxInput(in *ProvisionToolboxInput) error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.Region == "" {
		return fmt.Errorf("region is required")
	}
	if in.Size == "" {
		return fmt.Errorf("size is required")
	}
	return nil
}

package model

import (
	"time"

	"github.com/agentopia/toolbox/pkg/types"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HostEnvironment represents a Toolbox: one provisioned compute host shared
// across many agents.
type HostEnvironment struct {
	gorm.Model

	Name  string `json:"name" gorm:"not null"`
	Owner string `json:"owner" gorm:"not null"`

	// ProviderInstanceID is the cloud provider's identifier for the host.
	ProviderInstanceID string `json:"provider_instance_id"`

	// Address is the host's network address. It stays empty until the cloud
	// provider assigns one during provisioning.
	Address string `json:"address"`

	// BearerSecret is the per-host credential the host agent uses to
	// authenticate to the control plane. It is generated exactly once at
	// creation and never regenerated while the host is active.
	BearerSecret string `json:"-" gorm:"uniqueIndex;not null"`

	Status       types.ToolboxStatus `json:"status" gorm:"type:varchar(30);not null;default:'pending_provision'"`
	StatusDetail string              `json:"status_detail"`

	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`

	// AgentVersion is the last version the host agent reported about itself.
	AgentVersion string `json:"agent_version"`

	// Health is the free-form health snapshot from the last heartbeat.
	Health datatypes.JSON `json:"health" gorm:"type:jsonb"`
}

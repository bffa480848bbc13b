package model

import (
	"github.com/agentopia/toolbox/pkg/types"
	"gorm.io/gorm"
)

// ToolboxAccessGrant records that an agent may reach a Toolbox. A grant is a
// prerequisite for adding any of the host's tool instances to the agent's belt.
type ToolboxAccessGrant struct {
	gorm.Model

	AgentID uint  `json:"agent_id" gorm:"not null;uniqueIndex:idx_agent_toolbox_grant"`
	Agent   Agent `json:"-" gorm:"foreignKey:AgentID;references:ID"`

	ToolboxID uint            `json:"toolbox_id" gorm:"not null;uniqueIndex:idx_agent_toolbox_grant"`
	Toolbox   HostEnvironment `json:"-" gorm:"foreignKey:ToolboxID;references:ID"`
}

// ToolbeltItem represents "this agent has added this tool instance to its kit".
// A fresh item has no credential and no enabled capabilities.
type ToolbeltItem struct {
	gorm.Model

	AgentID uint  `json:"agent_id" gorm:"not null;uniqueIndex:idx_agent_instance_item"`
	Agent   Agent `json:"-" gorm:"foreignKey:AgentID;references:ID"`

	ToolInstanceID uint         `json:"tool_instance_id" gorm:"not null;uniqueIndex:idx_agent_instance_item"`
	ToolInstance   ToolInstance `json:"-" gorm:"foreignKey:ToolInstanceID;references:ID"`

	// Active is flipped off (rather than the row deleted) when the item is
	// invalidated by a cascade, eg- when the agent's host access is revoked.
	Active bool `json:"active" gorm:"default:true"`
}

// AgentToolCredential binds an agent-scoped secret to a toolbelt item.
// Only the opaque secret store reference is persisted, never the plaintext.
type AgentToolCredential struct {
	gorm.Model

	ToolbeltItemID uint         `json:"toolbelt_item_id" gorm:"not null;uniqueIndex:idx_item_credential_kind"`
	ToolbeltItem   ToolbeltItem `json:"-" gorm:"foreignKey:ToolbeltItemID;references:ID"`

	// Kind matches one of the catalog entry's declared secret slots.
	Kind string `json:"kind" gorm:"not null;uniqueIndex:idx_item_credential_kind"`

	// SecretRef is the opaque handle returned by the secret store.
	SecretRef string `json:"-" gorm:"not null"`

	// DisplayID is a masked identifier safe to show to users, eg- "k-…123".
	DisplayID string `json:"display_id"`

	Status types.CredentialStatus `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
}

// AgentToolCapabilityPermission is a per-(toolbelt item, capability) switch.
// Absence of a row means the capability is denied: default-deny.
type AgentToolCapabilityPermission struct {
	gorm.Model

	ToolbeltItemID uint         `json:"toolbelt_item_id" gorm:"not null;uniqueIndex:idx_item_capability"`
	ToolbeltItem   ToolbeltItem `json:"-" gorm:"foreignKey:ToolbeltItemID;references:ID"`

	Capability string `json:"capability" gorm:"not null;uniqueIndex:idx_item_capability"`
	Allowed    bool   `json:"allowed" gorm:"not null;default:false"`
}

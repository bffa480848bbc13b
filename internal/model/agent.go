package model

import (
	"github.com/agentopia/toolbox/pkg/types"
	"gorm.io/gorm"
)

// Agent represents a software agent known to the control plane.
// Agents authenticate to the API with a bearer access token. Admin-role agents
// additionally manage the catalog and toolboxes.
type Agent struct {
	gorm.Model

	Name string          `json:"name" gorm:"uniqueIndex;not null"`
	Role types.AgentRole `json:"role" gorm:"type:varchar(10);not null;default:'agent'"`

	AccessToken string `json:"-" gorm:"uniqueIndex;not null"`
}

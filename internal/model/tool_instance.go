package model

import (
	"time"

	"github.com/agentopia/toolbox/pkg/types"
	"gorm.io/gorm"
)

// ToolInstance represents one deployment of a catalog entry onto a Toolbox.
type ToolInstance struct {
	gorm.Model

	// Name is unique within the Toolbox, not globally. The host agent uses it
	// as the container name.
	Name string `json:"name" gorm:"not null;uniqueIndex:idx_toolbox_instance_name"`

	ToolboxID uint            `json:"toolbox_id" gorm:"not null;uniqueIndex:idx_toolbox_instance_name"`
	Toolbox   HostEnvironment `json:"-" gorm:"foreignKey:ToolboxID;references:ID"`

	CatalogID uint             `json:"catalog_id" gorm:"not null"`
	Catalog   ToolCatalogEntry `json:"-" gorm:"foreignKey:CatalogID;references:ID"`

	Status       types.ToolInstanceStatus `json:"status" gorm:"type:varchar(30);not null;default:'pending_deploy'"`
	StatusDetail string                   `json:"status_detail"`

	// Port is the host port the instance's container is bound to, if any.
	Port int `json:"port"`

	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`
}

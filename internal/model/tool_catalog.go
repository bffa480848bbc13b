package model

import (
	"encoding/json"
	"errors"

	"github.com/agentopia/toolbox/pkg/types"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ToolCatalogEntry represents an admin-curated tool template: a container
// image plus the secret slots and capabilities the tool declares.
type ToolCatalogEntry struct {
	gorm.Model

	Name string `json:"name" gorm:"uniqueIndex;not null"`

	// Image is the container image reference deployed for each instance of this tool.
	Image string `json:"image" gorm:"not null"`

	// SecretSlots contains the JSON representation of []types.SecretSlot.
	SecretSlots datatypes.JSON `json:"secret_slots" gorm:"type:jsonb"`

	// Capabilities contains the JSON representation of []types.Capability.
	Capabilities datatypes.JSON `json:"capabilities" gorm:"type:jsonb"`

	// Enabled indicates whether new instances of this tool may be deployed.
	// Disabling an entry does not affect instances already running.
	Enabled bool `json:"enabled" gorm:"default:true"`
}

// NewToolCatalogEntry creates a catalog entry from a registration request.
func NewToolCatalogEntry(name, image string, slots []types.SecretSlot, capabilities []types.Capability) (*ToolCatalogEntry, error) {
	if image == "" {
		return nil, errors.New("image is required for a catalog entry")
	}
	if slots == nil {
		slots = []types.SecretSlot{}
	}
	if capabilities == nil {
		capabilities = []types.Capability{}
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, err
	}
	capsJSON, err := json.Marshal(capabilities)
	if err != nil {
		return nil, err
	}
	return &ToolCatalogEntry{
		Name:         name,
		Image:        image,
		SecretSlots:  slotsJSON,
		Capabilities: capsJSON,
		Enabled:      true,
	}, nil
}

// GetSecretSlots returns the entry's declared secret slots.
func (e *ToolCatalogEntry) GetSecretSlots() ([]types.SecretSlot, error) {
	var slots []types.SecretSlot
	if len(e.SecretSlots) == 0 {
		return slots, nil
	}
	if err := json.Unmarshal(e.SecretSlots, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// GetCapabilities returns the entry's declared capability list.
func (e *ToolCatalogEntry) GetCapabilities() ([]types.Capability, error) {
	var capabilities []types.Capability
	if len(e.Capabilities) == 0 {
		return capabilities, nil
	}
	if err := json.Unmarshal(e.Capabilities, &capabilities); err != nil {
		return nil, err
	}
	return capabilities, nil
}

// HasSecretSlot returns true if kind matches one of the declared secret slots.
func (e *ToolCatalogEntry) HasSecretSlot(kind string) (bool, error) {
	slots, err := e.GetSecretSlots()
	if err != nil {
		return false, err
	}
	for _, s := range slots {
		if s.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

// HasCapability returns true if name matches one of the declared capabilities.
func (e *ToolCatalogEntry) HasCapability(name string) (bool, error) {
	capabilities, err := e.GetCapabilities()
	if err != nil {
		return false, err
	}
	for _, c := range capabilities {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

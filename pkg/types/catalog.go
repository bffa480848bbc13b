package types

import (
	"fmt"
	"regexp"
)

// Only allow letters, numbers, hyphens, and underscores.
var validEntityName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateEntityName checks names used for catalog entries and tool instances.
// These names end up as container names on a Toolbox, so they must be safe
// for use in container runtimes and URLs.
func ValidateEntityName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !validEntityName.MatchString(name) {
		return fmt.Errorf("invalid name: '%s' must follow the regular expression %s", name, validEntityName)
	}
	return nil
}

// SecretSlot describes one named credential a tool requires.
// The slots for a tool are declared by its catalog entry and bound per agent.
type SecretSlot struct {
	// Kind is the slot identifier, eg- "api_key" or "oauth_refresh_token".
	Kind string `json:"kind"`

	// Label is a human-readable description of the slot.
	Label string `json:"label,omitempty"`
}

// Capability describes one named action a tool exposes (eg- "gmail.send").
// Capabilities are individually permissioned per agent.
type Capability struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// ToolCatalogEntry represents an admin-curated tool template.
type ToolCatalogEntry struct {
	ID           uint         `json:"id"`
	Name         string       `json:"name"`
	Image        string       `json:"image"`
	SecretSlots  []SecretSlot `json:"secret_slots,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	Enabled      bool         `json:"enabled"`
}

// CreateCatalogEntryInput is the request body for registering a new tool template.
type CreateCatalogEntryInput struct {
	// Name (mandatory) is the unique name of the tool template.
	Name string `json:"name"`

	// Image (mandatory) is the container image reference for the tool.
	Image string `json:"image"`

	// SecretSlots declares the named credential slots the tool requires.
	SecretSlots []SecretSlot `json:"secret_slots,omitempty"`

	// Capabilities declares the named actions the tool exposes.
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// ValidateCreateCatalogEntryInput checks a catalog registration request.
func ValidateCreateCatalogEntryInput(in *CreateCatalogEntryInput) error {
	if err := ValidateEntityName(in.Name); err != nil {
		return err
	}
	if in.Image == "" {
		return fmt.Errorf("image is required")
	}
	for _, slot := range in.SecretSlots {
		if slot.Kind == "" {
			return fmt.Errorf("secret slot kind must not be empty")
		}
	}
	for _, c := range in.Capabilities {
		if c.Name == "" {
			return fmt.Errorf("capability name must not be empty")
		}
	}
	return nil
}

package catalog

import (
	"errors"
	"fmt"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// importFile is the YAML layout for seeding catalog entries from a file.
type importFile struct {
	Tools []importEntry `yaml:"tools"`
}

type importEntry struct {
	Name         string `yaml:"name"`
	Image        string `yaml:"image"`
	SecretSlots  []struct {
		Kind  string `yaml:"kind"`
		Label string `yaml:"label"`
	} `yaml:"secret_slots"`
	Capabilities []struct {
		Name  string `yaml:"name"`
		Label string `yaml:"label"`
	} `yaml:"capabilities"`
}

// ImportFile loads tool templates from a YAML file and registers the ones not
// already present. Existing entries (matched by name) are left untouched, so
// the import is safe to run repeatedly at startup.
func (s *CatalogService) ImportFile(fs afero.Fs, path string) (int, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var file importFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	created := 0
	for _, e := range file.Tools {
		input := &types.CreateCatalogEntryInput{
			Name:  e.Name,
			Image: e.Image,
		}
		for _, slot := range e.SecretSlots {
			input.SecretSlots = append(input.SecretSlots, types.SecretSlot{Kind: slot.Kind, Label: slot.Label})
		}
		for _, c := range e.Capabilities {
			input.Capabilities = append(input.Capabilities, types.Capability{Name: c.Name, Label: c.Label})
		}

		if _, err := s.CreateEntry(input); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				continue
			}
			return created, fmt.Errorf("failed to import catalog entry %s: %w", e.Name, err)
		}
		created++
	}
	return created, nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentopia/toolbox/pkg/types"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create entities in toolbox",
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "4",
	},
}

var createAgentCmd = &cobra.Command{
	Use:   "agent [name]",
	Args:  cobra.ExactArgs(1),
	Short: "Create a new agent principal (admin only)",
	Long: "Create an agent principal that can make authenticated requests to the Toolbox API.\n" +
		"This returns an access token which the agent must send in the\n" +
		"`Authorization: Bearer {token}` http header.\n" +
		"The token is shown exactly once and cannot be recovered later.",
	RunE: runCreateAgent,
}

var createCatalogEntryCmd = &cobra.Command{
	Use:   "catalog-entry",
	Short: "Register a tool template in the catalog (admin only)",
	Long: "Register a new tool template by supplying a configuration file.\n" +
		"The file declares the container image, the secret slots the tool requires\n" +
		"and the capabilities it exposes. Example (YAML):\n\n" +
		"  name: gmail-tool\n" +
		"  image: ghcr.io/agentopia/gmail-tool:latest\n" +
		"  secret_slots:\n" +
		"    - kind: oauth_refresh_token\n" +
		"  capabilities:\n" +
		"    - name: gmail.send\n" +
		"    - name: gmail.read\n",
	RunE: runCreateCatalogEntry,
}

var createCatalogEntryConfigFilePath string

func init() {
	createCatalogEntryCmd.Flags().StringVarP(
		&createCatalogEntryConfigFilePath,
		"conf",
		"c",
		"",
		"Path to the catalog entry configuration file (JSON or YAML)",
	)
	_ = createCatalogEntryCmd.MarkFlagRequired("conf")

	createCmd.AddCommand(createAgentCmd)
	createCmd.AddCommand(createCatalogEntryCmd)
	rootCmd.AddCommand(createCmd)
}

func runCreateAgent(cmd *cobra.Command, args []string) error {
	created, err := apiClient.CreateAgent(args[0])
	if err != nil {
		return fmt.Errorf("failed to create agent '%s': %w", args[0], err)
	}

	cmd.Printf("Agent '%s' created. Its access token is printed below.\n", created.Name)
	cmd.Println("Store it securely, it will not be shown again:")
	cmd.Println(created.AccessToken)
	return nil
}

func runCreateCatalogEntry(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(createCatalogEntryConfigFilePath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	input, err := parseCatalogEntryConfig(data)
	if err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	entry, err := apiClient.CreateCatalogEntry(input)
	if err != nil {
		return fmt.Errorf("failed to create catalog entry: %w", err)
	}

	cmd.Printf("Catalog entry '%s' created (id %d)\n", entry.Name, entry.ID)
	return nil
}

// catalogEntryConfig is the on-disk layout of a catalog entry definition.
// JSON files use the same field names.
type catalogEntryConfig struct {
	Name        string `yaml:"name" json:"name"`
	Image       string `yaml:"image" json:"image"`
	SecretSlots []struct {
		Kind  string `yaml:"kind" json:"kind"`
		Label string `yaml:"label" json:"label"`
	} `yaml:"secret_slots" json:"secret_slots"`
	Capabilities []struct {
		Name  string `yaml:"name" json:"name"`
		Label string `yaml:"label" json:"label"`
	} `yaml:"capabilities" json:"capabilities"`
}

func parseCatalogEntryConfig(data []byte) (*types.CreateCatalogEntryInput, error) {
	var conf catalogEntryConfig
	var err error
	if json.Valid(data) {
		err = json.Unmarshal(data, &conf)
	} else {
		err = yaml.Unmarshal(data, &conf)
	}
	if err != nil {
		return nil, err
	}

	input := &types.CreateCatalogEntryInput{
		Name:  conf.Name,
		Image: conf.Image,
	}
	for _, slot := range conf.SecretSlots {
		input.SecretSlots = append(input.SecretSlots, types.SecretSlot{Kind: slot.Kind, Label: slot.Label})
	}
	for _, c := range conf.Capabilities {
		input.Capabilities = append(input.Capabilities, types.Capability{Name: c.Name, Label: c.Label})
	}
	return input, nil
}

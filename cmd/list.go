package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities in toolbox",
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "3",
	},
}

var listAgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List all agent principals (admin only)",
	RunE:  runListAgents,
}

var listCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the tool catalog",
	RunE:  runListCatalog,
}

var listToolboxesCmd = &cobra.Command{
	Use:   "toolboxes",
	Short: "List your Toolboxes (admin only)",
	RunE:  runListToolboxes,
}

var listToolsCmd = &cobra.Command{
	Use:   "tools [toolbox-id]",
	Args:  cobra.ExactArgs(1),
	Short: "List the tool instances on a Toolbox (admin only)",
	RunE:  runListTools,
}

var listBeltCmd = &cobra.Command{
	Use:   "belt",
	Short: "List the items in your toolbelt",
	RunE:  runListBelt,
}

func init() {
	listCmd.AddCommand(listAgentsCmd)
	listCmd.AddCommand(listCatalogCmd)
	listCmd.AddCommand(listToolboxesCmd)
	listCmd.AddCommand(listToolsCmd)
	listCmd.AddCommand(listBeltCmd)
	rootCmd.AddCommand(listCmd)
}

// parseIDArg converts a numeric CLI argument into an entity id.
func parseIDArg(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id '%s': must be a number", arg)
	}
	return uint(id), nil
}

func runListAgents(cmd *cobra.Command, args []string) error {
	agents, err := apiClient.ListAgents()
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}
	if len(agents) == 0 {
		cmd.Println("No agents found")
		return nil
	}
	for _, ag := range agents {
		cmd.Printf("%d. %s (%s)\n", ag.ID, ag.Name, ag.Role)
	}
	return nil
}

func runListCatalog(cmd *cobra.Command, args []string) error {
	entries, err := apiClient.ListCatalog()
	if err != nil {
		return fmt.Errorf("failed to list catalog: %w", err)
	}
	if len(entries) == 0 {
		cmd.Println("The catalog is empty")
		return nil
	}
	for _, e := range entries {
		state := "enabled"
		if !e.Enabled {
			state = "disabled"
		}
		cmd.Printf("%d. %s [%s]\n", e.ID, e.Name, state)
		cmd.Printf("   image: %s\n", e.Image)
	}
	return nil
}

func runListToolboxes(cmd *cobra.Command, args []string) error {
	toolboxes, err := apiClient.ListToolboxes()
	if err != nil {
		return fmt.Errorf("failed to list toolboxes: %w", err)
	}
	if len(toolboxes) == 0 {
		cmd.Println("No toolboxes found")
		return nil
	}
	for _, tb := range toolboxes {
		cmd.Printf("%d. %s [%s]\n", tb.ID, tb.Name, tb.Status)
		if tb.Address != "" {
			cmd.Printf("   address: %s\n", tb.Address)
		}
		if tb.LastHeartbeat != "" {
			cmd.Printf("   last heartbeat: %s\n", tb.LastHeartbeat)
		}
		if tb.StatusDetail != "" {
			cmd.Printf("   detail: %s\n", tb.StatusDetail)
		}
	}
	return nil
}

func runListTools(cmd *cobra.Command, args []string) error {
	toolboxID, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	instances, err := apiClient.ListToolInstances(toolboxID)
	if err != nil {
		return fmt.Errorf("failed to list tool instances: %w", err)
	}
	if len(instances) == 0 {
		cmd.Println("No tool instances on this toolbox")
		return nil
	}
	for _, inst := range instances {
		cmd.Printf("%d. %s [%s]\n", inst.ID, inst.Name, inst.Status)
		if inst.StatusDetail != "" {
			cmd.Printf("   detail: %s\n", inst.StatusDetail)
		}
	}
	return nil
}

func runListBelt(cmd *cobra.Command, args []string) error {
	items, err := apiClient.ListToolbelt()
	if err != nil {
		return fmt.Errorf("failed to list toolbelt: %w", err)
	}
	if len(items) == 0 {
		cmd.Println("Your toolbelt is empty")
		return nil
	}
	for _, item := range items {
		credential := "no credential"
		if item.HasCredential {
			credential = "credential bound"
		}
		state := "active"
		if !item.Active {
			state = "inactive"
		}
		cmd.Printf("%d. instance %d [%s, %s]\n", item.ID, item.ToolInstanceID, state, credential)
	}
	return nil
}

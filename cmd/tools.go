package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentopia/toolbox/pkg/types"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage tool instances on Toolboxes (admin only)",
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "1",
	},
}

var (
	deployToolCatalogID uint
)

var deployToolCmd = &cobra.Command{
	Use:   "deploy [toolbox-id] [name]",
	Args:  cobra.ExactArgs(2),
	Short: "Deploy a catalog entry onto a Toolbox",
	Long: "Deploy a tool template from the catalog onto a Toolbox.\n" +
		"Deployment is asynchronous: the host agent pulls the image and starts the\n" +
		"container in the background. Use 'toolbox list tools' to watch progress.",
	RunE: runDeployTool,
}

var startToolCmd = &cobra.Command{
	Use:   "start [tool-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Start a stopped tool instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolAction(cmd, args[0], "start", apiClient.StartToolInstance)
	},
}

var stopToolCmd = &cobra.Command{
	Use:   "stop [tool-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Stop a running tool instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolAction(cmd, args[0], "stop", apiClient.StopToolInstance)
	},
}

var removeToolCmd = &cobra.Command{
	Use:   "remove [tool-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Remove a tool instance from its Toolbox",
	Long: "Remove a tool instance.\n" +
		"All toolbelt items referencing it are deactivated and their stored\n" +
		"credentials destroyed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolAction(cmd, args[0], "remove", apiClient.RemoveToolInstance)
	},
}

func init() {
	deployToolCmd.Flags().UintVar(&deployToolCatalogID, "catalog-id", 0, "id of the catalog entry to deploy")
	_ = deployToolCmd.MarkFlagRequired("catalog-id")

	toolsCmd.AddCommand(deployToolCmd)
	toolsCmd.AddCommand(startToolCmd)
	toolsCmd.AddCommand(stopToolCmd)
	toolsCmd.AddCommand(removeToolCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runDeployTool(cmd *cobra.Command, args []string) error {
	toolboxID, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	inst, err := apiClient.DeployToolInstance(toolboxID, &types.DeployToolInstanceInput{
		CatalogID: deployToolCatalogID,
		Name:      args[1],
	})
	if err != nil {
		return fmt.Errorf("failed to deploy tool: %w", err)
	}
	cmd.Printf("Tool instance %d ('%s') accepted for deployment (status: %s)\n", inst.ID, inst.Name, inst.Status)
	return nil
}

func runToolAction(cmd *cobra.Command, arg, action string, fn func(uint) error) error {
	id, err := parseIDArg(arg)
	if err != nil {
		return err
	}
	if err := fn(id); err != nil {
		return fmt.Errorf("failed to %s tool instance %d: %w", action, id, err)
	}
	cmd.Printf("Tool instance %d: %s requested\n", id, action)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete entities from toolbox",
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "10",
	},
}

var deleteAgentCmd = &cobra.Command{
	Use:   "agent [name]",
	Args:  cobra.ExactArgs(1),
	Short: "Delete an agent principal (admin only)",
	Long: "Delete an agent principal.\n" +
		"Its access token stops working immediately. The admin principal cannot be deleted.",
	RunE: runDeleteAgent,
}

var deleteCatalogEntryCmd = &cobra.Command{
	Use:   "catalog-entry [name]",
	Args:  cobra.ExactArgs(1),
	Short: "Delete a tool template from the catalog (admin only)",
	RunE:  runDeleteCatalogEntry,
}

func init() {
	deleteCmd.AddCommand(deleteAgentCmd)
	deleteCmd.AddCommand(deleteCatalogEntryCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runDeleteAgent(cmd *cobra.Command, args []string) error {
	if err := apiClient.DeleteAgent(args[0]); err != nil {
		return fmt.Errorf("failed to delete agent '%s': %w", args[0], err)
	}
	cmd.Printf("Agent '%s' deleted\n", args[0])
	return nil
}

func runDeleteCatalogEntry(cmd *cobra.Command, args []string) error {
	if err := apiClient.DeleteCatalogEntry(args[0]); err != nil {
		return fmt.Errorf("failed to delete catalog entry '%s': %w", args[0], err)
	}
	cmd.Printf("Catalog entry '%s' deleted\n", args[0])
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var grantCmd = &cobra.Command{
	Use:   "grant [agent-name] [toolbox-id]",
	Args:  cobra.ExactArgs(2),
	Short: "Grant an agent access to a Toolbox (admin only)",
	Long: "Grant an agent access to a Toolbox.\n" +
		"A grant only opens the door: to use a tool on the host, the agent must still\n" +
		"add it to its toolbelt, bind a credential and enable the capability.",
	RunE: runGrantAccess,
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "2",
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke [agent-name] [toolbox-id]",
	Args:  cobra.ExactArgs(2),
	Short: "Revoke an agent's access to a Toolbox (admin only)",
	Long: "Revoke an agent's access to a Toolbox.\n" +
		"The agent's toolbelt items on that host are deactivated and their stored\n" +
		"credentials destroyed. Revocation takes effect on the next execution attempt.",
	RunE: runRevokeAccess,
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "3",
	},
}

func init() {
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
}

func runGrantAccess(cmd *cobra.Command, args []string) error {
	toolboxID, err := parseIDArg(args[1])
	if err != nil {
		return err
	}
	grant, err := apiClient.GrantToolboxAccess(args[0], toolboxID)
	if err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}
	cmd.Printf("Agent '%s' granted access to toolbox %d (grant %d)\n", args[0], grant.ToolboxID, grant.ID)
	return nil
}

func runRevokeAccess(cmd *cobra.Command, args []string) error {
	toolboxID, err := parseIDArg(args[1])
	if err != nil {
		return err
	}
	if err := apiClient.RevokeToolboxAccess(args[0], toolboxID); err != nil {
		return fmt.Errorf("failed to revoke access: %w", err)
	}
	cmd.Printf("Agent '%s' access to toolbox %d revoked\n", args[0], toolboxID)
	return nil
}

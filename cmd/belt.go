package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentopia/toolbox/pkg/types"
)

var beltCmd = &cobra.Command{
	Use:   "belt",
	Short: "Manage your toolbelt",
	Long: "Manage your personal toolbelt: the tool instances you have adopted,\n" +
		"with your own credentials and capability permissions bound to each.",
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "2",
	},
}

var beltAddCmd = &cobra.Command{
	Use:   "add [tool-instance-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Add a tool instance to your toolbelt",
	Long: "Add a tool instance to your toolbelt.\n" +
		"You need an access grant for the instance's Toolbox. The new item starts\n" +
		"without a credential and with every capability disabled: bind a credential\n" +
		"with 'toolbox update credential' and enable capabilities with\n" +
		"'toolbox update permission' before executing anything.",
	RunE: runBeltAdd,
}

var beltRemoveCmd = &cobra.Command{
	Use:   "remove [item-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Remove an item from your toolbelt",
	Long: "Remove an item from your toolbelt.\n" +
		"Its stored credentials are destroyed.",
	RunE: runBeltRemove,
}

var beltExecutePayload string

var beltExecuteCmd = &cobra.Command{
	Use:   "execute [item-id] [capability]",
	Args:  cobra.ExactArgs(2),
	Short: "Execute a capability of a tool in your belt",
	Long: "Execute one capability of a toolbelt item.\n" +
		"The request passes the control plane's authorization checks, is relayed to\n" +
		"the tool's host, runs with your credential injected just-in-time, and the\n" +
		"output is printed here.",
	RunE: runBeltExecute,
}

func init() {
	beltExecuteCmd.Flags().StringVarP(
		&beltExecutePayload,
		"payload",
		"p",
		"",
		"JSON payload to pass to the capability",
	)

	beltCmd.AddCommand(beltAddCmd)
	beltCmd.AddCommand(beltRemoveCmd)
	beltCmd.AddCommand(beltExecuteCmd)
	rootCmd.AddCommand(beltCmd)
}

func runBeltAdd(cmd *cobra.Command, args []string) error {
	instanceID, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	item, err := apiClient.AddToBelt(instanceID)
	if err != nil {
		return fmt.Errorf("failed to add tool instance %d to your belt: %w", instanceID, err)
	}
	cmd.Printf("Tool instance %d added to your belt as item %d\n", item.ToolInstanceID, item.ID)
	cmd.Println("Bind a credential and enable capabilities before executing.")
	return nil
}

func runBeltRemove(cmd *cobra.Command, args []string) error {
	itemID, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.RemoveFromBelt(itemID); err != nil {
		return fmt.Errorf("failed to remove item %d: %w", itemID, err)
	}
	cmd.Printf("Item %d removed from your belt\n", itemID)
	return nil
}

func runBeltExecute(cmd *cobra.Command, args []string) error {
	itemID, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	var payload map[string]any
	if beltExecutePayload != "" {
		if err := json.Unmarshal([]byte(beltExecutePayload), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	result, err := apiClient.ExecuteTool(itemID, &types.ExecuteToolInput{
		Capability: args[1],
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	cmd.Println(result.Output)
	return nil
}

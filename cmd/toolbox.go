package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentopia/toolbox/pkg/types"
)

var (
	provisionToolboxRegion string
	provisionToolboxSize   string
	provisionToolboxImage  string
)

var provisionCmd = &cobra.Command{
	Use:   "provision [name]",
	Args:  cobra.ExactArgs(1),
	Short: "Provision a new Toolbox (admin only)",
	Long: "Provision a new shared compute host.\n" +
		"Provisioning is asynchronous: the command returns as soon as the request is\n" +
		"accepted. Use 'toolbox list toolboxes' to watch the host come up; it is ready\n" +
		"once its status reaches 'active'.",
	RunE: runProvisionToolbox,
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "5",
	},
}

var deprovisionCmd = &cobra.Command{
	Use:   "deprovision [toolbox-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Retire a Toolbox and destroy its cloud resources (admin only)",
	Long: "Retire a Toolbox.\n" +
		"Its host agent is locked out immediately, its tool instances are removed and\n" +
		"the underlying cloud host is destroyed.",
	RunE: runDeprovisionToolbox,
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "6",
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [toolbox-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Show the credential fetch audit trail of a Toolbox (admin only)",
	Long: "Lists every credential fetch host agents performed on behalf of the Toolbox,\n" +
		"newest first. Entries carry identifiers only; no secret material is ever recorded.",
	RunE: runAuditToolbox,
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "7",
	},
}

func init() {
	provisionCmd.Flags().StringVar(&provisionToolboxRegion, "region", "", "cloud region to create the host in (eg- nyc3)")
	provisionCmd.Flags().StringVar(&provisionToolboxSize, "size", "", "machine size slug (eg- s-1vcpu-1gb)")
	provisionCmd.Flags().StringVar(&provisionToolboxImage, "image", "", "base OS image for the host")
	_ = provisionCmd.MarkFlagRequired("region")
	_ = provisionCmd.MarkFlagRequired("size")

	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(deprovisionCmd)
	rootCmd.AddCommand(auditCmd)
}

func runProvisionToolbox(cmd *cobra.Command, args []string) error {
	accepted, err := apiClient.ProvisionToolbox(&types.ProvisionToolboxInput{
		Name:   args[0],
		Region: provisionToolboxRegion,
		Size:   provisionToolboxSize,
		Image:  provisionToolboxImage,
	})
	if err != nil {
		return fmt.Errorf("failed to provision toolbox: %w", err)
	}

	cmd.Printf("Toolbox %d accepted for provisioning (status: %s)\n", accepted.ID, accepted.Status)
	cmd.Println("Run 'toolbox list toolboxes' to watch it come up.")
	return nil
}

func runDeprovisionToolbox(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.DeprovisionToolbox(id); err != nil {
		return fmt.Errorf("failed to deprovision toolbox %d: %w", id, err)
	}
	cmd.Printf("Toolbox %d deprovisioned\n", id)
	return nil
}

func runAuditToolbox(cmd *cobra.Command, args []string) error {
	id, err := parseIDArg(args[0])
	if err != nil {
		return err
	}
	entries, err := apiClient.ListAuditEntries(id)
	if err != nil {
		return fmt.Errorf("failed to list audit entries for toolbox %d: %w", id, err)
	}
	if len(entries) == 0 {
		cmd.Println("No credential fetches recorded")
		return nil
	}
	for _, e := range entries {
		cmd.Printf(
			"%s  agent=%d instance=%d kind=%s request=%s\n",
			e.FetchedAt, e.AgentID, e.ToolInstanceID, e.Kind, e.RequestID,
		)
	}
	return nil
}

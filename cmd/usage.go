package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage <name>",
	Short: "Get usage information for a catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetCatalogEntryUsage,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "4",
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runGetCatalogEntryUsage(cmd *cobra.Command, args []string) error {
	entry, err := apiClient.GetCatalogEntry(args[0])
	if err != nil {
		return fmt.Errorf("failed to get catalog entry '%s': %w", args[0], err)
	}

	cmd.Println(entry.Name)
	cmd.Printf("image: %s\n", entry.Image)
	if !entry.Enabled {
		cmd.Println("(disabled: new deployments are blocked)")
	}

	if len(entry.SecretSlots) == 0 {
		cmd.Println()
		cmd.Println("This tool does not require any credentials.")
	} else {
		cmd.Println()
		cmd.Println("Secret Slots:")
		for _, slot := range entry.SecretSlots {
			if slot.Label != "" {
				cmd.Printf("* %s - %s\n", slot.Kind, slot.Label)
			} else {
				cmd.Printf("* %s\n", slot.Kind)
			}
		}
	}

	if len(entry.Capabilities) == 0 {
		cmd.Println()
		cmd.Println("This tool does not expose any capabilities.")
		return nil
	}

	cmd.Println()
	cmd.Println("Capabilities (deny-by-default, enable them per toolbelt item):")
	for _, c := range entry.Capabilities {
		if c.Label != "" {
			cmd.Printf("* %s - %s\n", c.Name, c.Label)
		} else {
			cmd.Printf("* %s\n", c.Name)
		}
	}

	return nil
}

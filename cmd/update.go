package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentopia/toolbox/pkg/types"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update resources",
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "8",
	},
}

var updateCredentialKind string

var updateCredentialCmd = &cobra.Command{
	Use:   "credential [item-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Bind a credential to a toolbelt item",
	Long: "Bind one of your own secrets to a toolbelt item.\n" +
		"The secret is read from stdin so it never appears in your shell history or\n" +
		"the process list. It is sealed in the control plane's secret store and\n" +
		"injected into the tool just-in-time for each execution.\n" +
		"Binding a new secret for the same kind replaces the old one.",
	RunE: runUpdateCredential,
}

var (
	updatePermissionCapability string
	updatePermissionDeny       bool
)

var updatePermissionCmd = &cobra.Command{
	Use:   "permission [item-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Enable or disable a capability of a toolbelt item",
	Long: "Enable or disable one capability of a toolbelt item.\n" +
		"Capabilities are deny-by-default: until you enable one explicitly, every\n" +
		"execution of it is refused.",
	RunE: runUpdatePermission,
}

func init() {
	updateCredentialCmd.Flags().StringVar(
		&updateCredentialKind,
		"kind",
		"",
		"secret slot to bind, as declared by the tool's catalog entry (eg- api_key)",
	)
	_ = updateCredentialCmd.MarkFlagRequired("kind")

	updatePermissionCmd.Flags().StringVar(
		&updatePermissionCapability,
		"capability",
		"",
		"capability name, as declared by the tool's catalog entry (eg- gmail.send)",
	)
	_ = updatePermissionCmd.MarkFlagRequired("capability")
	updatePermissionCmd.Flags().BoolVar(
		&updatePermissionDeny,
		"deny",
		false,
		"disable the capability instead of enabling it",
	)

	updateCmd.AddCommand(updateCredentialCmd)
	updateCmd.AddCommand(updatePermissionCmd)
	updateCmd.AddCommand(updateCatalogEntryCmd)
	rootCmd.AddCommand(updateCmd)
}

var updateCatalogEntryDisable bool

var updateCatalogEntryCmd = &cobra.Command{
	Use:   "catalog-entry [name]",
	Args:  cobra.ExactArgs(1),
	Short: "Enable or disable a catalog entry (admin only)",
	Long: "Enable or disable a tool template.\n" +
		"Disabling blocks new deployments; instances already running are unaffected.",
	RunE: runUpdateCatalogEntry,
}

func init() {
	updateCatalogEntryCmd.Flags().BoolVar(
		&updateCatalogEntryDisable,
		"disable",
		false,
		"disable the entry instead of enabling it",
	)
}

func runUpdateCatalogEntry(cmd *cobra.Command, args []string) error {
	enabled := !updateCatalogEntryDisable
	if err := apiClient.SetCatalogEntryEnabled(args[0], enabled); err != nil {
		return fmt.Errorf("failed to update catalog entry '%s': %w", args[0], err)
	}
	verb := "enabled"
	if !enabled {
		verb = "disabled"
	}
	cmd.Printf("Catalog entry '%s' %s\n", args[0], verb)
	return nil
}

func runUpdateCredential(cmd *cobra.Command, args []string) error {
	itemID, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	cmd.Println("Paste the secret and press Enter:")
	reader := bufio.NewReader(cmd.InOrStdin())
	secret, err := reader.ReadString('\n')
	if err != nil && secret == "" {
		return fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	secret = strings.TrimRight(secret, "\r\n")
	if secret == "" {
		return fmt.Errorf("secret must not be empty")
	}

	cred, err := apiClient.SetCredential(itemID, &types.SetCredentialInput{
		Kind:   updateCredentialKind,
		Secret: secret,
	})
	if err != nil {
		return fmt.Errorf("failed to set credential: %w", err)
	}

	cmd.Printf("Credential %s bound to item %d (%s)\n", cred.DisplayID, itemID, cred.Kind)
	return nil
}

func runUpdatePermission(cmd *cobra.Command, args []string) error {
	itemID, err := parseIDArg(args[0])
	if err != nil {
		return err
	}

	allowed := !updatePermissionDeny
	err = apiClient.SetCapabilityPermission(itemID, &types.SetCapabilityPermissionInput{
		Capability: updatePermissionCapability,
		Allowed:    allowed,
	})
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}

	verb := "enabled"
	if !allowed {
		verb = "disabled"
	}
	cmd.Printf("Capability '%s' %s for item %d\n", updatePermissionCapability, verb, itemID)
	return nil
}

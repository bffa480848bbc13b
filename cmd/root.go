// Package cmd implements the toolbox CLI: the control plane server, the host
// agent, and the client commands for managing agents, toolboxes and toolbelts.
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentopia/toolbox/client"
	"github.com/agentopia/toolbox/pkg/version"
)

const (
	// ServerURLEnvVar configures the control plane URL for client commands.
	ServerURLEnvVar = "TOOLBOX_SERVER_URL"

	// AccessTokenEnvVar supplies the caller's API access token.
	AccessTokenEnvVar = "TOOLBOX_ACCESS_TOKEN"

	serverURLDefault = "http://127.0.0.1:8080"
)

// subCommandGroup buckets subcommands in the help output.
type subCommandGroup string

const (
	subCommandGroupBasic    subCommandGroup = "basic"
	subCommandGroupAdvanced subCommandGroup = "advanced"
)

var (
	rootCmdServerURL   string
	rootCmdAccessToken string

	// apiClient is shared by all client subcommands. It is initialized in the
	// root command's PersistentPreRun, so it is available by the time any
	// RunE executes.
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:     "toolbox",
	Version: version.GetVersion(),
	Short:   "Toolbox gives your AI agents secure access to shared tool hosts",
	Long: "Toolbox is a control plane for running tools on shared compute hosts.\n" +
		"Admins provision Toolboxes and curate a tool catalog; agents assemble personal\n" +
		"toolbelts, bind their own credentials and execute tool capabilities.\n",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		serverURL := rootCmdServerURL
		if serverURL == "" {
			serverURL = os.Getenv(ServerURLEnvVar)
		}
		if serverURL == "" {
			serverURL = serverURLDefault
		}
		accessToken := rootCmdAccessToken
		if accessToken == "" {
			accessToken = os.Getenv(AccessTokenEnvVar)
		}
		apiClient = client.NewClient(serverURL, accessToken, &http.Client{Timeout: 2 * time.Minute})
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&rootCmdServerURL,
		"server",
		"",
		fmt.Sprintf("URL of the toolbox control plane (overrides env var %s)", ServerURLEnvVar),
	)
	rootCmd.PersistentFlags().StringVar(
		&rootCmdAccessToken,
		"access-token",
		"",
		fmt.Sprintf("API access token (overrides env var %s)", AccessTokenEnvVar),
	)

	rootCmd.SetUsageFunc(groupedUsageFunc)
}

// Execute runs the root command. It is the CLI entry point.
func Execute() error {
	return rootCmd.Execute()
}

// groupedUsageFunc renders the usage message with subcommands bucketed into
// their annotated groups, ordered by the "order" annotation within each.
func groupedUsageFunc(cmd *cobra.Command) error {
	out := cmd.OutOrStderr()

	fmt.Fprintf(out, "Usage:\n  %s\n", cmd.UseLine())
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(out, "  %s [command]\n", cmd.CommandPath())

		for _, group := range []subCommandGroup{subCommandGroupBasic, subCommandGroupAdvanced} {
			cmds := commandsInGroup(cmd, group)
			if len(cmds) == 0 {
				continue
			}
			label := strings.ToUpper(string(group[:1])) + string(group[1:])
			fmt.Fprintf(out, "\n%s Commands:\n", label)
			for _, sub := range cmds {
				fmt.Fprintf(out, "  %-15s %s\n", sub.Name(), sub.Short)
			}
		}

		if others := commandsInGroup(cmd, ""); len(others) > 0 {
			fmt.Fprintf(out, "\nOther Commands:\n")
			for _, sub := range others {
				fmt.Fprintf(out, "  %-15s %s\n", sub.Name(), sub.Short)
			}
		}
	}

	if cmd.HasAvailableLocalFlags() {
		fmt.Fprintf(out, "\nFlags:\n%s", cmd.LocalFlags().FlagUsages())
	}
	if cmd.HasAvailableInheritedFlags() {
		fmt.Fprintf(out, "\nGlobal Flags:\n%s", cmd.InheritedFlags().FlagUsages())
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(out, "\nUse \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())
	}
	return nil
}

func commandsInGroup(cmd *cobra.Command, group subCommandGroup) []*cobra.Command {
	var cmds []*cobra.Command
	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() {
			continue
		}
		if subCommandGroup(sub.Annotations["group"]) == group {
			cmds = append(cmds, sub)
		}
	}
	sort.Slice(cmds, func(i, j int) bool {
		oi, _ := strconv.Atoi(cmds[i].Annotations["order"])
		oj, _ := strconv.Atoi(cmds[j].Annotations["order"])
		return oi < oj
	})
	return cmds
}

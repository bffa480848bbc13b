package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentopia/toolbox/internal/hostagent"
)

var hostAgentCmdConfigFile string

var hostAgentCmd = &cobra.Command{
	Use:   "host-agent",
	Short: "Run the host agent on a Toolbox",
	Long: "Runs the host agent daemon on a provisioned Toolbox.\n" +
		"The agent manages tool containers via the local Docker daemon, reports\n" +
		"heartbeats to the control plane and serves the control plane's commands.\n\n" +
		"This command is normally launched by the host's startup payload, not by hand.\n" +
		"Configuration is read from " + hostagent.DefaultConfigFile + " (override with --config)\n" +
		"and from TOOLBOX_AGENT_* environment variables.",
	RunE: runHostAgent,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "2",
	},
}

func init() {
	hostAgentCmd.Flags().StringVarP(
		&hostAgentCmdConfigFile,
		"config",
		"c",
		hostagent.DefaultConfigFile,
		"Path to the host agent configuration file",
	)

	rootCmd.AddCommand(hostAgentCmd)
}

func runHostAgent(cmd *cobra.Command, args []string) error {
	cfg, err := hostagent.LoadConfig(hostAgentCmdConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load host agent configuration: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	runtime, err := hostagent.NewDockerRuntime()
	if err != nil {
		return fmt.Errorf("failed to connect to the container runtime: %w", err)
	}

	agent := hostagent.NewAgent(cfg, runtime, logger)
	return agent.Run(cmd.Context())
}

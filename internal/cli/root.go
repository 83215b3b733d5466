package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/logger"
)

const version = "0.1.0"

// NewRoot builds the agentctl command tree
func NewRoot(cfg *config.Config, log *logger.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operate the WhatsApp support agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newDocsCommand(cfg, log))
	root.AddCommand(newTokenCommand(cfg))
	root.AddCommand(newPendingCommand(cfg, log))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

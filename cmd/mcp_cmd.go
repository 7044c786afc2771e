package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pigeon/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio against the running daemon",
		Long: "Exposes scheduling and sending as MCP tools on stdin/stdout, so an\n" +
			"assistant can manage messages through the daemon. The daemon must be\n" +
			"running (`pigeon serve`).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return mcpserver.New(apiClient(), version).ServeStdio()
		},
	}
}

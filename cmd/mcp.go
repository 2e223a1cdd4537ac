package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rangelog/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an assistant start and end sessions and log targets for the
configured owner_id. Configure in Claude Code with:

  {
    "mcpServers": {
      "rangelog": { "command": "rangelog", "args": ["mcp"] }
    }
  }

Available tools: rangelog_start_session, rangelog_end_session,
rangelog_log_target, rangelog_session_stats, rangelog_list_sessions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ownerContext(); err != nil {
			return err
		}
		m, err := newManager()
		if err != nil {
			return err
		}
		return mcp.NewServer(m, viper.GetString("owner_id")).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

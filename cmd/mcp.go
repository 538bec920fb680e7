package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kernel/sfexplain/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server over stdio",
	Long: `Expose classify_page and explain_page as MCP tools over stdio so coding agents
can explain Salesforce pages. Nothing but protocol messages is written to stdout.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	ch, err := a.chain()
	if err != nil {
		return err
	}
	a.log.Info("starting MCP server", zap.String("version", metadata.Version))
	return mcp.Run(timedRunner{next: ch.pipeline, timeout: a.cfg.Timeout}, ch.service, metadata.Version)
}

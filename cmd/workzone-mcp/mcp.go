package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/workzone/workzone-mcp/internal/config"
	"github.com/workzone/workzone-mcp/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Serves JSON-RPC 2.0 on stdin/stdout. Frames may use Content-Length
headers or newline-delimited JSON; each response mirrors the request framing.
Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStdio(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runStdio(cmd *cobra.Command) error {
	_, deps, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	d := mcpserver.NewDispatcher(deps.Tools, config.DefaultMCPName, config.Version,
		mcpserver.WithMetrics(deps.Metrics))

	log.Info().Str("version", config.Version).Msg("starting Workzone MCP server (stdio)")
	if err := d.ServeStdio(cmd.Context(), os.Stdin, os.Stdout); err != nil && !isShutdown(err) {
		return err
	}
	return nil
}

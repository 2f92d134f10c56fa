package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/workzone/workzone-mcp/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serves /health, /metrics, the REST case routes and MCP over streamable
HTTP at /mcp.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, deps, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Port = port
		}

		srv := server.New(cfg, deps)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.Run(ctx)
		})

		log.Info().Str("addr", srv.Addr()).Str("env", cfg.Environment).Msg("starting Workzone MCP server (http)")
		if err := g.Wait(); err != nil && !isShutdown(err) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/workzone/workzone-mcp/internal/config"
	"github.com/workzone/workzone-mcp/internal/logging"
	"github.com/workzone/workzone-mcp/internal/server"
)

var rootCmd = &cobra.Command{
	Use:     "workzone-mcp",
	Short:   "Workzone case management MCP server",
	Long:    `Exposes Workzone case operations as MCP tools over stdio or HTTP.`,
	Version: config.Version,
	// Old launch scripts start the stdio server with a bare --mcp flag.
	RunE: func(cmd *cobra.Command, args []string) error {
		if legacy, _ := cmd.Flags().GetBool("mcp"); legacy {
			return runStdio(cmd)
		}
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().Bool("mcp", false, "Run the MCP server over stdio (same as the mcp command)")
	rootCmd.PersistentFlags().String("config", "", "Path to a JSON or YAML config file (overrides WORKZONE_CONFIG)")
}

// bootstrap loads configuration, configures logging and builds the shared
// object graph.
func bootstrap(cmd *cobra.Command) (*config.Config, *server.Dependencies, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("WORKZONE_CONFIG", path); err != nil {
			return nil, nil, fmt.Errorf("set config path: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.Environment)

	deps, err := server.NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, deps, nil
}

// isShutdown reports errors that mean a clean, signal-driven exit.
func isShutdown(err error) bool {
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutdown complete")
		return true
	}
	return false
}

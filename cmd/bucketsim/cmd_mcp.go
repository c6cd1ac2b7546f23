package main

import (
	"fmt"

	"github.com/nvandessel/bucketsim/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve bucketsim tools over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools:
  bucketsim_run   Run a simulation and return its verdicts, optionally saving it
  bucketsim_runs  List stored runs

Tool arguments left unset fall back to the effective configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "bucketsim",
				Version: version,
				Root:    root,
				Base:    cfg,
				Logger:  newLogger(cmd, cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to start mcp server: %w", err)
			}

			return server.Run(cmd.Context())
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/evantahler/botholomew-sub001/internal/server"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve every action as an MCP tool over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			return server.NewMCPServer(a.dispatcher, a.logger).Serve(cmd.Context())
		},
	}
}

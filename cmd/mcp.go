package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/engram/pkg/service"
)

var (
	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdio",
		Long:  longMCP,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			storage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			srv, err := service.NewMCPServer(storage, cfg)
			if err != nil {
				return err
			}

			// Protocol traffic owns stdout; logs go to stderr.
			log.Info("serving memory tools on stdio",
				"workspace", cfg.Workspace.Name,
				"agent", storage.Agent())

			return srv.Serve()
		},
	}
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var longMCP = `
Serve the memory tools over the Model Context Protocol on stdio, for use
as a tool server by MCP-capable agent runtimes.

Examples:
  # Serve the default workspace
  engram mcp

  # Serve with a fixed agent identity
  engram mcp --agent reviewer
`

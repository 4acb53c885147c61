package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/engram/pkg/service"
)

var (
	portFlag int
	hostFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the entity store over HTTP",
		Long:  longServe,
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

			srv, err := service.NewHTTPServer(storage, cfg)
			if err != nil {
				return err
			}

			addr := fmt.Sprintf("%s:%d", hostFlag, portFlag)
			log.Info("serving entity store",
				"addr", addr,
				"workspace", cfg.Workspace.Name,
				"agent", storage.Agent())

			return srv.Start(addr)
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 3210, "Port to serve on")
	serveCmd.Flags().StringVarP(&hostFlag, "host", "H", "0.0.0.0", "Host address to bind to")
}

var longServe = `
Serve the entity store over HTTP.

Examples:
  # Serve the default workspace on port 8080
  engram serve --port 8080

  # Serve as a specific agent identity
  engram serve --agent alice
`

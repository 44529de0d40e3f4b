/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/bubo/pkg/api"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the bubo REST API server. Flags override the configuration file.
The server stops on SIGINT or SIGTERM.

Examples:
  bubo serve
  bubo serve --port 9000 --api-key mysecretkey`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if container == nil {
				return errors.New("dependency container not initialized")
			}
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}

			cfg := configFrom(cmd)
			config := api.ServerConfig{
				Port:   cfg.Port,
				Bind:   cfg.Bind,
				APIKey: cfg.Security.APIKey,
			}
			if cmd.Flags().Changed("port") {
				config.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				config.Bind, _ = cmd.Flags().GetString("bind")
			}
			if cmd.Flags().Changed("api-key") {
				config.APIKey, _ = cmd.Flags().GetString("api-key")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			starter := container.GetServerFactory().CreateServerStarter()
			return starter.Serve(ctx, s, config)
		},
	}
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to")
	serveCmd.Flags().String("api-key", "", "API key required in X-API-Key (empty disables authentication)")
	return serveCmd
}

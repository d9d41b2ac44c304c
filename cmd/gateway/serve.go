package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apihttp "github.com/svcgate/gateway/adapters/http"
	"github.com/svcgate/gateway/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dataplane server",
	Long: `Start the gateway dataplane server.

The server will:
  - Load configuration from gateway.yaml (or --config)
  - Connect to the database and the rate-limit/quota counter store
  - Authenticate, authorize, rate-limit, dispatch, and transform every
    request against its resolved connector/endpoint

Examples:
  gateway serve
  gateway serve --config /etc/gateway/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Println("No configuration found.")
		fmt.Printf("Create %s, or specify one with --config.\n", cfgFile)
		fmt.Println("Run 'gateway validate' once it exists to check it before deploying.")
		return nil
	}

	apihttp.Version = version

	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	return app.Run()
}

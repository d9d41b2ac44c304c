package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Multi-tenant API gateway: managed, authenticated, rate-limited connectors",
	Long: `gateway fronts third-party HTTP/JSON APIs behind managed,
team-scoped, authenticated, rate-limited, cached, transformed endpoints.

Quick start:
  gateway validate   # check a config file before deploying
  gateway serve      # start the dataplane server`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gateway.yaml", "config file path")
}

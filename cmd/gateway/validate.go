package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svcgate/gateway/adapters/sqlite"
	"github.com/svcgate/gateway/config"
)

var validateCheckDatabase bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the gateway configuration file.

Checks:
  - YAML syntax and required fields are valid
  - kv.mode and usage.mode are one of their allowed values
  - vault.master_key_hex decodes to 32 bytes
  - database is writable (optional)

Examples:
  gateway validate
  gateway validate --config /etc/gateway/config.yaml --check-database`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s config valid\n", checkMark)

	fmt.Printf("  %s database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Printf("  %s kv mode: %s\n", checkMark, cfg.KV.Mode)
	fmt.Printf("  %s usage mode: %s\n", checkMark, cfg.Usage.Mode)
	fmt.Printf("  %s metrics enabled: %v\n", checkMark, cfg.Metrics.Enabled)

	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Database.DSN); err != nil {
			fmt.Printf("  %s database writable\n", crossMark)
			fmt.Printf("      error: %v\n", err)
		} else {
			fmt.Printf("  %s database writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

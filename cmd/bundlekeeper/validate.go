package main

import (
	"fmt"
	"os"

	"github.com/artpar/bundlekeeper/adapters/sqlite"
	"github.com/artpar/bundlekeeper/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the bundlekeeper configuration.

Checks:
  - YAML syntax is valid (or the environment alone is, without a file)
  - Values are in range and the timezone exists
  - Database is writable (optional)

Examples:
  bundlekeeper validate
  bundlekeeper validate --config /etc/bundlekeeper/config.yaml --check-database`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); err != nil {
		fmt.Fprintf(out, "  %s Config file not found, using environment\n", checkMark)
	} else {
		fmt.Fprintf(out, "  %s Config file exists\n", checkMark)
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Listen: %s\n", checkMark, cfg.Server.Addr())
	fmt.Fprintf(out, "  %s Database: %s\n", checkMark, cfg.Database.DSN)
	fmt.Fprintf(out, "  %s Bundle: %g MB, code %s\n", checkMark, cfg.Bundle.BundleSizeMB, cfg.Bundle.BundleCode)
	if cfg.Provider.UserID == "" || cfg.Provider.Token == "" {
		fmt.Fprintf(out, "  %s Provider credentials not set in file or environment\n", crossMark)
	} else {
		fmt.Fprintf(out, "  %s Provider credentials set\n", checkMark)
	}
	if cfg.Server.APIKey == "" && cfg.Server.APIKeyHash == "" {
		fmt.Fprintf(out, "  %s Operator API has no key\n", crossMark)
	}

	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Database.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

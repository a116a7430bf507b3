package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/artpar/bundlekeeper/bootstrap"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
	envFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and the operator API",
	Long: `Start bundlekeeper.

The server will:
  - Load variables from .env (or --env-file) when present
  - Load configuration from bundlekeeper.yaml (or --config)
  - Or load configuration from BUNDLEKEEPER_* environment variables
  - Open the database and seed the runtime config on first start
  - Run the adaptive check loop and renew bundles through the provider
  - Serve the operator API under /api, health checks and /metrics

Environment variables (for container deployments):
  BUNDLEKEEPER_DATABASE_DSN   - Database path (default: bundlekeeper.db)
  BUNDLEKEEPER_SERVER_PORT    - Server port (default: 8080)
  BUNDLEKEEPER_API_KEY        - Operator API key
  BUNDLEKEEPER_LOG_LEVEL      - Log level: debug, info, warn, error
  ODIDO_USER_ID, ODIDO_TOKEN  - Provider credentials

Examples:
  bundlekeeper serve
  bundlekeeper serve --config /etc/bundlekeeper/config.yaml
  bundlekeeper serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	app, err := bootstrap.Load(cfgFile, bootstrap.Options{
		Version:   version,
		HotReload: hotReload,
		Stdout:    cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}

// loadEnvFile loads path into the environment. Variables already set win,
// and a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

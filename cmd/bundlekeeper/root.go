package main

import (
	"fmt"
	"os"

	"github.com/artpar/bundlekeeper/bootstrap"
	"github.com/artpar/bundlekeeper/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bundlekeeper",
	Short: "Keeps a prepaid data allowance topped up",
	Long: `bundlekeeper tracks the remaining data of a prepaid bundle, estimates
how fast it is being used and buys a new bundle before it runs out.

Quick start:
  bundlekeeper serve        # Start the scheduler and operator API
  bundlekeeper status       # Show allowance, rate and recent logs

Operations:
  bundlekeeper add-bundle   # Credit allowance manually
  bundlekeeper usage        # Record or list consumption
  bundlekeeper config       # Show or change runtime settings
  bundlekeeper check        # Run one check cycle now`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log service activity to stderr")
}

// openService opens the store for a one-shot command. Service logs go to
// stderr and are limited to warnings unless --verbose is set.
func openService(cmd *cobra.Command) (*bootstrap.Service, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()

	svc, err := bootstrap.OpenService(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

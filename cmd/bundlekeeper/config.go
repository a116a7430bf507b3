package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the runtime bundle settings",
	Long: `Show or change the runtime bundle settings stored in the database.

Examples:
  bundlekeeper config show
  bundlekeeper config set bundle_code=A0DAY05 lead_time_minutes=45
  bundlekeeper config set auto_renew_enabled=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the runtime settings (token redacted)",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Update runtime settings",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(svc.Config().Redacted())
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	patch, err := parseAssignments(args)
	if err != nil {
		return err
	}

	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.UpdateConfig(cmd.Context(), patch); err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %d setting(s).\n", len(patch))
	return nil
}

// parseAssignments turns key=value arguments into a patch. Values stay
// strings; the config coerces them to each field's type.
func parseAssignments(args []string) (map[string]any, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected key=value", arg)
		}
		patch[key] = value
	}
	return patch, nil
}

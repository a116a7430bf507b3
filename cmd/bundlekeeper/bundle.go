package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	addAmount float64
	addKey    string
)

var addBundleCmd = &cobra.Command{
	Use:   "add-bundle",
	Short: "Credit allowance manually",
	Long: `Credit allowance to the local balance.

Without --amount the configured bundle size is credited. A repeated
--key is ignored, so retries of the same top-up never double-credit.

Examples:
  bundlekeeper add-bundle
  bundlekeeper add-bundle --amount 2048 --key receipt-1234`,
	RunE: runAddBundle,
}

func init() {
	rootCmd.AddCommand(addBundleCmd)

	addBundleCmd.Flags().Float64Var(&addAmount, "amount", 0, "amount in MB (default: configured bundle size)")
	addBundleCmd.Flags().StringVar(&addKey, "key", "", "idempotency key")
}

func runAddBundle(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	var amount *float64
	if cmd.Flags().Changed("amount") {
		amount = &addAmount
	}

	res, err := svc.ManualAddBundle(cmd.Context(), amount, addKey)
	if err != nil {
		return fmt.Errorf("failed to add bundle: %w", err)
	}

	out := cmd.OutOrStdout()
	if res.Replayed {
		fmt.Fprintf(out, "Key %s already used; nothing credited.\n", res.Key)
	} else {
		fmt.Fprintf(out, "Bundle added (key %s).\n", res.Key)
	}
	fmt.Fprintf(out, "Remaining: %.1f MB\n", res.State.RemainingMB)
	return nil
}

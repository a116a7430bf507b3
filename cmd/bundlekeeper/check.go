package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one check cycle now",
	Long: `Run a single check cycle against the database without starting the
scheduler: daily reset, rate estimate, renewal when due, next interval.

Do not run this while "serve" is using the same database; trigger a
check through POST /api/check instead.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.RunCheckCycle(cmd.Context())
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rate:          %.3f MB/min\n", res.RateMBPerMinute)
	if res.ETADefined {
		fmt.Fprintf(out, "Depletion in:  %.0f min\n", res.ETAMinutes)
	} else {
		fmt.Fprintf(out, "Depletion in:  -\n")
	}
	fmt.Fprintf(out, "Next check in: %g min\n", res.NextIntervalMinutes)
	if res.Renewed {
		fmt.Fprintf(out, "Bundle renewed. Remaining: %.1f MB\n", svc.State().RemainingMB)
	}
	return nil
}

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Record or list data consumption",
	Long: `Record or list data consumption.

Examples:
  bundlekeeper usage record --amount 12.5
  bundlekeeper usage record --amount 40 --at 2026-03-10T08:15:00Z
  bundlekeeper usage recent --limit 20`,
}

var usageRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record consumed data",
	RunE:  runUsageRecord,
}

var usageRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recent usage events",
	RunE:  runUsageRecent,
}

var (
	usageAmount float64
	usageAt     string
	usageLimit  int
)

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.AddCommand(usageRecordCmd)
	usageCmd.AddCommand(usageRecentCmd)

	usageRecordCmd.Flags().Float64Var(&usageAmount, "amount", 0, "consumed amount in MB")
	usageRecordCmd.Flags().StringVar(&usageAt, "at", "", "observation time, RFC 3339 or epoch seconds (default: now)")
	usageRecordCmd.MarkFlagRequired("amount")

	usageRecentCmd.Flags().IntVar(&usageLimit, "limit", 20, "number of events to show")
}

func runUsageRecord(cmd *cobra.Command, args []string) error {
	at, err := parseTimeFlag(usageAt)
	if err != nil {
		return err
	}

	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	st, err := svc.SimulateUsage(cmd.Context(), usageAmount, at)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recorded %g MB.\n", usageAmount)
	fmt.Fprintf(out, "Remaining: %.1f MB (used today: %.1f MB)\n", st.RemainingMB, st.UsedTodayMB)
	return nil
}

func runUsageRecent(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	events, err := svc.RecentUsage(cmd.Context(), usageLimit)
	if err != nil {
		return fmt.Errorf("failed to get usage: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No usage recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tAMOUNT (MB)")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%g\n", e.ID, formatTime(e.Timestamp), e.AmountMB)
	}
	return w.Flush()
}

// parseTimeFlag accepts RFC 3339 or epoch seconds. Empty means zero.
func parseTimeFlag(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or epoch seconds", v)
	}
	return time.Unix(0, int64(sec*float64(time.Second))), nil
}

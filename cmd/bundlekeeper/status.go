package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show allowance, consumption rate and recent logs",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status document as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	status, err := svc.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	st := status.State.State()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Remaining:\t%.1f MB\n", st.RemainingMB)
	fmt.Fprintf(w, "Used today:\t%.1f MB\n", st.UsedTodayMB)
	fmt.Fprintf(w, "Total used:\t%.1f MB\n", st.TotalUsedMB)
	fmt.Fprintf(w, "Rate:\t%.3f MB/min\n", status.RateMBPerMin)
	if status.ETAMinutes != nil {
		fmt.Fprintf(w, "Depletion in:\t%.0f min\n", *status.ETAMinutes)
	} else {
		fmt.Fprintf(w, "Depletion in:\t-\n")
	}
	fmt.Fprintf(w, "Expires:\t%s\n", formatTime(st.ExpiresAt))
	fmt.Fprintf(w, "Next check:\t%s\n", formatTime(st.NextCheckAt))
	fmt.Fprintf(w, "Next reset:\t%s\n", formatTime(st.NextResetAt))
	fmt.Fprintf(w, "Auto-renew:\t%s\n", autoRenewLabel(status.Config))
	w.Flush()

	if len(status.Logs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Recent logs:")
		for _, rec := range status.Logs {
			fmt.Fprintf(out, "  %s %-7s %s\n", formatTime(bundle.TimeFromEpoch(rec.TS)), rec.Level, rec.Message)
		}
	}
	return nil
}

func autoRenewLabel(cfg bundle.Config) string {
	if !cfg.AutoRenewEnabled {
		return "off"
	}
	return "on (" + cfg.BundleCode + ")"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

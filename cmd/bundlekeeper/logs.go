package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent audit log entries",
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVar(&logsLimit, "limit", 100, "number of entries to show")
}

func runLogs(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	entries, err := svc.Logs(cmd.Context(), logsLimit)
	if err != nil {
		return fmt.Errorf("failed to get logs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No log entries.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s %-7s %s\n", formatTime(e.Timestamp), e.Level, e.Message)
	}
	return nil
}

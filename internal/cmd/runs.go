package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/faize-ai/diskconv/internal/run"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded conversion runs",
	Long:  `List the conversion runs recorded in ~/.diskconv/runs, newest first.`,
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	store, err := openRunStore()
	if err != nil {
		return fmt.Errorf("failed to access run store: %w", err)
	}

	records, err := store.List(nil)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	writeRuns(cmd.OutOrStdout(), store.Dir(), records)
	return nil
}

func writeRuns(out io.Writer, dir string, records []*run.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintf(out, "No recorded runs in %s.\n", dir)
		return
	}

	// Create tabwriter for aligned output
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDOMAIN\tFORMAT\tDISKS\tSTATUS\tSTARTED")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-----\t------\t-------")

	for _, record := range records {
		started := record.StartedAt.Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			shortID(record.ID),
			record.Domain,
			record.TargetFormat,
			record.Completed(), len(record.Tasks),
			record.Status,
			started,
		)
	}

	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

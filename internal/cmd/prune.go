package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/faize-ai/diskconv/internal/run"
)

var pruneAll bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove recorded conversion runs",
	Long: `Remove run records from ~/.diskconv/runs.

By default only committed runs are removed. Use --all to also remove
failed, partial and unfinished runs.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVarP(&pruneAll, "all", "a", false, "remove all run records, not only committed ones")
}

func runPrune(cmd *cobra.Command, args []string) error {
	store, err := openRunStore()
	if err != nil {
		return fmt.Errorf("failed to access run store: %w", err)
	}
	_, err = pruneRuns(cmd.OutOrStdout(), store, pruneAll)
	return err
}

// pruneRuns deletes committed records, or every record with all. A failed
// deletion is reported and the remaining records are still processed.
func pruneRuns(w io.Writer, store *run.Store, all bool) (int, error) {
	var match run.Filter
	if !all {
		match = run.WithStatus(run.StatusCommitted)
	}
	records, err := store.List(match)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}

	removedCount := 0
	for _, record := range records {
		if err := store.Delete(record.ID); err != nil {
			printWarning(w, "failed to delete run %s: %v", record.ID, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "Removed run: %s (%s)\n", shortID(record.ID), record.Domain)
		removedCount++
	}

	if removedCount == 0 {
		_, _ = fmt.Fprintln(w, "No runs to remove.")
	} else {
		_, _ = fmt.Fprintf(w, "Removed %d run(s).\n", removedCount)
	}
	return removedCount, nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faize-ai/diskconv/internal/convert"
	"github.com/faize-ai/diskconv/internal/run"
)

var (
	convertDomainName      string
	convertFormat          string
	convertAppendExtension bool
	convertShowProgress    bool
	convertRemoveOld       bool
	convertKeepOwnership   bool
	convertKeepPermissions bool
	convertCommitPartial   bool
	convertTasks           []int
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the disk images of a domain",
	Long: `Convert every file-backed disk image of a shut-off domain to the target
format and define the updated domain configuration.

Tasks run one at a time. The first failure aborts the run; with
--commit-partial the disks converted so far are still written to the
domain configuration.

Examples:
  diskconv convert -n vm1
  diskconv convert -n vm1 -f qcow2 -x -p
  diskconv convert -n vm1 -x -r -o -k
  diskconv convert -n vm1 --task 0 --task 2`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertDomainName, "domain", "n", "", "name of the domain the disks should be converted for (required)")
	convertCmd.Flags().StringVarP(&convertFormat, "output-format", "f", "", "target image format (default from config, qcow2)")
	convertCmd.Flags().BoolVarP(&convertAppendExtension, "add-type-extension", "x", false, "use the target format as file extension of the converted images")
	convertCmd.Flags().BoolVarP(&convertShowProgress, "show-progress-bar", "p", false, "show the converter's progress bar")
	convertCmd.Flags().BoolVarP(&convertRemoveOld, "remove-old-files", "r", false, "remove the old images after the configuration is updated")
	convertCmd.Flags().BoolVarP(&convertKeepOwnership, "keep-file-ownership", "o", false, "give converted images the owner and group of the old images")
	convertCmd.Flags().BoolVarP(&convertKeepPermissions, "keep-file-permissions", "k", false, "give converted images the permissions of the old images")
	convertCmd.Flags().BoolVar(&convertCommitPartial, "commit-partial", false, "update the configuration with completed conversions when a task fails")
	convertCmd.Flags().IntSliceVar(&convertTasks, "task", nil, "only run the tasks with these plan indices (see 'diskconv plan')")
	_ = convertCmd.MarkFlagRequired("domain")

	rootCmd.AddCommand(convertCmd)
}

// convertOptions are the resolved settings of one convert run
type convertOptions struct {
	Domain          string
	Format          string
	AppendExtension bool
	ShowProgress    bool
	RemoveOldFiles  bool
	KeepOwnership   bool
	KeepPermissions bool
	CommitPartial   bool
	Tasks           []int
}

func runConvert(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	opts := convertOptions{
		Domain:          convertDomainName,
		Format:          convertFormat,
		AppendExtension: convertAppendExtension,
		ShowProgress:    convertShowProgress,
		RemoveOldFiles:  convertRemoveOld,
		KeepOwnership:   convertKeepOwnership,
		KeepPermissions: convertKeepPermissions,
		CommitPartial:   convertCommitPartial,
		Tasks:           convertTasks,
	}

	// Config defaults apply unless the flag was given
	flags := cmd.Flags()
	if !flags.Changed("output-format") {
		opts.Format = env.cfg.Defaults.Format
	}
	if !flags.Changed("add-type-extension") {
		opts.AppendExtension = env.cfg.Defaults.ShouldAppendExtension()
	}
	if !flags.Changed("keep-file-ownership") {
		opts.KeepOwnership = env.cfg.Defaults.ShouldKeepOwnership()
	}
	if !flags.Changed("keep-file-permissions") {
		opts.KeepPermissions = env.cfg.Defaults.ShouldKeepPermissions()
	}

	store, err := openRunStore()
	if err != nil {
		// Run history is optional
		Debug("Run records disabled: %v", err)
		store = nil
	}

	return convertDomain(cmd.Context(), env, store, opts, cmd.OutOrStdout())
}

// convertDomain runs inspect, plan, execute and commit for one domain,
// printing progress to w and recording the run in store when non-nil.
func convertDomain(ctx context.Context, env *environment, store *run.Store, opts convertOptions, w io.Writer) error {
	pipeline := env.pipeline(w)

	session, err := pipeline.Prepare(opts.Domain, opts.Format, opts.AppendExtension)
	if err != nil {
		return err
	}

	if len(session.Tasks) == 0 {
		_, _ = fmt.Fprintf(w, "All disks of domain '%s' already use format '%s', nothing to convert.\n", opts.Domain, opts.Format)
		return nil
	}

	_, _ = fmt.Fprintf(w, "Conversion tasks for domain '%s':\n", opts.Domain)
	printTaskList(w, session.Tasks)
	_, _ = fmt.Fprintln(w)

	record := run.NewRecord(opts.Domain, env.cfg.Connection.URI, opts.Format)
	saveRecord(w, store, record, session)

	execOpts := convert.ExecuteOptions{
		ShowProgress:    opts.ShowProgress,
		KeepOwnership:   opts.KeepOwnership,
		KeepPermissions: opts.KeepPermissions,
	}

	execErr := pipeline.Execute(ctx, session, execOpts, opts.Tasks)
	if execErr != nil {
		record.Status = run.StatusFailed
		record.Error = execErr.Error()

		if !opts.CommitPartial || session.Completed() == 0 {
			printError(w, "Conversion aborted, domain configuration not changed")
			finishRecord(w, store, record, session)
			return execErr
		}

		printWarning(w, "conversion aborted, committing %d completed task(s)", session.Completed())
		result, err := pipeline.Commit(session, opts.RemoveOldFiles)
		if err != nil {
			printError(w, "Failed to update domain configuration: %v", err)
			finishRecord(w, store, record, session)
			return execErr
		}
		record.Status = run.StatusPartial
		reportCommit(w, record, result)
		finishRecord(w, store, record, session)
		return execErr
	}

	result, err := pipeline.Commit(session, opts.RemoveOldFiles)
	if err != nil {
		record.Status = run.StatusFailed
		record.Error = err.Error()
		finishRecord(w, store, record, session)
		return err
	}

	record.Status = run.StatusCommitted
	if session.Completed() < len(session.Tasks) {
		// --task left some disks unconverted
		record.Status = run.StatusPartial
	}
	reportCommit(w, record, result)
	finishRecord(w, store, record, session)

	printSuccess(w, "Domain '%s' updated: %d of %d disk(s) converted to %s",
		opts.Domain, session.Completed(), len(session.Tasks), opts.Format)
	return nil
}

// reportCommit prints the cleanup outcome and copies it into record
func reportCommit(w io.Writer, record *run.Record, result *convert.CommitResult) {
	for _, path := range result.Removed {
		_, _ = fmt.Fprintf(w, "Removed old image: %s\n", path)
	}
	for _, path := range result.Kept {
		_, _ = fmt.Fprintf(w, "Kept %s (converted in place)\n", path)
	}
	for _, err := range result.CleanupErrors {
		printWarning(w, "%v", err)
	}
	record.Removed = result.Removed
}

func snapshotTasks(session *convert.Session) []run.TaskRecord {
	records := make([]run.TaskRecord, 0, len(session.Tasks))
	for _, task := range session.Tasks {
		records = append(records, run.TaskRecord{
			Source:       task.Disk.SourcePath,
			SourceFormat: task.Disk.DriverFormat,
			Destination:  task.DestinationPath,
			TargetFormat: task.TargetFormat,
			OwnerID:      task.OwnerID,
			GroupID:      task.GroupID,
			Permissions:  task.Permissions,
			Completed:    task.Completed,
		})
	}
	return records
}

func saveRecord(w io.Writer, store *run.Store, record *run.Record, session *convert.Session) {
	if store == nil {
		return
	}
	record.Tasks = snapshotTasks(session)
	if err := store.Save(record); err != nil {
		printWarning(w, "failed to save run record: %v", err)
		return
	}
	logger.Debug("run record saved", zap.String("id", record.ID), zap.String("status", record.Status))
}

func finishRecord(w io.Writer, store *run.Store, record *run.Record, session *convert.Session) {
	now := time.Now()
	record.FinishedAt = &now
	saveRecord(w, store, record, session)
}

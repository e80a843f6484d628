package convert

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/faize-ai/diskconv/internal/fsops"
	"github.com/faize-ai/diskconv/internal/logging"
	"github.com/faize-ai/diskconv/internal/qemuimg"
)

// ExecuteOptions controls how tasks are run.
type ExecuteOptions struct {
	// ShowProgress lets the converter draw its progress bar on the terminal
	ShowProgress bool
	// KeepOwnership restores the source owner and group on the destination
	KeepOwnership bool
	// KeepPermissions restores the source permission bits on the destination
	KeepPermissions bool
}

// Executor runs conversion tasks one at a time and is the only writer of the
// domain document.
type Executor struct {
	converter Converter
	fs        fsops.FS
	out       io.Writer
	log       *zap.Logger
	probed    bool
}

// NewExecutor creates an Executor. Progress headers are written to out
// (io.Discard when nil).
func NewExecutor(converter Converter, fs fsops.FS, out io.Writer, log *zap.Logger) *Executor {
	if out == nil {
		out = io.Discard
	}
	return &Executor{converter: converter, fs: fs, out: out, log: logging.OrNop(log)}
}

// ExecuteAll runs tasks in order. The first failure stops the batch: later
// tasks are not started and keep Completed=false, earlier tasks stay
// completed and keep their document changes.
func (e *Executor) ExecuteAll(ctx context.Context, tasks []*Task, opts ExecuteOptions) error {
	if err := e.probe(ctx); err != nil {
		return err
	}

	for idx, task := range tasks {
		if err := e.Execute(ctx, task, opts); err != nil {
			e.log.Error("task failed, aborting",
				zap.Int("task", task.Index),
				zap.Int("remaining", len(tasks)-idx-1),
				zap.Error(err))
			return fmt.Errorf("task %d: %w", task.Index, err)
		}
	}
	return nil
}

// Execute runs a single task: convert, restore ownership and permissions if
// requested, then rewrite the disk node and mark the task completed. The node
// is left untouched unless every step succeeds. Completed tasks are skipped.
func (e *Executor) Execute(ctx context.Context, task *Task, opts ExecuteOptions) error {
	if task.Completed {
		return nil
	}
	if err := e.probe(ctx); err != nil {
		return err
	}

	source := task.Disk.SourcePath
	log := e.log.With(
		zap.String("source", source),
		zap.String("destination", task.DestinationPath),
		zap.String("from", task.Disk.DriverFormat),
		zap.String("to", task.TargetFormat))

	if opts.ShowProgress {
		_, _ = fmt.Fprintf(e.out, "\nconvert image '%s' from format '%s' to '%s'\n",
			source, task.Disk.DriverFormat, task.TargetFormat)
	}

	log.Info("converting image")
	err := e.converter.Convert(ctx, qemuimg.Request{
		SourceFormat: task.Disk.DriverFormat,
		TargetFormat: task.TargetFormat,
		Source:       source,
		Destination:  task.DestinationPath,
		Progress:     opts.ShowProgress,
	})
	if err != nil {
		if errors.Is(err, qemuimg.ErrNotFound) {
			return fmt.Errorf("%w: converting '%s': %w", ErrToolUnavailable, source, err)
		}
		return fmt.Errorf("%w: failed to convert '%s' from format '%s' to '%s': %w",
			ErrConversionFailed, source, task.Disk.DriverFormat, task.TargetFormat, err)
	}

	if opts.KeepOwnership {
		if err := e.fs.Chown(task.DestinationPath, task.OwnerID, task.GroupID); err != nil {
			return fmt.Errorf("%w: failed to set ownership for file '%s': %w", ErrAccess, task.DestinationPath, err)
		}
	}
	if opts.KeepPermissions {
		if err := e.fs.Chmod(task.DestinationPath, task.Permissions); err != nil {
			return fmt.Errorf("%w: failed to set permissions for file '%s': %w", ErrAccess, task.DestinationPath, err)
		}
	}

	if err := task.Disk.Node.Retarget(task.TargetFormat, task.DestinationPath); err != nil {
		return fmt.Errorf("%w: disk '%s': %w", ErrValidation, source, err)
	}
	task.Completed = true
	log.Info("image converted")

	return nil
}

func (e *Executor) probe(ctx context.Context) error {
	if e.probed {
		return nil
	}
	if err := e.converter.Probe(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrToolUnavailable, err)
	}
	e.probed = true
	return nil
}

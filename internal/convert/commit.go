package convert

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/faize-ai/diskconv/internal/domxml"
	"github.com/faize-ai/diskconv/internal/fsops"
	"github.com/faize-ai/diskconv/internal/logging"
	"github.com/faize-ai/diskconv/internal/virt"
)

// CommitResult reports what Commit did after the configuration was defined.
type CommitResult struct {
	// Removed lists superseded source images that were deleted
	Removed []string
	// Kept lists sources of completed tasks that were converted in place and
	// therefore not deleted
	Kept []string
	// CleanupErrors holds one ErrCleanup-wrapped error per failed removal
	CleanupErrors []error
}

// Committer persists the document and cleans up old images.
type Committer struct {
	conn virt.Connection
	fs   fsops.FS
	log  *zap.Logger
}

// NewCommitter creates a Committer.
func NewCommitter(conn virt.Connection, fs fsops.FS, log *zap.Logger) *Committer {
	return &Committer{conn: conn, fs: fs, log: logging.OrNop(log)}
}

// Commit defines doc as the domain's new configuration in a single call. With
// removeOldFiles, the source image of every completed task is then deleted;
// a failed deletion is recorded in the result and does not stop the others.
// The returned error is non-nil only when persisting fails, in which case no
// file is removed.
func (c *Committer) Commit(doc *domxml.Document, tasks []*Task, removeOldFiles bool) (*CommitResult, error) {
	xml, err := doc.String()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize domain description: %w", ErrPersistence, err)
	}
	if err := c.conn.DefineXML(xml); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	c.log.Info("domain configuration updated",
		zap.String("domain", doc.Name()),
		zap.Int("converted", len(CompletedTasks(tasks))))

	result := &CommitResult{}
	if !removeOldFiles {
		return result, nil
	}

	for _, task := range CompletedTasks(tasks) {
		source := task.Disk.SourcePath
		if source == task.DestinationPath {
			// The converted image replaced the source file
			result.Kept = append(result.Kept, source)
			continue
		}
		if err := c.fs.Remove(source); err != nil {
			c.log.Warn("failed to remove old image", zap.String("path", source), zap.Error(err))
			result.CleanupErrors = append(result.CleanupErrors,
				fmt.Errorf("%w: '%s': %w", ErrCleanup, source, err))
			continue
		}
		c.log.Debug("removed old image", zap.String("path", source))
		result.Removed = append(result.Removed, source)
	}

	return result, nil
}

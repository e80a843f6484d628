package convert

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/faize-ai/diskconv/internal/driver"
	"github.com/faize-ai/diskconv/internal/fsops"
	"github.com/faize-ai/diskconv/internal/logging"
)

// Planner turns disks into conversion tasks. It reads file metadata but never
// writes files or touches the document.
type Planner struct {
	fs      fsops.FS
	drivers driver.Registry
	log     *zap.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(fs fsops.FS, drivers driver.Registry, log *zap.Logger) *Planner {
	return &Planner{fs: fs, drivers: drivers, log: logging.OrNop(log)}
}

// Plan builds one task per disk not already in targetFormat, in disk order.
// Destination paths are not checked for collisions, neither between tasks nor
// with existing files.
func (p *Planner) Plan(disks []DiskDescriptor, targetFormat string, appendExtension bool) ([]*Task, error) {
	tasks := []*Task{}
	for _, disk := range disks {
		if disk.DriverFormat == targetFormat {
			p.log.Debug("disk already in target format",
				zap.String("source", disk.SourcePath), zap.String("format", targetFormat))
			continue
		}

		drv, ok := p.drivers.Lookup(disk.DriverName)
		if !ok {
			return nil, fmt.Errorf("%w: unknown disk driver name '%s' for %s",
				ErrValidation, disk.DriverName, disk.SourcePath)
		}
		if !drv.Supports(targetFormat) {
			return nil, fmt.Errorf("%w: target format '%s' not supported for disk using driver '%s' (supported: %s)",
				ErrValidation, targetFormat, disk.DriverName, strings.Join(drv.FormatNames(), ", "))
		}

		attrs, err := p.fs.Probe(disk.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to access file '%s': %w", ErrAccess, disk.SourcePath, err)
		}

		destination := disk.SourcePath
		if appendExtension {
			destination = ReplaceExtension(disk.SourcePath, drv.Extension(targetFormat))
		}

		tasks = append(tasks, &Task{
			Index:           len(tasks),
			Disk:            disk,
			TargetFormat:    targetFormat,
			DestinationPath: destination,
			OwnerID:         attrs.UID,
			GroupID:         attrs.GID,
			Permissions:     attrs.Mode,
		})
	}
	return tasks, nil
}

// ReplaceExtension swaps the extension of path's last element for ext.
// Leading dots of the file name do not start an extension, so
// "/vm/.hidden" becomes "/vm/.hidden.qcow2".
//
//   - "/vm/disk.img" -> "/vm/disk.qcow2"
//   - "/vm/disk"     -> "/vm/disk.qcow2"
//   - "/vm/a.b.raw"  -> "/vm/a.b.qcow2"
func ReplaceExtension(path, ext string) string {
	dir, base := filepath.Split(path)
	stem := strings.TrimLeft(base, ".")
	dots := base[:len(base)-len(stem)]
	if i := strings.LastIndex(stem, "."); i >= 0 {
		stem = stem[:i]
	}
	return dir + dots + stem + "." + ext
}

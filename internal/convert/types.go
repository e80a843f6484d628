package convert

import (
	"context"
	"fmt"

	"github.com/faize-ai/diskconv/internal/domxml"
	"github.com/faize-ai/diskconv/internal/qemuimg"
)

// DiskDescriptor is a validated file-backed disk entry of a domain.
type DiskDescriptor struct {
	// Node references the <disk> element inside the run's document.
	Node *domxml.Disk

	DriverName   string
	DriverFormat string
	SourcePath   string
	TargetDev    string
}

// Task is a planned, and later executed, conversion of one disk.
type Task struct {
	// Index is the task's position in the plan, as shown to the operator
	Index int

	Disk            DiskDescriptor
	TargetFormat    string
	DestinationPath string

	// Ownership and permissions of the source at planning time
	OwnerID     int
	GroupID     int
	Permissions uint32

	Completed bool
}

// String renders the task as "[raw]:/vm/a.img -> [qcow2]:/vm/a.qcow2".
func (t *Task) String() string {
	return fmt.Sprintf("[%s]:%s -> [%s]:%s",
		t.Disk.DriverFormat, t.Disk.SourcePath, t.TargetFormat, t.DestinationPath)
}

// Converter performs the byte-level image conversion.
type Converter interface {
	// Probe checks the converter can be invoked.
	Probe(ctx context.Context) error
	// Convert blocks until the conversion described by req finishes.
	Convert(ctx context.Context, req qemuimg.Request) error
}

// CompletedTasks returns the tasks with Completed set, in order.
func CompletedTasks(tasks []*Task) []*Task {
	var done []*Task
	for _, t := range tasks {
		if t.Completed {
			done = append(done, t)
		}
	}
	return done
}

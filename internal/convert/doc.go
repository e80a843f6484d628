// Package convert converts the disk images of a powered-off libvirt domain and
// rewrites the domain configuration to reference the converted images.
//
// A run goes through four stages, strictly in order:
//   - Inspector: looks up the domain, checks it is shut off and collects its
//     file-backed disks, validating driver name, format and source path
//   - Planner: turns the disks into an ordered list of Tasks, skipping disks
//     already in the target format and snapshotting source ownership
//   - Executor: runs the converter for each task, one at a time, and only then
//     points the disk node in the document at the new image
//   - Committer: defines the (possibly partially) updated document and
//     optionally removes the superseded source images
//
// The in-memory document is written by the Executor only, and a disk node is
// rewritten if and only if its task is Completed. Every failure is returned as
// an error wrapping one of the Err* kinds in errors.go; nothing in this package
// exits the process.
package convert

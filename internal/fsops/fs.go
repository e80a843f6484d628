// Package fsops provides the filesystem operations diskconv performs on disk
// image files.
//
// All image file metadata reads and mutations go through the FS interface so
// the conversion pipeline can be tested without root privileges.
package fsops

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PermMask selects permission bits (including setuid, setgid and sticky)
// from a raw st_mode.
const PermMask = 0o7777

// Attrs is the ownership and permission snapshot of a file.
type Attrs struct {
	UID  int
	GID  int
	Mode uint32 // permission bits only, see PermMask
}

// FS provides an abstraction for image file operations.
type FS interface {
	// Probe opens path read-write and returns its ownership and permissions.
	// It fails when the file is missing or not writable by the caller.
	Probe(path string) (Attrs, error)

	// Chown sets the owner and group of path.
	Chown(path string, uid, gid int) error

	// Chmod sets the permission bits of path.
	Chmod(path string, mode uint32) error

	// Remove deletes a file.
	Remove(path string) error
}

// RealFS implements FS using actual OS operations.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

// Probe opens path read-write and fstat's the open descriptor.
func (fs *RealFS) Probe(path string) (Attrs, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return Attrs{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return Attrs{}, fmt.Errorf("fstat %s: %w", path, err)
	}

	return Attrs{
		UID:  int(st.Uid),
		GID:  int(st.Gid),
		Mode: uint32(st.Mode) & PermMask,
	}, nil
}

// Chown sets the owner and group of path.
func (fs *RealFS) Chown(path string, uid, gid int) error {
	if err := unix.Chown(path, uid, gid); err != nil {
		return &os.PathError{Op: "chown", Path: path, Err: err}
	}
	return nil
}

// Chmod sets the permission bits of path, including special bits.
func (fs *RealFS) Chmod(path string, mode uint32) error {
	if err := unix.Chmod(path, mode&PermMask); err != nil {
		return &os.PathError{Op: "chmod", Path: path, Err: err}
	}
	return nil
}

// Remove deletes a file.
func (fs *RealFS) Remove(path string) error {
	return os.Remove(path)
}

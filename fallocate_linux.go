//go:build linux

package compactvec

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile reserves size bytes for the output container so a full disk
// fails here instead of raising SIGBUS on a mapped write.
func fallocateFile(file *os.File, size int64) error {
	fd := int(file.Fd())
	if err := unix.Fallocate(fd, 0, 0, size); err != nil {
		// Filesystems without fallocate (NFS, some FUSE mounts)
		return unix.Ftruncate(fd, size)
	}
	return unix.Ftruncate(fd, size)
}

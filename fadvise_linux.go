//go:build linux

package compactvec

import "golang.org/x/sys/unix"

// fadviseSequential hints that the transform map or a container being
// loaded into memory will be read front to back. Errors are ignored.
func fadviseSequential(fd int, offset, length int64) {
	_ = unix.Fadvise(fd, offset, length, unix.FADV_SEQUENTIAL)
}

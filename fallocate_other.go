//go:build !linux && !darwin

package compactvec

import "os"

// fallocateFile sets the container length. Disk blocks may not be reserved.
func fallocateFile(file *os.File, size int64) error {
	return file.Truncate(size)
}

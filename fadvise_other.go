//go:build !linux

package compactvec

// fadviseSequential is a no-op outside Linux.
func fadviseSequential(fd int, offset, length int64) {}

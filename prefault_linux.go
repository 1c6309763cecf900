//go:build linux

package compactvec

import "golang.org/x/sys/unix"

// MADV_POPULATE_READ and MADV_POPULATE_WRITE were added in Linux 5.14.
// Older kernels reject them with EINVAL.
const (
	madvPopulateRead  = 22
	madvPopulateWrite = 23
)

// prefaultWrite populates a writable mapping so workers filling disjoint
// parts of it do not serialize on page faults. Best-effort.
func prefaultWrite(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, madvPopulateWrite)
}

// prefaultRead populates a read-only mapping so lookups never fault. On
// kernels without MADV_POPULATE_READ it falls back to MADV_WILLNEED, which
// only starts asynchronous readahead. Best-effort.
func prefaultRead(data []byte) {
	if len(data) == 0 {
		return
	}
	if err := unix.Madvise(data, madvPopulateRead); err != nil {
		_ = unix.Madvise(data, unix.MADV_WILLNEED)
	}
}

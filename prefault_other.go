//go:build !linux

package compactvec

// prefaultWrite is a no-op outside Linux.
func prefaultWrite(data []byte) {}

// prefaultRead touches one byte per page so the mapping is resident before
// the first lookup.
func prefaultRead(data []byte) {
	const pageSize = 4096
	var sink byte
	for i := 0; i < len(data); i += pageSize {
		sink ^= data[i]
	}
	_ = sink
}

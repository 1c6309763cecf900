package compactvec

import (
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
)

// containerWriter writes a container through a read-write mapping of the
// output file. The container size is known from the header, so the file is
// allocated once at its final size and every region is written in place.
type containerWriter struct {
	file *os.File
	mmap mmap.MMap
	data []byte

	header header
	layout layout
}

// newContainerWriter creates path, allocates it to the exact container size
// and maps it.
func newContainerWriter(path string, hdr header) (*containerWriter, error) {
	l := hdr.layout()

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create container file: %w", err)
	}

	// Pre-allocate disk blocks to prevent SIGBUS on disk full
	if err := fallocateFile(file, l.size); err != nil {
		primaryErr := fmt.Errorf("allocate disk space: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	mm, err := mmap.MapRegion(file, int(l.size), mmap.RDWR, 0, 0)
	if err != nil {
		primaryErr := fmt.Errorf("mmap container file: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	cw := &containerWriter{
		file:   file,
		mmap:   mm,
		data:   []byte(mm),
		header: hdr,
		layout: l,
	}

	// Workers write the packed region concurrently; populate it up front.
	prefaultWrite(cw.data[l.packed:l.size])
	return cw, nil
}

func (cw *containerWriter) slots() []byte {
	return cw.data[cw.layout.slots:cw.layout.chars]
}

func (cw *containerWriter) chars() []byte {
	return cw.data[cw.layout.chars:cw.layout.freq]
}

func (cw *containerWriter) freq() []byte {
	return cw.data[cw.layout.freq:cw.layout.dense]
}

// denseRow returns the bytes of restricted word id's vector.
func (cw *containerWriter) denseRow(id int) []byte {
	n := 4 * int64(cw.header.Dim)
	off := cw.layout.dense + int64(id)*n
	return cw.data[off : off+n]
}

// packedRow returns the packed bytes of the subword bucket at rank.
func (cw *containerWriter) packedRow(rank int) []byte {
	n := int64(cw.header.Dim / 2)
	off := cw.layout.packed + int64(rank)*n
	return cw.data[off : off+n]
}

func (cw *containerWriter) minmax() []byte {
	return cw.data[cw.layout.minmax:cw.layout.size]
}

// finalize writes the header, flushes the mapping and closes the file. It
// returns the xxhash64 digest of the complete container. On error it
// delegates to close for idempotent cleanup; on success close is a no-op.
func (cw *containerWriter) finalize() (uint64, error) {
	cw.header.encodeTo(cw.data[:headerSize])
	digest := xxhash.Sum64(cw.data)

	// Flush dirty pages to file (ensures writes visible before unmap)
	if err := cw.mmap.Flush(); err != nil {
		primaryErr := fmt.Errorf("mmap flush failed: %w", err)
		return 0, errors.Join(primaryErr, cw.close())
	}

	unmapErr := cw.mmap.Unmap()
	cw.mmap = nil
	cw.data = nil
	if unmapErr != nil {
		primaryErr := fmt.Errorf("mmap unmap failed: %w", unmapErr)
		return 0, errors.Join(primaryErr, cw.close())
	}

	closeErr := cw.file.Close()
	cw.file = nil
	return digest, closeErr
}

// close releases the writer without finalizing (for error cleanup).
// Idempotent: safe to call multiple times.
func (cw *containerWriter) close() error {
	var unmapErr error
	if cw.mmap != nil {
		unmapErr = cw.mmap.Unmap()
		cw.mmap = nil
		cw.data = nil
	}
	var closeErr error
	if cw.file != nil {
		closeErr = cw.file.Close()
		cw.file = nil
	}
	return errors.Join(unmapErr, closeErr)
}

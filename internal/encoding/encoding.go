// Package encoding provides little-endian codecs for the fixed-width regions
// of a container: int32 slot tables and float32 vectors.
//
// The bulk Float32s/PutFloat32s paths copy raw memory when the host is
// little-endian (amd64, arm64) and fall back to per-element conversion
// elsewhere, so the on-disk byte order is the same on every platform.
package encoding

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// hostLittleEndian reports whether the native byte order matches the
// container byte order.
var hostLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// Int32At reads the i-th little-endian int32 of buf.
func Int32At(buf []byte, i int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[i*4:]))
}

// PutInt32At writes v as the i-th little-endian int32 of buf.
func PutInt32At(buf []byte, i int, v int32) {
	binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
}

// PutInt32s encodes src into dst and returns the number of bytes written.
// dst must hold at least 4*len(src) bytes.
func PutInt32s(dst []byte, src []int32) int {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(v))
	}
	return len(src) * 4
}

// Float32At reads the i-th little-endian float32 of buf.
func Float32At(buf []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
}

// PutFloat32At writes v as the i-th little-endian float32 of buf.
func PutFloat32At(buf []byte, i int, v float32) {
	binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
}

// PutFloat32s encodes src into dst and returns the number of bytes written.
// dst must hold at least 4*len(src) bytes.
func PutFloat32s(dst []byte, src []float32) int {
	n := len(src) * 4
	if n == 0 {
		return 0
	}
	if hostLittleEndian {
		return copy(dst[:n], unsafe.Slice((*byte)(unsafe.Pointer(&src[0])), n))
	}
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	return n
}

// Float32s decodes len(dst) little-endian float32 values from buf into dst.
// buf must hold at least 4*len(dst) bytes.
func Float32s(dst []float32, buf []byte) {
	n := len(dst) * 4
	if n == 0 {
		return
	}
	if hostLittleEndian {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), n), buf[:n])
		return
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}

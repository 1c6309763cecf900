// Package bits provides low-level bit manipulation primitives.
package bits

// Nibble mask for one 4-bit quantized value.
const NibbleMask = 0x0F

// PackNibbles packs two 4-bit values into one byte: lo in bits 0-3, hi in
// bits 4-7. Values wider than 4 bits are truncated to their low nibble.
func PackNibbles(lo, hi uint8) byte {
	return (lo & NibbleMask) | (hi&NibbleMask)<<4
}

// UnpackNibbles is the inverse of PackNibbles.
func UnpackNibbles(b byte) (lo, hi uint8) {
	return b & NibbleMask, (b >> 4) & NibbleMask
}

// IsContinuation reports whether b is a UTF-8 continuation byte (10xxxxxx).
func IsContinuation(b byte) bool {
	return b&0xC0 == 0x80
}

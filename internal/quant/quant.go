// Package quant implements the 4-bit block codec used for subword vectors.
//
// A block is one vector of even length n. It is stored as n/2 bytes plus the
// block's float32 minimum and maximum. Each element becomes the index of the
// nearest of 16 evenly spaced levels between min and max; element 2k goes in
// the low nibble of byte k and element 2k+1 in the high nibble.
package quant

import "github.com/tamirms/compactvec/internal/bits"

const (
	// Levels is the number of quantization levels.
	Levels = 16

	// epsilon keeps the division finite for constant blocks.
	epsilon = 1e-11
)

// Step returns the spacing between adjacent levels of a block.
func Step(min, max float32) float32 {
	return (max - min) / (Levels - 1)
}

// PackedLen returns the packed size in bytes of an n-element block.
func PackedLen(n int) int { return n / 2 }

// EncodeBlock quantizes v into dst and returns the block bounds. len(v) must be
// even and len(dst) at least len(v)/2. An empty v yields (0, 0).
func EncodeBlock(dst []byte, v []float32) (min, max float32) {
	if len(v) == 0 {
		return 0, 0
	}
	if len(v)%2 != 0 {
		panic("quant: odd block length")
	}
	dst = dst[:len(v)/2]

	min, max = v[0], v[0]
	for _, x := range v[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}

	denom := float64(Step(min, max)) + epsilon
	lo := float64(min)
	for k := range dst {
		dst[k] = bits.PackNibbles(level(v[2*k], lo, denom), level(v[2*k+1], lo, denom))
	}
	return min, max
}

func level(x float32, min, denom float64) uint8 {
	q := (float64(x)-min)/denom + 0.5
	if q >= Levels-1 {
		return Levels - 1
	}
	if q <= 0 {
		return 0
	}
	return uint8(q)
}

// DecodeBlock reconstructs a block into dst. len(dst) must be 2*len(packed).
func DecodeBlock(dst []float32, packed []byte, min, max float32) {
	step := Step(min, max)
	dst = dst[:2*len(packed)]
	for k, b := range packed {
		lo, hi := bits.UnpackNibbles(b)
		dst[2*k] = float32(lo)*step + min
		dst[2*k+1] = float32(hi)*step + min
	}
}

// AccumulateBlock adds the decoded block to dst.
func AccumulateBlock(dst []float32, packed []byte, min, max float32) {
	step := Step(min, max)
	dst = dst[:2*len(packed)]
	for k, b := range packed {
		lo, hi := bits.UnpackNibbles(b)
		dst[2*k] += float32(lo)*step + min
		dst[2*k+1] += float32(hi)*step + min
	}
}

package compactvec

import (
	"encoding/binary"
	"fmt"

	cverrors "github.com/tamirms/compactvec/errors"
)

const (
	// headerSize is the exact size of the serialized header (26 bytes).
	headerSize = 26

	// maxDim bounds the vector dimension so every region size fits in int64.
	maxDim = 1 << 16
)

// header is the 26-byte container header.
//
// Layout:
//
//	Offset  Size  Field          Type
//	0       4     NumWords       int32_le
//	4       4     NumRestricted  int32_le
//	8       4     WordBuckets    int32_le
//	12      4     SubBuckets     int32_le
//	16      4     Dim            int32_le
//	20      4     NumChars       int32_le (bytes of the restricted words incl. NULs)
//	24      1     Minn           uint8
//	25      1     Maxn           uint8
//
// The regions that follow are sized entirely from these fields; see layout.
type header struct {
	NumWords      int32
	NumRestricted int32
	WordBuckets   int32
	SubBuckets    int32
	Dim           int32
	NumChars      int32
	Minn          uint8
	Maxn          uint8
}

// encodeTo serializes the header to an existing buffer.
func (h *header) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.NumWords))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.NumRestricted))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.WordBuckets))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.SubBuckets))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.Dim))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.NumChars))
	buf[24] = h.Minn
	buf[25] = h.Maxn
}

// decodeHeader parses and sanity-checks a 26-byte header. It does not look
// at the regions that follow.
func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < headerSize {
		return nil, cverrors.ErrTruncatedFile
	}

	h := &header{
		NumWords:      int32(binary.LittleEndian.Uint32(buf[0:4])),
		NumRestricted: int32(binary.LittleEndian.Uint32(buf[4:8])),
		WordBuckets:   int32(binary.LittleEndian.Uint32(buf[8:12])),
		SubBuckets:    int32(binary.LittleEndian.Uint32(buf[12:16])),
		Dim:           int32(binary.LittleEndian.Uint32(buf[16:20])),
		NumChars:      int32(binary.LittleEndian.Uint32(buf[20:24])),
		Minn:          buf[24],
		Maxn:          buf[25],
	}

	if h.Dim%2 != 0 {
		return nil, fmt.Errorf("%w: ndim %d", cverrors.ErrOddDimension, h.Dim)
	}
	switch {
	case h.Dim <= 0 || h.Dim > maxDim:
		return nil, fmt.Errorf("%w: ndim %d", cverrors.ErrCorruptedContainer, h.Dim)
	case h.NumWords < 1 || h.NumRestricted < 1 || h.NumRestricted > h.NumWords:
		return nil, fmt.Errorf("%w: %d words, %d restricted", cverrors.ErrCorruptedContainer, h.NumWords, h.NumRestricted)
	case h.WordBuckets <= h.NumWords:
		return nil, fmt.Errorf("%w: %d word buckets for %d words", cverrors.ErrCorruptedContainer, h.WordBuckets, h.NumWords)
	case h.SubBuckets < 0 || int64(h.WordBuckets)+int64(h.SubBuckets) > maxSlots:
		return nil, fmt.Errorf("%w: %d subword buckets", cverrors.ErrCorruptedContainer, h.SubBuckets)
	case h.NumChars < h.NumRestricted:
		return nil, fmt.Errorf("%w: %d chars for %d restricted words", cverrors.ErrCorruptedContainer, h.NumChars, h.NumRestricted)
	}
	return h, nil
}

// maxSlots is the largest hash table the int32 header fields can describe.
const maxSlots = 1<<31 - 1

// numSlots returns the hash table size: word slots followed by the
// reverse-sub-map.
func (h *header) numSlots() int64 {
	return int64(h.WordBuckets) + int64(h.SubBuckets)
}

// layout holds the absolute offset of every container region.
type layout struct {
	slots  int64 // int32 × (WordBuckets + SubBuckets)
	chars  int64 // NumChars bytes
	freq   int64 // float32 × (WordBuckets + SubBuckets)
	dense  int64 // float32 × NumRestricted·Dim
	packed int64 // byte × SubBuckets·Dim/2
	minmax int64 // float32 × 2·SubBuckets
	size   int64 // total container size
}

func (h *header) layout() layout {
	var l layout
	l.slots = headerSize
	l.chars = l.slots + 4*h.numSlots()
	l.freq = l.chars + int64(h.NumChars)
	l.dense = l.freq + 4*h.numSlots()
	l.packed = l.dense + 4*int64(h.NumRestricted)*int64(h.Dim)
	l.minmax = l.packed + int64(h.SubBuckets)*int64(h.Dim/2)
	l.size = l.minmax + 8*int64(h.SubBuckets)
	return l
}

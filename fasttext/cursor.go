package fasttext

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	cverrors "github.com/tamirms/compactvec/errors"
)

// cursor decodes the little-endian fields of a model file. The first
// out-of-range read sets err and every later read returns zero.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.off+n > len(c.buf) {
		c.err = fmt.Errorf("%w: model ends at byte %d, need %d more at %d",
			cverrors.ErrTruncatedFile, len(c.buf), n, c.off)
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) int8() int8 {
	if b := c.take(1); b != nil {
		return int8(b[0])
	}
	return 0
}

func (c *cursor) int32() int32 {
	if b := c.take(4); b != nil {
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (c *cursor) int64() int64 {
	if b := c.take(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (c *cursor) float64() float64 {
	if b := c.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (c *cursor) bytes(n int) []byte {
	return c.take(n)
}

// cstring reads a NUL-terminated string and consumes the terminator.
func (c *cursor) cstring() string {
	if c.err != nil {
		return ""
	}
	n := bytes.IndexByte(c.buf[c.off:], 0)
	if n < 0 {
		c.err = fmt.Errorf("%w: unterminated dictionary word at byte %d", cverrors.ErrTruncatedFile, c.off)
		return ""
	}
	s := string(c.buf[c.off : c.off+n])
	c.off += n + 1
	return s
}

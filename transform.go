package compactvec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	cverrors "github.com/tamirms/compactvec/errors"
)

// transform applies an optional ndim×ndim linear map, stored row-major, to
// every vector before it is written: r[i] = Σ_j v[j]·M[i·ndim+j]. The zero
// transform copies.
type transform struct {
	m   blas32.General
	set bool
}

func newTransform(matrix []float32, ndim int) (transform, error) {
	if matrix == nil {
		return transform{}, nil
	}
	if len(matrix) != ndim*ndim {
		return transform{}, fmt.Errorf("%w: %d elements for ndim %d", cverrors.ErrTransformSize, len(matrix), ndim)
	}
	return transform{
		m:   blas32.General{Rows: ndim, Cols: ndim, Stride: ndim, Data: matrix},
		set: true,
	}, nil
}

// apply writes the transformed src into dst. dst and src must not overlap.
func (t transform) apply(dst, src []float32) {
	if !t.set {
		copy(dst, src)
		return
	}
	x := blas32.Vector{N: len(src), Data: src, Inc: 1}
	y := blas32.Vector{N: len(dst), Data: dst, Inc: 1}
	blas32.Gemv(blas.NoTrans, 1, t.m, x, 0, y)
}

// readTransformFile reads an ndim×ndim matrix of little-endian float64
// values. A file of any other size is rejected with ErrTransformSize.
func readTransformFile(path string, ndim int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transform file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat transform file: %w", err)
	}
	want := int64(ndim) * int64(ndim) * 8
	if stat.Size() != want {
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d", cverrors.ErrTransformSize, path, stat.Size(), want)
	}
	fadviseSequential(int(f.Fd()), 0, want)

	raw := make([]byte, want)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("read transform file: %w", err)
	}
	m := make([]float32, ndim*ndim)
	for i := range m {
		m[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:])))
	}
	return m, nil
}

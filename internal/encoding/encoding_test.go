package encoding

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"testing"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// TestFloat32sMatchesElementwise verifies the bulk paths produce exactly the
// bytes the element-wise little-endian encoding produces.
func TestFloat32sMatchesElementwise(t *testing.T) {
	rng := newTestRNG(t)
	for _, n := range []int{1, 2, 7, 300} {
		src := make([]float32, n)
		for i := range src {
			src[i] = float32(rng.NormFloat64())
		}

		bulk := make([]byte, n*4)
		if got := PutFloat32s(bulk, src); got != n*4 {
			t.Fatalf("n=%d: PutFloat32s wrote %d bytes, want %d", n, got, n*4)
		}
		for i, v := range src {
			want := math.Float32bits(v)
			if got := binary.LittleEndian.Uint32(bulk[i*4:]); got != want {
				t.Fatalf("n=%d: element %d encoded as %08x, want %08x", n, i, got, want)
			}
			if got := Float32At(bulk, i); got != v {
				t.Fatalf("n=%d: Float32At(%d) = %v, want %v", n, i, got, v)
			}
		}

		back := make([]float32, n)
		Float32s(back, bulk)
		for i := range src {
			if back[i] != src[i] {
				t.Fatalf("n=%d: Float32s[%d] = %v, want %v", n, i, back[i], src[i])
			}
		}
	}
}

// TestFloat32sEmpty verifies zero-length slices are no-ops.
func TestFloat32sEmpty(t *testing.T) {
	if n := PutFloat32s(nil, nil); n != 0 {
		t.Fatalf("PutFloat32s(nil) = %d, want 0", n)
	}
	Float32s(nil, nil)
}

// TestInt32RoundTrip checks negative sentinels survive the unsigned wire form.
func TestInt32RoundTrip(t *testing.T) {
	src := []int32{-1, 0, 1, math.MaxInt32, math.MinInt32, 42}
	buf := make([]byte, len(src)*4)
	if n := PutInt32s(buf, src); n != len(buf) {
		t.Fatalf("PutInt32s wrote %d bytes, want %d", n, len(buf))
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != 0xFFFFFFFF {
		t.Fatalf("-1 encoded as %08x, want ffffffff", got)
	}
	for i, want := range src {
		if got := Int32At(buf, i); got != want {
			t.Errorf("Int32At(%d) = %d, want %d", i, got, want)
		}
	}

	PutInt32At(buf, 2, -7)
	if got := Int32At(buf, 2); got != -7 {
		t.Errorf("after PutInt32At: got %d, want -7", got)
	}
	PutFloat32At(buf, 3, 1.5)
	if got := Float32At(buf, 3); got != 1.5 {
		t.Errorf("after PutFloat32At: got %v, want 1.5", got)
	}
}

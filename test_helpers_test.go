package compactvec

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/tamirms/compactvec/internal/quant"
	"github.com/tamirms/compactvec/internal/subword"
	"github.com/tamirms/compactvec/internal/synth"
)

// testConfig is the synthetic source most tests build from.
var testConfig = synth.Config{
	Dim:     16,
	Minn:    3,
	Maxn:    6,
	Buckets: 2000,
	Seed:    testSeed1,
}

// newTestSource returns a synthetic source over n generated words.
func newTestSource(t testing.TB, n int) *synth.Source {
	t.Helper()
	cfg := testConfig
	cfg.Words = synth.Words(n, testSeed2)
	src, err := synth.New(cfg)
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	return src
}

// newSourceWithWords returns a synthetic source over the given vocabulary.
func newSourceWithWords(t testing.TB, words ...string) *synth.Source {
	t.Helper()
	cfg := testConfig
	cfg.Words = words
	src, err := synth.New(cfg)
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	return src
}

// buildContainer encodes src into a temp file and returns its path.
func buildContainer(t testing.TB, src Source, opts ...BuildOption) (string, *BuildStats) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cv")
	stats, err := Encode(context.Background(), src, path, opts...)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return path, stats
}

// buildAndOpen encodes src and opens the result; the store is closed at test
// cleanup.
func buildAndOpen(t testing.TB, src Source, opts ...BuildOption) *Store {
	t.Helper()
	path, _ := buildContainer(t, src, opts...)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// expectedOOV composes word the way the store does, but from the source's
// full-precision rows run through the quantization codec.
func expectedOOV(src Source, word string) []float32 {
	dim := src.Dim()
	gen := subword.Generator{Minn: src.Minn(), Maxn: src.Maxn(), Buckets: uint32(src.SubwordBuckets())}
	out := make([]float32, dim)
	row := make([]float32, dim)
	packed := make([]byte, quant.PackedLen(dim))
	gen.Compose(out, 0, subword.Bracket(word), subword.AccumulatorFunc(func(dst []float32, b uint32) {
		src.SubwordVector(row, b)
		mn, mx := quant.EncodeBlock(packed, row)
		quant.AccumulateBlock(dst, packed, mn, mx)
	}))
	return out
}

// exactOOV composes word from the source's full-precision rows.
func exactOOV(src Source, word string) []float32 {
	dim := src.Dim()
	gen := subword.Generator{Minn: src.Minn(), Maxn: src.Maxn(), Buckets: uint32(src.SubwordBuckets())}
	out := make([]float32, dim)
	row := make([]float32, dim)
	gen.Compose(out, 0, subword.Bracket(word), subword.AccumulatorFunc(func(dst []float32, b uint32) {
		src.SubwordVector(row, b)
		for i, x := range row {
			dst[i] += x
		}
	}))
	return out
}

func maxAbsDiff(a, b []float32) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, math.Abs(float64(a[i])-float64(b[i])))
	}
	return d
}

func assertVectorsClose(t *testing.T, what string, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d", what, len(got), len(want))
	}
	if d := maxAbsDiff(got, want); d > tol {
		t.Errorf("%s: max abs diff %g > %g\ngot  %v\nwant %v", what, d, tol, got, want)
	}
}

func assertFinite(t *testing.T, what string, v []float32) {
	t.Helper()
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			t.Fatalf("%s: element %d is %v", what, i, x)
		}
	}
}

// mapSource is a hand-written source with explicit vectors.
type mapSource struct {
	dim, minn, maxn, buckets int
	words                    []string
	counts                   []int64
	ntokens                  int64
	vectors                  map[string][]float32
	rows                     func(dst []float32, bucket uint32)
}

func (m *mapSource) Dim() int            { return m.dim }
func (m *mapSource) Minn() int           { return m.minn }
func (m *mapSource) Maxn() int           { return m.maxn }
func (m *mapSource) SubwordBuckets() int { return m.buckets }
func (m *mapSource) NumWords() int       { return len(m.words) }
func (m *mapSource) NumTokens() int64    { return m.ntokens }

func (m *mapSource) Word(id int) (string, int64) {
	return m.words[id], m.counts[id]
}

func (m *mapSource) WordVector(dst []float32, word string) {
	copy(dst, m.vectors[word])
}

func (m *mapSource) SubwordVector(dst []float32, bucket uint32) {
	if m.rows == nil {
		clear(dst)
		return
	}
	m.rows(dst, bucket)
}

package synth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / math.Sqrt(na*nb)
}

func newSource(t *testing.T, words []string) *Source {
	t.Helper()
	s, err := New(Config{Dim: 64, Minn: 3, Maxn: 6, Buckets: 5000, Seed: 42, Words: words})
	require.NoError(t, err)
	return s
}

func TestDeterministic(t *testing.T) {
	a := newSource(t, []string{"alpha", "beta"})
	b := newSource(t, []string{"alpha", "beta"})

	va, vb := make([]float32, 64), make([]float32, 64)
	a.WordVector(va, "alpha")
	b.WordVector(vb, "alpha")
	assert.Equal(t, va, vb)

	a.SubwordVector(va, 17)
	b.SubwordVector(vb, 17)
	assert.Equal(t, va, vb)

	a.SubwordVector(vb, 18)
	assert.NotEqual(t, va, vb)
}

func TestRelatedWordsAreCloser(t *testing.T) {
	s := newSource(t, nil)
	intl, intly, other := make([]float32, 64), make([]float32, 64), make([]float32, 64)
	s.WordVector(intl, "international")
	s.WordVector(intly, "internationally")
	s.WordVector(other, "zzqxw")

	related := cosine(intl, intly)
	unrelated := cosine(intl, other)
	assert.Greater(t, related, unrelated)
	assert.Greater(t, related, 0.5)
}

func TestCountsDescending(t *testing.T) {
	words := Words(50, 7)
	s := newSource(t, words)
	require.Equal(t, 50, s.NumWords())

	var total int64
	prev := int64(math.MaxInt64)
	for i := range s.NumWords() {
		w, c := s.Word(i)
		assert.Equal(t, words[i], w)
		assert.LessOrEqual(t, c, prev)
		prev = c
		total += c
	}
	assert.Equal(t, total, s.NumTokens())
}

func TestWordsDistinct(t *testing.T) {
	words := Words(1000, 1)
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		assert.False(t, seen[w], "duplicate %q", w)
		seen[w] = true
		assert.GreaterOrEqual(t, len(w), 3)
		assert.LessOrEqual(t, len(w), 12)
	}
	assert.Equal(t, words, Words(1000, 1))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Dim: 0})
	assert.Error(t, err)
	_, err = New(Config{Dim: 4, Buckets: -1})
	assert.Error(t, err)
}

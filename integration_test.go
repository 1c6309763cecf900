package compactvec

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/tamirms/compactvec/internal/encoding"
	"github.com/tamirms/compactvec/internal/fnv"
	"github.com/tamirms/compactvec/internal/quant"
	"github.com/tamirms/compactvec/internal/subword"
	"github.com/tamirms/compactvec/internal/synth"
	"github.com/tamirms/compactvec/internal/vocab"
)

// ============================================================================
// Round trip
// ============================================================================

func TestRoundTrip(t *testing.T) {
	const n, restricted = 300, 100
	src := newTestSource(t, n)
	s := buildAndOpen(t, src, WithWordBuckets(1009), WithRestrictedWords(restricted))

	if s.NumWords() != n+1 || s.NumRestricted() != restricted || s.Dim() != testConfig.Dim {
		t.Fatalf("NumWords/NumRestricted/Dim = %d/%d/%d", s.NumWords(), s.NumRestricted(), s.Dim())
	}
	if w, _ := s.Word(0); w != vocab.EOS {
		t.Errorf("Word(0) = %q, want %q", w, vocab.EOS)
	}

	want := make([]float32, src.Dim())
	for id := range restricted {
		word, ok := s.Word(id)
		if !ok {
			t.Fatalf("Word(%d) missing", id)
		}
		if got := s.find(word); got != int32(id) {
			t.Fatalf("find(%q) = %d, want %d", word, got, id)
		}

		r := s.Lookup(word)
		if !r.Known {
			t.Fatalf("%q: not known", word)
		}
		clear(want)
		src.WordVector(want, word)
		if !slices.Equal(r.Vector, want) {
			t.Fatalf("%q: vector %v, want %v", word, r.Vector, want)
		}

		var count int64
		if id > 0 {
			_, count = src.Word(id - 1)
		}
		if wantFreq := float32(float64(count) / float64(src.NumTokens())); r.Frequency != wantFreq {
			t.Errorf("%q: frequency %v, want %v", word, r.Frequency, wantFreq)
		}
	}

	oovFreq := s.Lookup(mustWord(t, s, restricted-1)).Frequency
	for id := restricted - 1; id < n; id++ {
		word, _ := src.Word(id)
		r := s.Lookup(word)
		if r.Known {
			t.Fatalf("%q (source id %d) should not be restricted", word, id)
		}
		if r.Frequency != oovFreq {
			t.Errorf("%q: frequency %v, want rarest restricted %v", word, r.Frequency, oovFreq)
		}
		assertVectorsClose(t, word, r.Vector, expectedOOV(src, word), 1e-5)
	}
}

func mustWord(t *testing.T, s *Store, id int) string {
	t.Helper()
	w, ok := s.Word(id)
	if !ok {
		t.Fatalf("Word(%d) missing", id)
	}
	return w
}

func TestOOVWithinQuantizationStep(t *testing.T) {
	src := newTestSource(t, 50)
	s := buildAndOpen(t, src, WithWordBuckets(211), WithRestrictedWords(10))
	gen := subword.Generator{Minn: src.Minn(), Maxn: src.Maxn(), Buckets: uint32(src.SubwordBuckets())}

	rng := newTestRNG(t)
	row := make([]float32, src.Dim())
	for _, word := range synth.Words(200, rng.Uint64()) {
		var bound float64
		for b := range gen.BucketIDs(subword.Bracket(word)) {
			src.SubwordVector(row, b)
			mn, mx := slices.Min(row), slices.Max(row)
			bound = max(bound, float64(quant.Step(mn, mx)))
		}
		got := s.Lookup(word).Vector
		assertFinite(t, word, got)
		assertVectorsClose(t, word, got, exactOOV(src, word), bound+1e-5)
	}
}

func TestDegenerateTokens(t *testing.T) {
	src := newTestSource(t, 50)
	s := buildAndOpen(t, src, WithWordBuckets(211), WithRestrictedWords(10))

	// The empty token is the zero vector.
	r := s.Lookup("")
	if r.Known || len(r.Vector) != src.Dim() {
		t.Fatalf("Lookup(\"\") = %+v", r)
	}
	for i, x := range r.Vector {
		if x != 0 {
			t.Fatalf("Lookup(\"\") element %d = %v, want 0", i, x)
		}
	}

	for _, tok := range []string{"a", "東京", "naïve", "\xff\xfe", strings.Repeat("z", 300), "a b", "\x00"} {
		r := s.Lookup(tok)
		if len(r.Vector) != src.Dim() {
			t.Fatalf("%q: vector len %d", tok, len(r.Vector))
		}
		assertFinite(t, tok, r.Vector)
	}
}

func TestSimilarityOrdering(t *testing.T) {
	words := append([]string{"the", "international", "internationally"}, synth.Words(100, 7)...)
	src := newSourceWithWords(t, words...)

	for _, restricted := range []int{0, 1} {
		s := buildAndOpen(t, src, WithWordBuckets(401), WithRestrictedWords(restricted))
		related := s.Similarity("international", "internationally")
		unrelated := s.Similarity("international", "zzqxw")
		if related <= unrelated {
			t.Errorf("restricted=%d: related %v <= unrelated %v", restricted, related, unrelated)
		}
		if related < 0.5 {
			t.Errorf("restricted=%d: related similarity %v < 0.5", restricted, related)
		}
		if self := s.Similarity("international", "international"); self < 0.9999 {
			t.Errorf("restricted=%d: self similarity %v", restricted, self)
		}
	}
}

// ============================================================================
// Determinism
// ============================================================================

func TestDeterministicOutput(t *testing.T) {
	src := newTestSource(t, 500)
	dir := t.TempDir()
	var prev []byte
	var prevDigest uint64
	for i, workers := range []int{1, 4, 1, 7} {
		path := filepath.Join(dir, "out.cv")
		stats, err := Encode(context.Background(), src, path,
			WithWordBuckets(1009), WithRestrictedWords(100), WithWorkers(workers))
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 {
			if !bytes.Equal(prev, data) {
				t.Fatalf("workers=%d: output differs from previous build", workers)
			}
			if stats.Digest != prevDigest {
				t.Fatalf("workers=%d: digest %x, previous %x", workers, stats.Digest, prevDigest)
			}
		}
		prev, prevDigest = data, stats.Digest
	}
}

// ============================================================================
// Scenario
// ============================================================================

// TestScenario encodes a vocabulary ten times larger than its restricted set
// and checks both query paths over it.
func TestScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	const nwords, nrwords = 5000, 500
	src := newTestSource(t, nwords)
	path, stats := buildContainer(t, src, WithWordBuckets(10007), WithRestrictedWords(nrwords), WithWorkers(4))
	if stats.Words != nwords+1 || stats.RestrictedWords != nrwords {
		t.Fatalf("stats = %+v", stats)
	}

	s, err := Open(path, WithPrefault())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for id := range nwords {
		word, _ := src.Word(id)
		r := s.Lookup(word)
		if wantKnown := id+1 < nrwords; r.Known != wantKnown {
			t.Fatalf("%q (id %d): Known=%v, want %v", word, id+1, r.Known, wantKnown)
		}
		assertFinite(t, word, r.Vector)
	}
	for _, tok := range []string{"hello", "xylophonic", "über", "日本語", "", "a"} {
		r := s.Lookup(tok)
		if r.Known {
			t.Errorf("%q should be out of vocabulary", tok)
		}
		assertFinite(t, tok, r.Vector)
	}
}

// ============================================================================
// Explicit sources
// ============================================================================

func reverseMatrix(n int) []float32 {
	m := make([]float32, n*n)
	for i := range n {
		m[i*n+n-1-i] = 1
	}
	return m
}

func TestTransformIsApplied(t *testing.T) {
	src := newTestSource(t, 40)
	dim := src.Dim()
	s := buildAndOpen(t, src, WithWordBuckets(211), WithRestrictedWords(10), WithTransform(reverseMatrix(dim)))

	raw := make([]float32, dim)
	word := mustWord(t, s, 5)
	src.WordVector(raw, word)
	slices.Reverse(raw)
	if got := s.Lookup(word).Vector; !slices.Equal(got, raw) {
		t.Errorf("dense vector %v, want reversed source %v", got, raw)
	}

	oov, _ := src.Word(30)
	want := expectedOOV(src, oov)
	slices.Reverse(want)
	assertVectorsClose(t, oov, s.Lookup(oov).Vector, want, 1e-5)
}

func TestTransformFileMatchesMatrix(t *testing.T) {
	src := newTestSource(t, 40)
	m := reverseMatrix(src.Dim())
	m64 := make([]float64, len(m))
	for i, v := range m {
		m64[i] = float64(v)
	}
	mapFile := writeTransformFile(t, m64)

	_, fromMatrix := buildContainer(t, src, WithWordBuckets(211), WithTransform(m))
	_, fromFile := buildContainer(t, src, WithWordBuckets(211), WithTransformFile(mapFile))
	if fromMatrix.Digest != fromFile.Digest {
		t.Errorf("digest from matrix %x, from file %x", fromMatrix.Digest, fromFile.Digest)
	}
}

func TestWordFile(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta"}
	src := newSourceWithWords(t, words...)
	wordFile := filepath.Join(t.TempDir(), "vocab.words")
	buildContainer(t, src, WithWordBuckets(101), WithRestrictedWords(2), WithWordFile(wordFile))

	got, err := os.ReadFile(wordFile)
	if err != nil {
		t.Fatal(err)
	}
	want := vocab.EOS + "\x00alpha\x00beta\x00gamma\x00delta\x00"
	if string(got) != want {
		t.Errorf("word file = %q, want %q", got, want)
	}
}

func TestExplicitSourceFrequencies(t *testing.T) {
	for _, ntokens := range []int64{20, 0} {
		src := &mapSource{
			dim: 4, minn: 3, maxn: 3, buckets: 0,
			words:   []string{vocab.EOS, "ab", "cd"},
			counts:  []int64{10, 5, 5},
			ntokens: ntokens,
			vectors: map[string][]float32{
				vocab.EOS: {1, 2, 3, 4},
				"ab":      {-1, 0, 1, 0.5},
				"cd":      {0, 0, 0, 9},
			},
		}
		s := buildAndOpen(t, src, WithWordBuckets(7), WithRestrictedWords(2))
		if s.NumWords() != 3 {
			t.Fatalf("ntokens=%d: NumWords = %d, want 3 (</s> merged)", ntokens, s.NumWords())
		}

		freq, vec := s.WordInfo(vocab.EOS)
		if freq != 0.5 || !slices.Equal(vec, []float32{1, 2, 3, 4}) {
			t.Errorf("ntokens=%d: </s> = %v %v", ntokens, freq, vec)
		}
		freq, vec = s.WordInfo("ab")
		if freq != 0.25 || !slices.Equal(vec, []float32{-1, 0, 1, 0.5}) {
			t.Errorf("ntokens=%d: ab = %v %v", ntokens, freq, vec)
		}

		// No subword buckets: every unrestricted word is the zero vector.
		r := s.Lookup("cd")
		if r.Known || r.Frequency != 0.25 || !slices.Equal(r.Vector, make([]float32, 4)) {
			t.Errorf("ntokens=%d: cd = %+v", ntokens, r)
		}
	}
}

// ============================================================================
// Subword statistics
// ============================================================================

func TestSubwordFrequenciesCountRawWords(t *testing.T) {
	src := newSourceWithWords(t, "hello")
	path, stats := buildContainer(t, src, WithWordBuckets(11), WithRestrictedWords(1))
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// hel hell hello ell ello llo, plus </s /s> </s> from the end-of-sequence
	// word. Bracketed forms such as "<he" are never counted.
	if stats.Ngrams != 9 {
		t.Fatalf("Ngrams = %d, want 9", stats.Ngrams)
	}

	counts := make([]int64, src.SubwordBuckets())
	for _, w := range []string{vocab.EOS, "hello"} {
		s.gen.Count(w, counts)
	}
	nwb := int(s.header.WordBuckets)
	for b, c := range counts {
		rank := int(encoding.Int32At(s.subMap, b))
		got := encoding.Float32At(s.freq, nwb+rank)
		if want := float32(float64(c) / 9); got != want {
			t.Fatalf("bucket %d: frequency %v, want %v", b, got, want)
		}
	}

	edge := fnv.Hash32String("<he") % uint32(src.SubwordBuckets())
	if counts[edge] == 0 {
		rank := int(encoding.Int32At(s.subMap, int(edge)))
		if got := encoding.Float32At(s.freq, nwb+rank); got != 0 {
			t.Errorf("frequency of \"<he\" bucket = %v, want 0", got)
		}
	}
}

func TestEmptyTokenIsZeroForShortNgrams(t *testing.T) {
	cfg := testConfig
	cfg.Minn = 2
	cfg.Words = synth.Words(50, testSeed2)
	src, err := synth.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s := buildAndOpen(t, src, WithWordBuckets(211), WithRestrictedWords(10))

	// With minn 2, "<>" is itself an n-gram; the empty token still maps to
	// the zero vector.
	r := s.Lookup("")
	if r.Known || len(r.Vector) != src.Dim() {
		t.Fatalf("Lookup(\"\") = %+v", r)
	}
	for i, x := range r.Vector {
		if x != 0 {
			t.Fatalf("Lookup(\"\") element %d = %v, want 0", i, x)
		}
	}
	if want := s.Lookup(mustWord(t, s, 9)).Frequency; r.Frequency != want {
		t.Errorf("Lookup(\"\") frequency = %v, want %v", r.Frequency, want)
	}
}

// Package synth provides a deterministic synthetic embedding source.
//
// Subword rows are pseudo-random Gaussian vectors seeded per bucket, and a
// word vector is the average of a per-word row and the rows of the word's
// bracketed n-grams, the same composition a trained subword model uses. Words
// that share most of their n-grams therefore end up close in cosine distance,
// which is what tests and benchmarks need from a stand-in for a real model.
package synth

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/zeebo/xxh3"

	"github.com/tamirms/compactvec/internal/subword"
)

// Config describes a synthetic source.
type Config struct {
	Dim     int
	Minn    int
	Maxn    int
	Buckets int
	Seed    uint64
	// Words is the vocabulary in id order. Counts decrease with id.
	Words []string
}

// Source is a synthetic embedding source. It is safe for concurrent use.
type Source struct {
	cfg     Config
	gen     subword.Generator
	counts  []int64
	ntokens int64
}

// New creates a source over cfg.Words.
func New(cfg Config) (*Source, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("synth: dim must be positive, got %d", cfg.Dim)
	}
	if cfg.Buckets < 0 {
		return nil, fmt.Errorf("synth: negative bucket count %d", cfg.Buckets)
	}
	s := &Source{
		cfg:    cfg,
		gen:    subword.Generator{Minn: cfg.Minn, Maxn: cfg.Maxn, Buckets: uint32(cfg.Buckets)},
		counts: make([]int64, len(cfg.Words)),
	}
	for i := range cfg.Words {
		// Zipf-like counts keep the vocabulary in descending frequency order.
		c := int64(1_000_000 / (i + 1))
		if c < 1 {
			c = 1
		}
		s.counts[i] = c
		s.ntokens += c
	}
	return s, nil
}

func (s *Source) Dim() int            { return s.cfg.Dim }
func (s *Source) Minn() int           { return s.cfg.Minn }
func (s *Source) Maxn() int           { return s.cfg.Maxn }
func (s *Source) SubwordBuckets() int { return s.cfg.Buckets }
func (s *Source) NumWords() int       { return len(s.cfg.Words) }
func (s *Source) NumTokens() int64    { return s.ntokens }

// Word returns the word with the given id and its count.
func (s *Source) Word(id int) (string, int64) {
	return s.cfg.Words[id], s.counts[id]
}

// SubwordVector writes the row of a subword bucket into dst.
func (s *Source) SubwordVector(dst []float32, bucket uint32) {
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], bucket)
	fill(dst, xxh3.HashSeed(key[:], s.cfg.Seed))
}

// WordVector writes the vector of word into dst: the mean of the word's own
// row and its subword rows.
func (s *Source) WordVector(dst []float32, word string) {
	fill(dst, xxh3.HashStringSeed(word, s.cfg.Seed^wordDomain))
	s.gen.Compose(dst, 1, subword.Bracket(word), subword.AccumulatorFunc(s.addSubword))
}

func (s *Source) addSubword(dst []float32, bucket uint32) {
	row := make([]float32, len(dst))
	s.SubwordVector(row, bucket)
	for i, x := range row {
		dst[i] += x
	}
}

// wordDomain separates word-row seeds from bucket-row seeds.
const wordDomain = 0x9e3779b97f4a7c15

func fill(dst []float32, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	for i := range dst {
		dst[i] = float32(rng.NormFloat64())
	}
}

// Words returns n distinct pseudo-random lowercase words of 3 to 12 letters.
func Words(n int, seed uint64) []string {
	rng := rand.New(rand.NewPCG(seed, seed^wordDomain))
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	buf := make([]byte, 0, 12)
	for len(out) < n {
		buf = buf[:0]
		l := 3 + rng.IntN(10)
		for range l {
			buf = append(buf, byte('a'+rng.IntN(26)))
		}
		w := string(buf)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

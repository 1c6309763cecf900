// Package subword generates the character n-grams of a token and maps them to
// hash buckets. The encoder uses it to gather bucket statistics and the store
// uses it to synthesize vectors for words outside the restricted vocabulary,
// so both sides see the same n-grams in the same order.
package subword

import (
	"iter"

	"github.com/tamirms/compactvec/internal/bits"
	"github.com/tamirms/compactvec/internal/fnv"
)

// Begin and End bracket a word before n-gram extraction.
const (
	Begin = "<"
	End   = ">"
)

// Bracket returns "<" + word + ">".
func Bracket(word string) string {
	return Begin + word + End
}

// Generator holds the n-gram length range and bucket count of a container.
type Generator struct {
	Minn, Maxn int
	Buckets    uint32
}

// Accumulator adds the vector of a raw bucket id into dst.
type Accumulator interface {
	AccumulateBucket(dst []float32, bucket uint32)
}

// AccumulatorFunc adapts a function to Accumulator.
type AccumulatorFunc func(dst []float32, bucket uint32)

func (f AccumulatorFunc) AccumulateBucket(dst []float32, bucket uint32) { f(dst, bucket) }

// Ngrams yields the n-grams of token as substrings of it.
//
// An n-gram starts at every byte that is not a UTF-8 continuation byte and
// grows one code point at a time, continuation bytes included, up to Maxn code
// points. Lengths below Minn are skipped, as are single code points at the
// very start or end of token. Invalid UTF-8 is handled bytewise by the same
// rule.
func (g Generator) Ngrams(token string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 0; i < len(token); i++ {
			if bits.IsContinuation(token[i]) {
				continue
			}
			j := i
			for n := 1; j < len(token) && n <= g.Maxn; n++ {
				j++
				for j < len(token) && bits.IsContinuation(token[j]) {
					j++
				}
				if n < g.Minn {
					continue
				}
				if n == 1 && (i == 0 || j == len(token)) {
					continue
				}
				if !yield(token[i:j]) {
					return
				}
			}
		}
	}
}

// BucketIDs yields the raw bucket id of every n-gram of token, in n-gram
// order. A generator with zero buckets yields nothing.
func (g Generator) BucketIDs(token string) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		if g.Buckets == 0 {
			return
		}
		for ng := range g.Ngrams(token) {
			if !yield(fnv.Hash32String(ng) % g.Buckets) {
				return
			}
		}
	}
}

// Count increments counts[b] for every raw bucket id b of token. counts must
// have Buckets entries. It returns the number of n-grams counted.
func (g Generator) Count(token string, counts []int64) int {
	n := 0
	for b := range g.BucketIDs(token) {
		counts[b]++
		n++
	}
	return n
}

// Compose adds the vector of every bucket of token to dst through acc and
// divides dst by count plus the number of buckets visited. count is the
// number of vectors dst already holds. When the total is zero dst is left
// unchanged. It returns the total.
func (g Generator) Compose(dst []float32, count float32, token string, acc Accumulator) float32 {
	for b := range g.BucketIDs(token) {
		acc.AccumulateBucket(dst, b)
		count++
	}
	if count == 0 {
		return 0
	}
	for i := range dst {
		dst[i] /= count
	}
	return count
}

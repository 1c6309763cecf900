package compactvec

import (
	"cmp"
	"slices"
)

// rankBuckets orders subword buckets by descending count, breaking ties by
// ascending raw bucket id. order maps rank to raw bucket and reverse maps raw
// bucket to rank.
func rankBuckets(counts []int64) (order, reverse []int32) {
	order = make([]int32, len(counts))
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortFunc(order, func(a, b int32) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	reverse = make([]int32, len(counts))
	for rank, raw := range order {
		reverse[raw] = int32(rank)
	}
	return order, reverse
}

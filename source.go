package compactvec

// Source is a trained embedding model the encoder compacts. The fasttext
// package provides one for .bin models.
//
// Words must come in the model's id order, which for trained models is
// descending frequency: the first restricted words become the dense part of
// the container. The encoder reads a source from a single goroutine, except
// that with WithWorkers(n > 1) SubwordVector is called concurrently.
type Source interface {
	// Dim is the vector dimension. It must be even.
	Dim() int
	// Minn and Maxn bound n-gram lengths in code points.
	Minn() int
	Maxn() int
	// SubwordBuckets is the number of subword hash buckets.
	SubwordBuckets() int

	NumWords() int
	// Word returns the word with the given id and its occurrence count.
	Word(id int) (word string, count int64)
	// NumTokens is the corpus size counts are relative to.
	NumTokens() int64

	// WordVector writes the full vector of word into dst.
	WordVector(dst []float32, word string)
	// SubwordVector writes the vector of a raw subword bucket into dst.
	SubwordVector(dst []float32, bucket uint32)
}

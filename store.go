package compactvec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas/blas32"

	cverrors "github.com/tamirms/compactvec/errors"
	"github.com/tamirms/compactvec/internal/encoding"
	"github.com/tamirms/compactvec/internal/fnv"
	"github.com/tamirms/compactvec/internal/quant"
	"github.com/tamirms/compactvec/internal/subword"
	"github.com/tamirms/compactvec/internal/vocab"
)

const (
	// batchParallelThreshold is the batch size above which LookupBatch fans
	// out over goroutines.
	batchParallelThreshold = 512

	// batchChunk is the number of tokens one batch goroutine resolves.
	batchChunk = 256
)

// Store is a read-only compact embedding container.
//
// Thread Safety:
//   - Lookup, LookupBatch and the other read methods are safe for concurrent use
//   - Close is NOT safe to call concurrently with queries
//   - After Close, Lookup returns a zero Result and the error-returning
//     methods return ErrStoreClosed
type Store struct {
	mmap mmap.MMap
	data []byte

	header *header
	layout layout

	// Container regions, sliced out of data once at open.
	wordSlots vocab.ByteSlots
	subMap    []byte // reverse-sub-map: raw bucket -> rank
	chars     []byte
	freq      []byte
	dense     []byte
	packed    []byte
	minmax    []byte

	// wordEnds[i] is the offset of the NUL terminating restricted word i.
	wordEnds []int32

	dim      int
	nrwords  int32
	gen      subword.Generator
	oovFreq  float32
	rowBytes int // packed bytes per subword bucket

	cfg   *storeConfig
	cache *cache.Cache

	closed atomic.Bool
}

// Result is the answer to a single token query.
type Result struct {
	// Frequency is the stored word frequency, or the frequency of the rarest
	// restricted word for out-of-vocabulary tokens.
	Frequency float32
	// Vector has Dim elements.
	Vector []float32
	// Known reports whether the token is a restricted word with a stored
	// dense vector.
	Known bool
}

// Stats holds store statistics.
type Stats struct {
	Words           int
	RestrictedWords int
	WordBuckets     int
	SubwordBuckets  int
	Dim             int
	Minn, Maxn      int
	Size            int64
	BytesPerWord    float64
}

// Open opens a container file for querying.
// It opens the file, memory-maps it, and closes the file descriptor.
func Open(path string, opts ...StoreOption) (*Store, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container file: %w", err)
	}
	defer file.Close()

	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.logger = cfg.logger.WithOutput(path)
	return openFile(file, cfg)
}

// OpenFile opens a container by memory-mapping the given file.
// The caller is responsible for closing f. Per POSIX mmap(2), f may be
// closed immediately after OpenFile returns.
func OpenFile(f *os.File, opts ...StoreOption) (*Store, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return openFile(f, cfg)
}

func openFile(f *os.File, cfg *storeConfig) (*Store, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat container file: %w", err)
	}
	if stat.Size() < headerSize {
		return nil, cverrors.ErrTruncatedFile
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap container file: %w", err)
	}

	s := &Store{
		mmap: mm,
		data: []byte(mm),
		cfg:  cfg,
	}
	if err := s.initFromData(); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// OpenBytes creates a store from an in-memory container.
// No file is opened or memory-mapped.
// The caller must ensure data is not modified while the Store is in use.
func OpenBytes(data []byte, opts ...StoreOption) (*Store, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return openBytes(data, cfg)
}

func openBytes(data []byte, cfg *storeConfig) (*Store, error) {
	if len(data) < headerSize {
		return nil, cverrors.ErrTruncatedFile
	}
	s := &Store{
		data: data,
		cfg:  cfg,
	}
	if err := s.initFromData(); err != nil {
		return nil, err
	}
	return s, nil
}

// initFromData parses the header, slices every region out of s.data and
// validates the tables lookups index into, so no query can read out of
// bounds afterwards.
func (s *Store) initFromData() error {
	start := time.Now()

	hdr, err := decodeHeader(s.data[:headerSize])
	if err != nil {
		return err
	}
	l := hdr.layout()
	switch size := int64(len(s.data)); {
	case size < l.size:
		return fmt.Errorf("%w: %d bytes, header describes %d", cverrors.ErrTruncatedFile, size, l.size)
	case size > l.size:
		return fmt.Errorf("%w: %d trailing bytes", cverrors.ErrCorruptedContainer, size-l.size)
	}

	wordEnd := l.slots + 4*int64(hdr.WordBuckets)
	s.header = hdr
	s.layout = l
	s.wordSlots = vocab.ByteSlots(s.data[l.slots:wordEnd])
	s.subMap = s.data[wordEnd:l.chars]
	s.chars = s.data[l.chars:l.freq]
	s.freq = s.data[l.freq:l.dense]
	s.dense = s.data[l.dense:l.packed]
	s.packed = s.data[l.packed:l.minmax]
	s.minmax = s.data[l.minmax:l.size]

	s.dim = int(hdr.Dim)
	s.nrwords = hdr.NumRestricted
	s.rowBytes = quant.PackedLen(s.dim)
	s.gen = subword.Generator{
		Minn:    int(hdr.Minn),
		Maxn:    int(hdr.Maxn),
		Buckets: uint32(hdr.SubBuckets),
	}

	if err := s.validateSlots(); err != nil {
		return err
	}
	if err := s.indexChars(); err != nil {
		return err
	}
	s.oovFreq = encoding.Float32At(s.freq, int(s.nrwords-1))

	if s.cfg.prefault && s.mmap != nil {
		prefaultRead(s.data)
	}
	if s.cfg.cacheTTL > 0 {
		s.cache = cache.New(s.cfg.cacheTTL, 2*s.cfg.cacheTTL)
	}

	s.cfg.logger.Debug("container opened",
		"words", hdr.NumWords,
		"restricted", hdr.NumRestricted,
		"subword_buckets", hdr.SubBuckets,
		"dim", hdr.Dim,
		"bytes", l.size,
		"elapsed", time.Since(start),
	)
	return nil
}

func (s *Store) validateSlots() error {
	nwords := s.header.NumWords
	empty := 0
	for i := range s.wordSlots.Len() {
		id := s.wordSlots.At(i)
		switch {
		case id == vocab.Empty:
			empty++
		case id < 0 || id >= nwords:
			return fmt.Errorf("%w: word slot %d holds id %d", cverrors.ErrCorruptedContainer, i, id)
		}
	}
	if empty == 0 {
		return fmt.Errorf("%w: word table has no empty slot", cverrors.ErrCorruptedContainer)
	}

	nsb := s.header.SubBuckets
	for i := range int(nsb) {
		if r := encoding.Int32At(s.subMap, i); r < 0 || r >= nsb {
			return fmt.Errorf("%w: bucket %d maps to rank %d", cverrors.ErrCorruptedContainer, i, r)
		}
	}
	return nil
}

// indexChars records where each restricted word ends in the char table.
func (s *Store) indexChars() error {
	if s.chars[len(s.chars)-1] != 0 {
		return fmt.Errorf("%w: char table is not terminated", cverrors.ErrCorruptedContainer)
	}
	s.wordEnds = make([]int32, 0, s.nrwords)
	rest := s.chars
	off := 0
	for len(rest) > 0 {
		if len(s.wordEnds) == int(s.nrwords) {
			return fmt.Errorf("%w: char table holds more than %d words", cverrors.ErrCorruptedContainer, s.nrwords)
		}
		i := bytes.IndexByte(rest, 0)
		s.wordEnds = append(s.wordEnds, int32(off+i))
		off += i + 1
		rest = rest[i+1:]
	}
	if len(s.wordEnds) != int(s.nrwords) {
		return fmt.Errorf("%w: char table holds %d words, want %d", cverrors.ErrCorruptedContainer, len(s.wordEnds), s.nrwords)
	}
	return nil
}

// Close releases the store. It is safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.cache != nil {
		s.cache.Flush()
	}
	if s.mmap != nil {
		return s.mmap.Unmap()
	}
	return nil
}

// wordBytes returns restricted word id without its terminator.
func (s *Store) wordBytes(id int32) []byte {
	var start int32
	if id > 0 {
		start = s.wordEnds[id-1] + 1
	}
	return s.chars[start:s.wordEnds[id]]
}

// find returns the id of a restricted word, or vocab.Empty. Slots holding
// words past the restricted prefix have no chars and never match.
func (s *Store) find(word string) int32 {
	_, id := vocab.Find(s.wordSlots, fnv.Hash32String(word), func(id int32) bool {
		return id < s.nrwords && string(s.wordBytes(id)) == word
	})
	return id
}

// buckets reads quantized subword rows through the reverse-sub-map.
type buckets Store

func (b *buckets) AccumulateBucket(dst []float32, bucket uint32) {
	rank := int(encoding.Int32At(b.subMap, int(bucket)))
	row := b.packed[rank*b.rowBytes : (rank+1)*b.rowBytes]
	mn := encoding.Float32At(b.minmax, 2*rank)
	mx := encoding.Float32At(b.minmax, 2*rank+1)
	quant.AccumulateBlock(dst, row, mn, mx)
}

// Lookup returns the frequency and vector of word. It never fails: tokens
// outside the restricted vocabulary get the average of their subword vectors
// and the frequency of the rarest restricted word. The empty string yields a
// zero vector. Vector always holds Dim elements; on a closed store they are
// zero.
func (s *Store) Lookup(word string) Result {
	r := Result{Vector: make([]float32, s.dim)}
	r.Frequency, r.Known = s.LookupInto(r.Vector, word)
	return r
}

// WordInfo returns the frequency and vector of word.
func (s *Store) WordInfo(word string) (float32, []float32) {
	r := s.Lookup(word)
	return r.Frequency, r.Vector
}

// LookupInto writes the vector of word into dst, which must hold at least
// Dim elements, and returns its frequency and whether it is a restricted
// word. On a closed store dst is zeroed.
func (s *Store) LookupInto(dst []float32, word string) (float32, bool) {
	start := time.Now()
	dst = dst[:s.dim]
	if s.closed.Load() {
		clear(dst)
		return 0, false
	}
	if s.cfg.norm != nil {
		word = s.cfg.norm.String(word)
	}

	if id := s.find(word); id != vocab.Empty {
		off := int(id) * s.dim * 4
		encoding.Float32s(dst, s.dense[off:off+s.dim*4])
		s.cfg.metrics.RecordLookup(LookupWord, time.Since(start))
		return encoding.Float32At(s.freq, int(id)), true
	}

	if s.cache != nil {
		if v, ok := s.cache.Get(word); ok {
			copy(dst, v.([]float32))
			s.cfg.metrics.RecordLookup(LookupCached, time.Since(start))
			return s.oovFreq, false
		}
	}

	clear(dst)
	if word == "" {
		s.cfg.metrics.RecordLookup(LookupSubword, time.Since(start))
		return s.oovFreq, false
	}
	s.gen.Compose(dst, 0, subword.Bracket(word), (*buckets)(s))
	if s.cache != nil {
		s.cache.SetDefault(word, slices.Clone(dst))
	}
	s.cfg.metrics.RecordLookup(LookupSubword, time.Since(start))
	return s.oovFreq, false
}

// LookupBatch resolves every token. Result vectors share one backing
// allocation. Large batches are split across GOMAXPROCS goroutines.
func (s *Store) LookupBatch(ctx context.Context, tokens []string) ([]Result, error) {
	if s.closed.Load() {
		return nil, cverrors.ErrStoreClosed
	}
	start := time.Now()

	out := make([]Result, len(tokens))
	vecs := make([]float32, len(tokens)*s.dim)
	resolve := func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if (i-lo)%contextCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			v := vecs[i*s.dim : (i+1)*s.dim : (i+1)*s.dim]
			f, known := s.LookupInto(v, tokens[i])
			out[i] = Result{Frequency: f, Vector: v, Known: known}
		}
		return nil
	}

	if len(tokens) < batchParallelThreshold {
		if err := resolve(0, len(tokens)); err != nil {
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for lo := 0; lo < len(tokens); lo += batchChunk {
			hi := min(lo+batchChunk, len(tokens))
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return resolve(lo, hi)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	s.cfg.metrics.RecordBatch(len(tokens), time.Since(start))
	return out, nil
}

// Similarity returns the cosine similarity of the vectors of a and b, or 0
// when either vector is zero.
func (s *Store) Similarity(a, b string) float32 {
	if s.closed.Load() {
		return 0
	}
	va := make([]float32, 2*s.dim)
	vb := va[s.dim:]
	va = va[:s.dim]
	s.LookupInto(va, a)
	s.LookupInto(vb, b)
	return Cosine(va, vb)
}

// Cosine returns the cosine similarity of two equal-length vectors, or 0 when
// either has zero norm.
func Cosine(a, b []float32) float32 {
	x := blas32.Vector{N: len(a), Data: a, Inc: 1}
	y := blas32.Vector{N: len(b), Data: b, Inc: 1}
	na, nb := blas32.Nrm2(x), blas32.Nrm2(y)
	if na == 0 || nb == 0 {
		return 0
	}
	return blas32.Dot(x, y) / (na * nb)
}

// Word returns restricted word id.
func (s *Store) Word(id int) (string, bool) {
	if s.closed.Load() || id < 0 || id >= int(s.nrwords) {
		return "", false
	}
	return string(s.wordBytes(int32(id))), true
}

// Dim returns the vector dimension.
func (s *Store) Dim() int {
	return s.dim
}

// NumWords returns the number of words in the hash table.
func (s *Store) NumWords() int {
	return int(s.header.NumWords)
}

// NumRestricted returns the number of words with a stored dense vector.
func (s *Store) NumRestricted() int {
	return int(s.nrwords)
}

// GetStats returns statistics for a container file.
func GetStats(path string) (*Stats, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	return s.Stats(), s.Close()
}

// Stats returns statistics for the store.
func (s *Store) Stats() *Stats {
	size := int64(len(s.data))
	return &Stats{
		Words:           int(s.header.NumWords),
		RestrictedWords: int(s.nrwords),
		WordBuckets:     int(s.header.WordBuckets),
		SubwordBuckets:  int(s.header.SubBuckets),
		Dim:             s.dim,
		Minn:            s.gen.Minn,
		Maxn:            s.gen.Maxn,
		Size:            size,
		BytesPerWord:    float64(size) / float64(s.header.NumWords),
	}
}

// Digest returns the xxhash64 of the whole container, as reported by
// BuildStats.Digest when it was encoded.
func (s *Store) Digest() (uint64, error) {
	if s.closed.Load() {
		return 0, cverrors.ErrStoreClosed
	}
	return xxhash.Sum64(s.data), nil
}

// Verify compares the container digest against expected.
func (s *Store) Verify(expected uint64) error {
	got, err := s.Digest()
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%w: digest %016x, want %016x", cverrors.ErrChecksumFailed, got, expected)
	}
	return nil
}

package compactvec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	cverrors "github.com/tamirms/compactvec/errors"
	"github.com/tamirms/compactvec/internal/encoding"
	"github.com/tamirms/compactvec/internal/quant"
	"github.com/tamirms/compactvec/internal/subword"
	"github.com/tamirms/compactvec/internal/vocab"
)

const (
	// contextCheckInterval is how often long loops check for cancellation.
	contextCheckInterval = 10000

	// progressInterval is how many subword buckets pass between progress logs.
	progressInterval = 100000
)

// BuildStats describes a finished container.
type BuildStats struct {
	Words           int
	RestrictedWords int
	WordBuckets     int
	SubwordBuckets  int
	Dim             int
	Chars           int
	Ngrams          int64 // n-grams counted over the vocabulary
	Size            int64
	Digest          uint64 // xxhash64 of the container, see Store.Verify
	Elapsed         time.Duration
}

// Builder compacts one Source into a container file.
//
// Usage:
//
//	b, err := compactvec.NewBuilder(ctx, src, "en.cv", compactvec.WithRestrictedWords(50000))
//	if err != nil { return err }
//	defer b.Close() // Clean up on error
//	stats, err := b.Finish()
//
// NewBuilder reads the vocabulary and reserves the output file; Finish
// writes every region. Neither is safe for concurrent use.
type Builder struct {
	ctx    context.Context
	cfg    *buildConfig
	src    Source
	output string
	log    *Logger
	start  time.Time

	vocab   *vocab.Builder
	gen     subword.Generator
	tf      transform
	nrwords int
	cw      *containerWriter
	closed  bool
}

// NewBuilder validates src and the options, loads the transform, builds the
// word table and creates the output file at its final size.
func NewBuilder(ctx context.Context, src Source, output string, opts ...BuildOption) (*Builder, error) {
	cfg := defaultBuildConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	b := &Builder{
		ctx:    ctx,
		cfg:    cfg,
		src:    src,
		output: output,
		log:    cfg.logger.WithOutput(output),
		start:  time.Now(),
	}

	dim := src.Dim()
	if dim%2 != 0 {
		return nil, fmt.Errorf("%w: ndim %d", cverrors.ErrOddDimension, dim)
	}
	if dim <= 0 || dim > maxDim {
		return nil, fmt.Errorf("compactvec: ndim %d out of range (0, %d]", dim, maxDim)
	}
	if src.Minn() < 0 || src.Maxn() > 255 || src.Minn() > 255 || src.Maxn() < 0 {
		return nil, fmt.Errorf("compactvec: n-gram range [%d, %d] does not fit the header", src.Minn(), src.Maxn())
	}
	nsb := src.SubwordBuckets()
	if nsb < 0 || cfg.wordBuckets < 2 || int64(cfg.wordBuckets)+int64(nsb) > maxSlots {
		return nil, fmt.Errorf("%w: %d word buckets, %d subword buckets", cverrors.ErrInvalidBuckets, cfg.wordBuckets, nsb)
	}
	if src.NumWords() == 0 {
		return nil, cverrors.ErrEmptyVocabulary
	}
	b.gen = subword.Generator{Minn: src.Minn(), Maxn: src.Maxn(), Buckets: uint32(nsb)}

	// The transform is checked before any vector is read.
	matrix := cfg.transform
	if cfg.transformFile != "" {
		m, err := readTransformFile(cfg.transformFile, dim)
		if err != nil {
			return nil, err
		}
		matrix = m
	}
	tf, err := newTransform(matrix, dim)
	if err != nil {
		return nil, err
	}
	b.tf = tf

	if err := b.buildVocabulary(); err != nil {
		return nil, err
	}

	nwords := b.vocab.Len()
	b.nrwords = cfg.restrictedWords
	if b.nrwords == 0 {
		b.nrwords = nwords
	}
	if b.nrwords < 1 || b.nrwords > nwords {
		return nil, fmt.Errorf("%w: %d of %d words", cverrors.ErrRestrictedWords, b.nrwords, nwords)
	}

	nchars := 0
	for _, e := range b.vocab.Entries()[:b.nrwords] {
		nchars += len(e.Word) + 1
	}
	if nchars > maxSlots {
		return nil, fmt.Errorf("%w: restricted words need %d bytes", cverrors.ErrRestrictedWords, nchars)
	}

	hdr := header{
		NumWords:      int32(nwords),
		NumRestricted: int32(b.nrwords),
		WordBuckets:   int32(cfg.wordBuckets),
		SubBuckets:    int32(nsb),
		Dim:           int32(dim),
		NumChars:      int32(nchars),
		Minn:          uint8(src.Minn()),
		Maxn:          uint8(src.Maxn()),
	}
	cw, err := newContainerWriter(output, hdr)
	if err != nil {
		return nil, fmt.Errorf("create container writer: %w", err)
	}
	b.cw = cw
	b.log.Info("container allocated",
		"words", nwords,
		"restricted", b.nrwords,
		"word_buckets", cfg.wordBuckets,
		"subword_buckets", nsb,
		"dim", dim,
		"bytes", cw.layout.size,
	)
	return b, nil
}

// buildVocabulary inserts every source word into the word table. The
// end-of-sequence marker is always id 0.
func (b *Builder) buildVocabulary() error {
	start := time.Now()
	vb, err := vocab.NewBuilder(b.cfg.wordBuckets)
	if err != nil {
		return err
	}
	for id := range b.src.NumWords() {
		if id%contextCheckInterval == 0 {
			if err := b.ctx.Err(); err != nil {
				return err
			}
		}
		word, count := b.src.Word(id)
		if _, err := vb.Add(word, count); err != nil {
			return err
		}
	}
	b.vocab = vb
	b.log.phase("vocabulary", start, "words", vb.Len())
	return nil
}

// Finish writes the container and returns its statistics. After calling
// Finish, the builder cannot be used again. On error the output file is
// removed.
func (b *Builder) Finish() (*BuildStats, error) {
	if b.closed {
		return nil, cverrors.ErrBuilderClosed
	}
	b.closed = true

	stats, err := b.finish()
	if err != nil {
		return nil, errors.Join(err, b.cleanup())
	}
	return stats, nil
}

func (b *Builder) finish() (*BuildStats, error) {
	start := time.Now()
	counts, total, err := b.countSubwords()
	if err != nil {
		return nil, err
	}
	b.log.phase("subword counting", start, "ngrams", total)

	if b.cfg.wordFile != "" {
		if err := b.writeWordFile(); err != nil {
			return nil, err
		}
	}

	start = time.Now()
	order, reverse := rankBuckets(counts)
	b.log.phase("subword sorting", start)

	start = time.Now()
	b.writeTables(reverse)
	b.writeFrequencies(counts, order, total)
	b.log.phase("tables", start)

	start = time.Now()
	if err := b.writeDense(); err != nil {
		return nil, err
	}
	b.log.phase("dense vectors", start, "rows", b.nrwords)

	start = time.Now()
	if err := b.writeSubwords(order); err != nil {
		return nil, err
	}
	b.log.phase("subword quantization", start, "buckets", len(order), "workers", b.workers(len(order)))

	size := b.cw.layout.size
	hdr := b.cw.header
	digest, err := b.cw.finalize()
	if err != nil {
		return nil, err
	}

	stats := &BuildStats{
		Words:           int(hdr.NumWords),
		RestrictedWords: int(hdr.NumRestricted),
		WordBuckets:     int(hdr.WordBuckets),
		SubwordBuckets:  int(hdr.SubBuckets),
		Dim:             int(hdr.Dim),
		Chars:           int(hdr.NumChars),
		Ngrams:          total,
		Size:            size,
		Digest:          digest,
		Elapsed:         time.Since(b.start),
	}
	b.log.Info("container written", "bytes", size, "digest", fmt.Sprintf("%016x", digest), "elapsed", stats.Elapsed)
	return stats, nil
}

// countSubwords counts the n-grams of every vocabulary word per raw bucket.
// Words are counted unbracketed, so boundary n-grams such as "<he" only
// appear at query time.
func (b *Builder) countSubwords() ([]int64, int64, error) {
	counts := make([]int64, b.src.SubwordBuckets())
	var total int64
	for id, e := range b.vocab.Entries() {
		if id%contextCheckInterval == 0 {
			if err := b.ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		total += int64(b.gen.Count(e.Word, counts))
	}
	return counts, total, nil
}

// writeWordFile writes every vocabulary word NUL-terminated, in id order.
func (b *Builder) writeWordFile() (err error) {
	f, err := os.Create(b.cfg.wordFile)
	if err != nil {
		return fmt.Errorf("create word file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close word file: %w", closeErr)
		}
	}()
	w := bufio.NewWriter(f)
	for _, e := range b.vocab.Entries() {
		if _, err := w.WriteString(e.Word); err != nil {
			return fmt.Errorf("write word file: %w", err)
		}
		if err := w.WriteByte(0); err != nil {
			return fmt.Errorf("write word file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write word file: %w", err)
	}
	return nil
}

// writeTables writes the word slots, the reverse-sub-map and the restricted
// word strings.
func (b *Builder) writeTables(reverse []int32) {
	slots := b.cw.slots()
	n := encoding.PutInt32s(slots, b.vocab.Table().Slots())
	encoding.PutInt32s(slots[n:], reverse)

	chars := b.cw.chars()
	off := 0
	for _, e := range b.vocab.Entries()[:b.nrwords] {
		off += copy(chars[off:], e.Word)
		chars[off] = 0
		off++
	}
}

// writeFrequencies fills one float32 per hash table slot: restricted words
// relative to the corpus size, zero for the remaining word slots, then
// subword buckets relative to the n-gram total in rank order.
func (b *Builder) writeFrequencies(counts []int64, order []int32, total int64) {
	freq := b.cw.freq()
	ntokens := b.src.NumTokens()
	if ntokens <= 0 {
		for _, e := range b.vocab.Entries() {
			ntokens += e.Count
		}
	}
	for id, e := range b.vocab.Entries()[:b.nrwords] {
		encoding.PutFloat32At(freq, id, ratio(e.Count, ntokens))
	}
	nwb := int(b.cw.header.WordBuckets)
	for i := b.nrwords; i < nwb; i++ {
		encoding.PutFloat32At(freq, i, 0)
	}
	for rank, raw := range order {
		encoding.PutFloat32At(freq, nwb+rank, ratio(counts[raw], total))
	}
}

func ratio(n, total int64) float32 {
	if total <= 0 {
		return 0
	}
	return float32(float64(n) / float64(total))
}

// writeDense stores the transformed full vector of every restricted word.
func (b *Builder) writeDense() error {
	dim := b.src.Dim()
	raw := make([]float32, dim)
	v := make([]float32, dim)
	for id, e := range b.vocab.Entries()[:b.nrwords] {
		if id%contextCheckInterval == 0 {
			if err := b.ctx.Err(); err != nil {
				return err
			}
		}
		clear(raw)
		b.src.WordVector(raw, e.Word)
		b.tf.apply(v, raw)
		encoding.PutFloat32s(b.cw.denseRow(id), v)
	}
	return nil
}

func (b *Builder) workers(n int) int {
	w := b.cfg.workers
	if w < 1 {
		w = 1
	}
	if w > n {
		w = max(n, 1)
	}
	return w
}

// writeSubwords quantizes the transformed vector of every subword bucket in
// rank order. Workers own contiguous rank ranges and write disjoint parts of
// the packed and min/max regions.
func (b *Builder) writeSubwords(order []int32) error {
	n := len(order)
	if n == 0 {
		return nil
	}
	workers := b.workers(n)
	chunk := (n + workers - 1) / workers
	minmax := b.cw.minmax()
	dim := b.src.Dim()

	var done atomic.Int64
	g, ctx := errgroup.WithContext(b.ctx)
	for w := range workers {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			raw := make([]float32, dim)
			v := make([]float32, dim)
			for rank := lo; rank < hi; rank++ {
				if (rank-lo)%contextCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				b.src.SubwordVector(raw, uint32(order[rank]))
				b.tf.apply(v, raw)
				mn, mx := quant.EncodeBlock(b.cw.packedRow(rank), v)
				encoding.PutFloat32At(minmax, 2*rank, mn)
				encoding.PutFloat32At(minmax, 2*rank+1, mx)
				if d := done.Add(1); d%progressInterval == 0 {
					b.log.Info("quantizing subwords", "done", d, "total", n)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Close aborts the build and removes the output file. It is a no-op after
// Finish.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.cleanup()
}

// cleanup releases the writer and removes the partial output.
func (b *Builder) cleanup() error {
	var errs []error
	if b.cw != nil {
		errs = append(errs, b.cw.close())
	}
	if err := os.Remove(b.output); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if b.cfg.wordFile != "" {
		if err := os.Remove(b.cfg.wordFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Encode builds a container from src in one call.
func Encode(ctx context.Context, src Source, output string, opts ...BuildOption) (*BuildStats, error) {
	b, err := NewBuilder(ctx, src, output, opts...)
	if err != nil {
		return nil, err
	}
	return b.Finish()
}

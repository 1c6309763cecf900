// Package fasttext reads trained fastText .bin models as an embedding source
// for the container encoder.
//
// The model file is memory-mapped and parsed once: the argument block and the
// dictionary are decoded into Go values, the input matrix stays in the mapping
// and rows are decoded on demand. Only version 12 models with a dense
// (non-quantized) input matrix are supported.
package fasttext

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	cverrors "github.com/tamirms/compactvec/errors"
	"github.com/tamirms/compactvec/internal/encoding"
	"github.com/tamirms/compactvec/internal/subword"
)

const (
	// Magic opens every fastText model file.
	Magic = 793712314
	// Version is the only model version this package reads.
	Version = 12

	entryWord  = 0
	entryLabel = 1
)

// Args is the argument block stored in the model header.
type Args struct {
	Dim          int32
	WS           int32
	Epoch        int32
	MinCount     int32
	Neg          int32
	WordNgrams   int32
	Loss         int32
	Model        int32
	Bucket       int32
	Minn         int32
	Maxn         int32
	LRUpdateRate int32
	T            float64
}

type entry struct {
	word  string
	count int64
}

// Model is an opened fastText model. Vector methods are safe for concurrent
// use; Close must not race with them.
type Model struct {
	mm   mmap.MMap
	data []byte

	args    Args
	words   []entry
	nlabels int32
	index   map[string]int32
	ntokens int64
	prune   map[int32]int32

	rows   int64
	matrix []byte

	gen    subword.Generator
	closed atomic.Bool
}

// Open memory-maps the model at path.
func Open(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat model file: %w", err)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("%w: empty model file", cverrors.ErrTruncatedFile)
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap model file: %w", err)
	}
	m := &Model{mm: mm, data: []byte(mm)}
	if err := m.parse(); err != nil {
		return nil, errors.Join(err, m.Close())
	}
	return m, nil
}

// OpenBytes parses a model held in memory. data must not be modified while the
// model is in use.
func OpenBytes(data []byte) (*Model, error) {
	m := &Model{data: data}
	if err := m.parse(); err != nil {
		return nil, err
	}
	return m, nil
}

// Close releases the mapping.
func (m *Model) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.mm != nil {
		return m.mm.Unmap()
	}
	return nil
}

func (m *Model) parse() error {
	r := &cursor{buf: m.data}

	if magic, version := r.int32(), r.int32(); r.err == nil && (magic != Magic || version != Version) {
		return fmt.Errorf("%w: magic %d version %d", cverrors.ErrUnsupportedModel, magic, version)
	}

	a := &m.args
	for _, p := range []*int32{&a.Dim, &a.WS, &a.Epoch, &a.MinCount, &a.Neg, &a.WordNgrams,
		&a.Loss, &a.Model, &a.Bucket, &a.Minn, &a.Maxn, &a.LRUpdateRate} {
		*p = r.int32()
	}
	a.T = r.float64()

	size, nwords := r.int32(), r.int32()
	m.nlabels = r.int32()
	m.ntokens = r.int64()
	pruneSize := r.int64()
	if r.err != nil {
		return r.err
	}
	if size < 0 || nwords < 0 || nwords > size || a.Dim <= 0 || a.Bucket < 0 {
		return fmt.Errorf("%w: dictionary size %d, words %d, dim %d, bucket %d",
			cverrors.ErrUnsupportedModel, size, nwords, a.Dim, a.Bucket)
	}

	m.words = make([]entry, 0, nwords)
	m.index = make(map[string]int32, nwords)
	for i := int32(0); i < size; i++ {
		w := r.cstring()
		count := r.int64()
		typ := r.int8()
		if r.err != nil {
			return r.err
		}
		if typ != entryWord {
			continue
		}
		m.index[w] = int32(len(m.words))
		m.words = append(m.words, entry{word: w, count: count})
	}
	if int32(len(m.words)) != nwords {
		return fmt.Errorf("%w: dictionary declares %d words, found %d",
			cverrors.ErrUnsupportedModel, nwords, len(m.words))
	}

	if pruneSize > 0 {
		m.prune = make(map[int32]int32, pruneSize)
		for i := int64(0); i < pruneSize; i++ {
			k, v := r.int32(), r.int32()
			m.prune[k] = v
		}
	}

	if quant := r.int8(); r.err == nil && quant != 0 {
		return fmt.Errorf("%w: quantized input matrix", cverrors.ErrUnsupportedModel)
	}
	rows, cols := r.int64(), r.int64()
	if r.err != nil {
		return r.err
	}
	if cols != int64(a.Dim) || rows < int64(nwords) {
		return fmt.Errorf("%w: input matrix %dx%d for dim %d and %d words",
			cverrors.ErrUnsupportedModel, rows, cols, a.Dim, nwords)
	}
	m.rows = rows
	m.matrix = r.bytes(int(rows * cols * 4))
	if r.err != nil {
		return r.err
	}

	m.gen = subword.Generator{Minn: int(a.Minn), Maxn: int(a.Maxn), Buckets: uint32(a.Bucket)}
	return nil
}

// Args returns the model's argument block.
func (m *Model) Args() Args { return m.args }

func (m *Model) Dim() int            { return int(m.args.Dim) }
func (m *Model) Minn() int           { return int(m.args.Minn) }
func (m *Model) Maxn() int           { return int(m.args.Maxn) }
func (m *Model) SubwordBuckets() int { return int(m.args.Bucket) }

// NumWords returns the number of words, labels excluded.
func (m *Model) NumWords() int { return len(m.words) }

// NumLabels returns the number of classifier labels in the dictionary.
func (m *Model) NumLabels() int { return int(m.nlabels) }

// NumTokens returns the number of tokens the model was trained on.
func (m *Model) NumTokens() int64 { return m.ntokens }

// Word returns the word with the given id and its count.
func (m *Model) Word(id int) (string, int64) {
	e := m.words[id]
	return e.word, e.count
}

// WordID returns the id of word, or -1.
func (m *Model) WordID(word string) int32 {
	if id, ok := m.index[word]; ok {
		return id
	}
	return -1
}

func (m *Model) row(dst []float32, i int64) {
	n := int64(len(dst))
	encoding.Float32s(dst, m.matrix[i*n*4:])
}

func (m *Model) addRow(dst []float32, i int64) {
	n := int64(len(dst))
	off := i * n * 4
	for j := range dst {
		dst[j] += encoding.Float32At(m.matrix[off:], j)
	}
}

// SubwordVector writes the input row of a raw subword bucket into dst. In a
// pruned model a bucket that was pruned away yields a zero vector.
func (m *Model) SubwordVector(dst []float32, bucket uint32) {
	if i, ok := m.subwordRow(bucket); ok {
		m.row(dst, i)
		return
	}
	clear(dst)
}

func (m *Model) subwordRow(bucket uint32) (int64, bool) {
	b := int32(bucket)
	if m.prune != nil {
		mapped, ok := m.prune[b]
		if !ok {
			return 0, false
		}
		b = mapped
	}
	i := int64(len(m.words)) + int64(b)
	return i, i < m.rows
}

// WordVector writes the vector of word into dst: the mean of the word's own
// input row, when it is in the dictionary, and the rows of its bracketed
// n-grams. The end-of-sequence marker uses its own row only.
func (m *Model) WordVector(dst []float32, word string) {
	clear(dst)
	var count float32
	if id, ok := m.index[word]; ok {
		m.row(dst, int64(id))
		count = 1
		if word == eos {
			return
		}
	}
	m.gen.Compose(dst, count, subword.Bracket(word), subword.AccumulatorFunc(func(dst []float32, b uint32) {
		if i, ok := m.subwordRow(b); ok {
			m.addRow(dst, i)
		}
	}))
}

const eos = "</s>"

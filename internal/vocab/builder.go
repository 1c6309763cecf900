package vocab

import (
	"fmt"
	"strings"

	cverrors "github.com/tamirms/compactvec/errors"
	"github.com/tamirms/compactvec/internal/fnv"
)

// EOS is the end-of-sequence marker. It always has id 0.
const EOS = "</s>"

// Entry is one vocabulary word with its raw occurrence count.
type Entry struct {
	Word  string
	Count int64
}

// Builder assigns dense ids to words in insertion order and records them in
// a Table. It is used once per encode and is not safe for concurrent use.
type Builder struct {
	table   *Table
	entries []Entry
}

// NewBuilder creates a builder over a table of buckets slots and inserts EOS
// as id 0. buckets must leave room for EOS and one empty slot.
func NewBuilder(buckets int) (*Builder, error) {
	if buckets < 2 {
		return nil, fmt.Errorf("%w: %d word buckets", cverrors.ErrTableFull, buckets)
	}
	b := &Builder{table: NewTable(buckets)}
	if _, err := b.Add(EOS, 0); err != nil {
		return nil, err
	}
	return b, nil
}

// Add inserts word, or adds count to it when already present, and returns
// its id. The table must keep at least one empty slot, so inserting a
// distinct word into a table whose size would no longer exceed the
// vocabulary fails with ErrTableFull.
func (b *Builder) Add(word string, count int64) (int32, error) {
	if strings.IndexByte(word, 0) >= 0 {
		return Empty, fmt.Errorf("%w: %q", cverrors.ErrInvalidWord, word)
	}
	slot, id := b.find(word)
	if id != Empty {
		b.entries[id].Count += count
		return id, nil
	}
	if len(b.entries)+1 >= b.table.Len() {
		return Empty, fmt.Errorf("%w: %d buckets, %d words", cverrors.ErrTableFull, b.table.Len(), len(b.entries)+1)
	}
	id = int32(len(b.entries))
	b.entries = append(b.entries, Entry{Word: word, Count: count})
	b.table.set(slot, id)
	return id, nil
}

// Find returns the id of word, or Empty.
func (b *Builder) Find(word string) int32 {
	_, id := b.find(word)
	return id
}

func (b *Builder) find(word string) (int, int32) {
	return Find(Int32Slots(b.table.slots), fnv.Hash32String(word), func(id int32) bool {
		return b.entries[id].Word == word
	})
}

// Len returns the number of distinct words.
func (b *Builder) Len() int { return len(b.entries) }

// Entry returns the word with the given id.
func (b *Builder) Entry(id int32) Entry { return b.entries[id] }

// Entries returns all words in id order. Callers must not modify it.
func (b *Builder) Entries() []Entry { return b.entries }

// Table returns the slot table.
func (b *Builder) Table() *Table { return b.table }

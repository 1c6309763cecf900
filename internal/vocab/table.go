// Package vocab implements the open-addressing word table of a container.
//
// A table is a fixed array of int32 slots, each holding either Empty or a
// dense word id. A word lives at the first slot of its probe sequence
// hash(word) mod len, hash+1, ... (wrapping) that is either empty or holds its
// id. The encoder fills an owned []int32 through Builder; the reader probes the
// same layout in place over the container bytes through ByteSlots.
package vocab

import "github.com/tamirms/compactvec/internal/encoding"

// Empty marks an unoccupied slot.
const Empty int32 = -1

// DefaultBuckets is the word table size used by the trained models the
// containers are built from.
const DefaultBuckets = 30_000_000

// Slots is read access to a slot array.
type Slots interface {
	Len() int
	At(i int) int32
}

// Int32Slots is an owned slot array.
type Int32Slots []int32

func (s Int32Slots) Len() int        { return len(s) }
func (s Int32Slots) At(i int) int32 { return s[i] }

// ByteSlots views little-endian int32 slots stored in a byte region.
type ByteSlots []byte

func (s ByteSlots) Len() int        { return len(s) / 4 }
func (s ByteSlots) At(i int) int32 { return encoding.Int32At(s, i) }

// Find probes s for a word with hash h. match reports whether an occupied
// slot's id is the word being looked up; ids it cannot resolve must return
// false and are probed past.
//
// It returns the slot where probing stopped and the id found there, or Empty
// when the probe reached an empty slot. Tables are built with at least one
// empty slot; a table without one is probed exactly once around and reported
// as a miss with slot -1.
func Find[S Slots](s S, h uint32, match func(id int32) bool) (slot int, id int32) {
	n := s.Len()
	if n == 0 {
		return -1, Empty
	}
	slot = int(h % uint32(n))
	for range n {
		id = s.At(slot)
		if id == Empty {
			return slot, Empty
		}
		if match(id) {
			return slot, id
		}
		slot++
		if slot == n {
			slot = 0
		}
	}
	return -1, Empty
}

// Table is an encode-time slot array.
type Table struct {
	slots []int32
	used  int
}

// NewTable returns a table of n empty slots.
func NewTable(n int) *Table {
	slots := make([]int32, n)
	for i := range slots {
		slots[i] = Empty
	}
	return &Table{slots: slots}
}

// Len returns the number of slots.
func (t *Table) Len() int { return len(t.slots) }

// Used returns the number of occupied slots.
func (t *Table) Used() int { return t.used }

// Slots returns the backing array. Callers must not modify it.
func (t *Table) Slots() []int32 { return t.slots }

// set stores id in an empty slot.
func (t *Table) set(slot int, id int32) {
	if t.slots[slot] != Empty {
		panic("vocab: set on occupied slot")
	}
	t.slots[slot] = id
	t.used++
}

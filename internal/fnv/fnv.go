// Package fnv implements the 32-bit FNV-1a variant shared by the vocabulary
// table and the subword bucket assignment.
//
// Every byte is folded in as a sign-extended 8-bit value, which is what the
// trained models compute over their (signed) char strings. For ASCII input the
// result equals standard FNV-1a; bytes >= 0x80 differ. Changing this function
// invalidates every container written with it.
package fnv

const (
	offset32 = 2166136261
	prime32  = 16777619
)

// Hash32String hashes s without allocating.
func Hash32String(s string) uint32 {
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(int8(s[i]))
		h *= prime32
	}
	return h
}

// Hash32 hashes b.
func Hash32(b []byte) uint32 {
	h := uint32(offset32)
	for _, c := range b {
		h ^= uint32(int8(c))
		h *= prime32
	}
	return h
}

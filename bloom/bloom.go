// Package bloom implements the Mari membership bloom filter (spec §4.4):
// a 1024-bit, 2-hash filter over currently-assigned uplink cell node ids,
// using salted FNV-1a 64 as the hash function. The gateway rebuilds it
// whenever the assignment set changes and copies it verbatim into every
// beacon; nodes test their own id against it to detect silent eviction.
package bloom

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/marinet/mari/internal/config"
)

// M is the bit width of the filter.
const M = config.BloomM

// K is the number of hash functions.
const K = config.BloomK

// ByteLen is the wire size of the filter (M/8 bytes).
const ByteLen = M / 8

// Salt XORs the node id before computing the second hash.
const Salt = uint64(config.BloomSalt)

// Hashes computes the two index seeds for id, per spec §4.4:
// h1 = fnv1a(id), h2 = fnv1a(id ^ SALT).
func Hashes(id uint64) (h1, h2 uint64) {
	return fnv1a64(id), fnv1a64(id ^ Salt)
}

func fnv1a64(id uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	h := fnv.New64a()
	h.Write(b[:])
	return h.Sum64()
}

// index maps a hash and a hash-function index (0 or 1) to a bit position,
// per spec §4.4: idx_k = (h1 + k*h2) mod m, implemented as a mask since m
// is a power of two.
func index(h1, h2 uint64, k int) uint32 {
	v := h1 + uint64(k)*h2
	return uint32(v) & uint32(M-1)
}

// Filter is the 1024-bit membership set, wire-identical to the bloom field
// of a Beacon.
type Filter struct {
	bits [ByteLen]byte
}

// Reset clears every bit.
func (f *Filter) Reset() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}

// setBit sets bit index i (0 <= i < M).
func (f *Filter) setBit(i uint32) {
	f.bits[i/8] |= 1 << (i % 8)
}

// testBit reports whether bit index i is set.
func (f *Filter) testBit(i uint32) bool {
	return f.bits[i/8]&(1<<(i%8)) != 0
}

// AddHashes sets the K bits derived from a pair of cached hashes. Cells
// cache h1/h2 at assignment time (spec §4.1) so the gateway never
// recomputes FNV-1a while rebuilding the filter.
func (f *Filter) AddHashes(h1, h2 uint64) {
	for k := 0; k < K; k++ {
		f.setBit(index(h1, h2, k))
	}
}

// Add sets the K bits for a node id, computing its hashes on the fly.
func (f *Filter) Add(id uint64) {
	h1, h2 := Hashes(id)
	f.AddHashes(h1, h2)
}

// ContainsHashes reports whether all K bits derived from h1/h2 are set.
func (f *Filter) ContainsHashes(h1, h2 uint64) bool {
	for k := 0; k < K; k++ {
		if !f.testBit(index(h1, h2, k)) {
			return false
		}
	}
	return true
}

// Contains reports whether id's K bits are all set.
func (f *Filter) Contains(id uint64) bool {
	h1, h2 := Hashes(id)
	return f.ContainsHashes(h1, h2)
}

// Bytes returns the wire representation of the filter.
func (f *Filter) Bytes() [ByteLen]byte {
	return f.bits
}

// FromBytes constructs a Filter from a wire-format byte array, such as the
// Bloom field of a parsed Beacon.
func FromBytes(b [ByteLen]byte) Filter {
	return Filter{bits: b}
}

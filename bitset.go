package sketch

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// cacheLineSize is the size of a CPU cache line in bytes.
const cacheLineSize = 64

// BitSet is a fixed-length packed bit array. Bits are stored 64 per word,
// so a set of n bits occupies roughly n/8 bytes plus alignment padding.
//
// The length is fixed at construction. Get and Set panic if the index is
// outside [0, Len()): an out-of-range index here means the caller's
// position calculation is broken, which is a programming error rather
// than a condition to handle at runtime.
//
// BitSet is not safe for concurrent use.
type BitSet struct {
	raw    []byte   // Raw allocation to keep aligned memory alive for GC
	words  []uint64 // Packed bits, 64 per word (cache-line aligned)
	length uint64   // Number of addressable bits
}

// NewBitSet creates a bit set holding length bits, all initially zero.
func NewBitSet(length uint64) *BitSet {
	raw, words := makeAlignedUint64Slice(int((length + 63) / 64))
	return &BitSet{
		raw:    raw,
		words:  words,
		length: length,
	}
}

// makeAlignedUint64Slice allocates a cache-line aligned slice of uint64.
// Returns the raw byte slice (to keep alive for GC) and the aligned uint64 slice.
func makeAlignedUint64Slice(n int) ([]byte, []uint64) {
	// Allocate with extra space for alignment
	raw := make([]byte, n*8+cacheLineSize-1)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := (cacheLineSize - int(addr%cacheLineSize)) % cacheLineSize
	aligned := unsafe.Slice((*uint64)(unsafe.Pointer(&raw[offset])), n)
	return raw, aligned
}

// makeAlignedAtomicUint64Slice allocates a cache-line aligned slice of atomic.Uint64.
// Returns the raw byte slice (to keep alive for GC) and the aligned atomic slice.
func makeAlignedAtomicUint64Slice(n int) ([]byte, []atomic.Uint64) {
	// atomic.Uint64 is the same size as uint64 (8 bytes)
	const atomicSize = 8
	// Allocate with extra space for alignment
	raw := make([]byte, n*atomicSize+cacheLineSize-1)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := (cacheLineSize - int(addr%cacheLineSize)) % cacheLineSize
	aligned := unsafe.Slice((*atomic.Uint64)(unsafe.Pointer(&raw[offset])), n)
	return raw, aligned
}

// Get reports whether bit i is set. It panics if i >= Len().
func (b *BitSet) Get(i uint64) bool {
	if i >= b.length {
		panic(fmt.Sprintf("sketch: bit index %d out of range [0, %d)", i, b.length))
	}
	return b.words[i>>6]&(1<<(i&63)) != 0
}

// Set sets bit i to 1. It panics if i >= Len().
func (b *BitSet) Set(i uint64) {
	if i >= b.length {
		panic(fmt.Sprintf("sketch: bit index %d out of range [0, %d)", i, b.length))
	}
	b.words[i>>6] |= 1 << (i & 63)
}

// ClearAll resets every bit to 0. The length is unchanged.
func (b *BitSet) ClearAll() {
	clear(b.words)
}

// Count returns the number of bits that are set.
func (b *BitSet) Count() uint64 {
	var n uint64
	for _, word := range b.words {
		n += uint64(bits.OnesCount64(word))
	}
	return n
}

// Len returns the number of addressable bits.
func (b *BitSet) Len() uint64 {
	return b.length
}

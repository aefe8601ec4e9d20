package sketch

import (
	"errors"
	"math/bits"
	"runtime"
	"sync/atomic"
)

var (
	// ErrInvalidCapacity is returned when a filter is constructed with zero bits.
	ErrInvalidCapacity = errors.New("sketch: filter capacity must be at least 1 bit")

	// ErrInvalidHashCount is returned when a filter is constructed with zero hash probes.
	ErrInvalidHashCount = errors.New("sketch: hash count must be at least 1")
)

// Filter is a non-thread-safe bloom filter backed by a packed BitSet.
//
// Each key is hashed k times with distinct seeds, and probe i sets or checks
// bit hash_i mod m. A lookup can return a false positive but never a false
// negative: bits are only ever set, never unset, so once all k probe bits for
// a key are 1 they stay 1.
type Filter struct {
	bits  *BitSet // Packed backing storage, m bits long
	m     uint64  // Capacity in bits
	k     uint32  // Number of hash probes per key
	count uint64  // Number of items added (approximate)
}

// NewFilter creates a bloom filter with exactly capacity bits and hashCount
// hash probes per key. It returns ErrInvalidCapacity or ErrInvalidHashCount
// when either parameter is zero.
func NewFilter(capacity uint64, hashCount uint32) (*Filter, error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	if hashCount == 0 {
		return nil, ErrInvalidHashCount
	}

	return &Filter{
		bits: NewBitSet(capacity),
		m:    capacity,
		k:    hashCount,
	}, nil
}

// NewFilterWithEstimates creates a bloom filter sized for the expected number
// of items and desired false positive rate. Use [OptimalParams] to see the
// capacity and hash count it will pick.
func NewFilterWithEstimates(expectedItems uint64, fpRate float64) (*Filter, error) {
	capacity, hashCount, _ := OptimalParams(expectedItems, fpRate)
	return NewFilter(capacity, hashCount)
}

// Add adds data to the bloom filter.
func (f *Filter) Add(data []byte) {
	for i := uint32(0); i < f.k; i++ {
		f.bits.Set(hashData(data, uint64(i)) % f.m)
	}
	f.count++
}

// AddString adds a string to the bloom filter without allocating.
func (f *Filter) AddString(s string) {
	for i := uint32(0); i < f.k; i++ {
		f.bits.Set(hashString(s, uint64(i)) % f.m)
	}
	f.count++
}

// Test checks if data might be in the bloom filter.
// Returns true if the data might be present (with false positive probability),
// or false if the data is definitely not present.
func (f *Filter) Test(data []byte) bool {
	for i := uint32(0); i < f.k; i++ {
		if !f.bits.Get(hashData(data, uint64(i)) % f.m) {
			return false
		}
	}
	return true
}

// TestString checks if a string might be in the bloom filter without allocating.
func (f *Filter) TestString(s string) bool {
	for i := uint32(0); i < f.k; i++ {
		if !f.bits.Get(hashString(s, uint64(i)) % f.m) {
			return false
		}
	}
	return true
}

// TestAndAdd checks whether data might already be in the filter and adds it,
// in a single pass over the probe bits. It returns true if the data might
// have been present before the call. The count only advances when the data
// was not already present.
func (f *Filter) TestAndAdd(data []byte) bool {
	present := true
	for i := uint32(0); i < f.k; i++ {
		idx := hashData(data, uint64(i)) % f.m
		if !f.bits.Get(idx) {
			present = false
			f.bits.Set(idx)
		}
	}

	if !present {
		f.count++
	}
	return present
}

// TestAndAddString is TestAndAdd for string keys, without allocating.
func (f *Filter) TestAndAddString(s string) bool {
	present := true
	for i := uint32(0); i < f.k; i++ {
		idx := hashString(s, uint64(i)) % f.m
		if !f.bits.Get(idx) {
			present = false
			f.bits.Set(idx)
		}
	}

	if !present {
		f.count++
	}
	return present
}

// Cap returns the capacity of the filter in bits.
func (f *Filter) Cap() uint64 {
	return f.m
}

// K returns the number of hash probes used per key.
func (f *Filter) K() uint32 {
	return f.k
}

// Count returns the approximate number of items added to the filter.
func (f *Filter) Count() uint64 {
	return f.count
}

// Clear resets the filter to its empty state. This discards the whole set at
// once; individual items can never be removed.
func (f *Filter) Clear() {
	f.bits.ClearAll()
	f.count = 0
}

// EstimatedFillRatio estimates the proportion of bits that are set.
func (f *Filter) EstimatedFillRatio() float64 {
	return float64(f.bits.Count()) / float64(f.m)
}

// EstimatedFalsePositiveRate estimates the current false positive rate
// based on the number of items added.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.m, f.k, f.count)
}

// AtomicFilter is a thread-safe bloom filter using atomic operations.
// It uses the same seeded k-probe design as Filter but keeps its bits in
// atomic.Uint64 words so multiple goroutines can Add and Test concurrently.
type AtomicFilter struct {
	raw   []byte          // Raw allocation to keep aligned memory alive for GC
	words []atomic.Uint64 // Packed bits, 64 per word (cache-line aligned)
	m     uint64          // Capacity in bits
	k     uint32          // Number of hash probes per key
	count atomic.Uint64   // Number of items added (approximate)
}

// NewAtomicFilter creates a thread-safe bloom filter with exactly capacity
// bits and hashCount hash probes per key. It returns ErrInvalidCapacity or
// ErrInvalidHashCount when either parameter is zero.
func NewAtomicFilter(capacity uint64, hashCount uint32) (*AtomicFilter, error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	if hashCount == 0 {
		return nil, ErrInvalidHashCount
	}

	raw, words := makeAlignedAtomicUint64Slice(int((capacity + 63) / 64))

	return &AtomicFilter{
		raw:   raw,
		words: words,
		m:     capacity,
		k:     hashCount,
	}, nil
}

// NewAtomicFilterWithEstimates creates a thread-safe bloom filter sized for
// the expected number of items and desired false positive rate.
func NewAtomicFilterWithEstimates(expectedItems uint64, fpRate float64) (*AtomicFilter, error) {
	capacity, hashCount, _ := OptimalParams(expectedItems, fpRate)
	return NewAtomicFilter(capacity, hashCount)
}

// Add adds data to the bloom filter atomically.
func (f *AtomicFilter) Add(data []byte) {
	for i := uint32(0); i < f.k; i++ {
		idx := hashData(data, uint64(i)) % f.m
		// Use atomic OR - most efficient on Go 1.23+
		f.words[idx>>6].Or(1 << (idx & 63))
	}
	f.count.Add(1)
}

// AddString adds a string to the bloom filter atomically without allocating.
func (f *AtomicFilter) AddString(s string) {
	for i := uint32(0); i < f.k; i++ {
		idx := hashString(s, uint64(i)) % f.m
		f.words[idx>>6].Or(1 << (idx & 63))
	}
	f.count.Add(1)
}

// Test checks if data might be in the bloom filter.
// This operation is safe to call concurrently with Add.
func (f *AtomicFilter) Test(data []byte) bool {
	for i := uint32(0); i < f.k; i++ {
		idx := hashData(data, uint64(i)) % f.m
		if f.words[idx>>6].Load()&(1<<(idx&63)) == 0 {
			return false
		}
	}
	return true
}

// TestString checks if a string might be in the bloom filter.
func (f *AtomicFilter) TestString(s string) bool {
	for i := uint32(0); i < f.k; i++ {
		idx := hashString(s, uint64(i)) % f.m
		if f.words[idx>>6].Load()&(1<<(idx&63)) == 0 {
			return false
		}
	}
	return true
}

// TestAndAdd checks whether data might already be in the filter and adds it.
// Each probe bit is set with an atomic OR that reports the bit's previous
// value, but the k probes together are not one atomic operation: concurrent
// callers inserting the same new key may each observe it as new. Use it for
// best-effort deduplication, not strict mutual exclusion.
func (f *AtomicFilter) TestAndAdd(data []byte) bool {
	present := true
	for i := uint32(0); i < f.k; i++ {
		idx := hashData(data, uint64(i)) % f.m
		mask := uint64(1) << (idx & 63)
		if f.words[idx>>6].Or(mask)&mask == 0 {
			present = false
		}
	}

	if !present {
		f.count.Add(1)
	}
	return present
}

// TestAndAddString is TestAndAdd for string keys, without allocating.
func (f *AtomicFilter) TestAndAddString(s string) bool {
	present := true
	for i := uint32(0); i < f.k; i++ {
		idx := hashString(s, uint64(i)) % f.m
		mask := uint64(1) << (idx & 63)
		if f.words[idx>>6].Or(mask)&mask == 0 {
			present = false
		}
	}

	if !present {
		f.count.Add(1)
	}
	return present
}

// Cap returns the capacity of the filter in bits.
func (f *AtomicFilter) Cap() uint64 {
	return f.m
}

// K returns the number of hash probes used per key.
func (f *AtomicFilter) K() uint32 {
	return f.k
}

// Count returns the approximate number of items added to the filter.
func (f *AtomicFilter) Count() uint64 {
	return f.count.Load()
}

// Clear resets the filter to its empty state. It is not atomic with respect
// to in-flight Add calls; quiesce writers before clearing.
func (f *AtomicFilter) Clear() {
	for i := range f.words {
		f.words[i].Store(0)
	}
	f.count.Store(0)
}

// EstimatedFillRatio estimates the proportion of bits that are set.
func (f *AtomicFilter) EstimatedFillRatio() float64 {
	var setBits uint64
	for i := range f.words {
		setBits += uint64(bits.OnesCount64(f.words[i].Load()))
	}
	return float64(setBits) / float64(f.m)
}

// EstimatedFalsePositiveRate estimates the current false positive rate.
func (f *AtomicFilter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.m, f.k, f.count.Load())
}

// ShardedAtomicFilter is a thread-safe bloom filter that distributes writes
// across multiple shards to reduce contention under parallel workloads.
// Each shard is an independent AtomicFilter, and keys are consistently
// routed to shards by a dedicated routing hash.
type ShardedAtomicFilter struct {
	shards    []*AtomicFilter
	numShards uint64
	mask      uint64 // numShards - 1, for fast modulo
}

// NewShardedAtomicFilter creates a sharded thread-safe bloom filter.
// numShards must be a power of 2 (will be rounded up if not). The total
// capacity is distributed evenly across shards. It returns
// ErrInvalidCapacity or ErrInvalidHashCount when either parameter is zero.
func NewShardedAtomicFilter(capacity uint64, hashCount uint32, numShards uint64) (*ShardedAtomicFilter, error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	if hashCount == 0 {
		return nil, ErrInvalidHashCount
	}

	// Round up to power of 2 (nextPowerOf2 always returns >= 1)
	numShards = nextPowerOf2(numShards)

	// Distribute capacity across shards
	bitsPerShard := (capacity + numShards - 1) / numShards

	shards := make([]*AtomicFilter, numShards)
	for i := range shards {
		shard, err := NewAtomicFilter(bitsPerShard, hashCount)
		if err != nil {
			return nil, err
		}
		shards[i] = shard
	}

	return &ShardedAtomicFilter{
		shards:    shards,
		numShards: numShards,
		mask:      numShards - 1,
	}, nil
}

// NewShardedAtomicFilterDefault creates a sharded filter with a number of
// shards automatically tuned to the current GOMAXPROCS value. This provides
// good parallel performance without over-sharding on smaller machines.
func NewShardedAtomicFilterDefault(capacity uint64, hashCount uint32) (*ShardedAtomicFilter, error) {
	numShards := max(uint64(runtime.GOMAXPROCS(0)), 4)
	return NewShardedAtomicFilter(capacity, hashCount, numShards)
}

// shard returns the shard that owns data. Routing hashes with its own seed,
// so shard selection stays independent of the probe positions inside the
// shard.
func (f *ShardedAtomicFilter) shard(data []byte) *AtomicFilter {
	return f.shards[hashData(data, shardSeed)&f.mask]
}

// shardString returns the shard that owns the string key s.
func (f *ShardedAtomicFilter) shardString(s string) *AtomicFilter {
	return f.shards[hashString(s, shardSeed)&f.mask]
}

// Add adds data to the bloom filter.
func (f *ShardedAtomicFilter) Add(data []byte) {
	f.shard(data).Add(data)
}

// AddString adds a string to the bloom filter without allocating.
func (f *ShardedAtomicFilter) AddString(s string) {
	f.shardString(s).AddString(s)
}

// Test checks if data might be in the bloom filter.
func (f *ShardedAtomicFilter) Test(data []byte) bool {
	return f.shard(data).Test(data)
}

// TestString checks if a string might be in the bloom filter.
func (f *ShardedAtomicFilter) TestString(s string) bool {
	return f.shardString(s).TestString(s)
}

// TestAndAdd checks whether data might already be in the filter and adds it.
// The same best-effort caveat as [AtomicFilter.TestAndAdd] applies.
func (f *ShardedAtomicFilter) TestAndAdd(data []byte) bool {
	return f.shard(data).TestAndAdd(data)
}

// TestAndAddString is TestAndAdd for string keys, without allocating.
func (f *ShardedAtomicFilter) TestAndAddString(s string) bool {
	return f.shardString(s).TestAndAddString(s)
}

// Cap returns the total capacity of all shards in bits.
func (f *ShardedAtomicFilter) Cap() uint64 {
	var total uint64
	for _, shard := range f.shards {
		total += shard.Cap()
	}
	return total
}

// K returns the number of hash probes used per shard.
func (f *ShardedAtomicFilter) K() uint32 {
	return f.shards[0].K()
}

// Count returns the approximate total number of items added.
func (f *ShardedAtomicFilter) Count() uint64 {
	var total uint64
	for _, shard := range f.shards {
		total += shard.Count()
	}
	return total
}

// NumShards returns the number of shards.
func (f *ShardedAtomicFilter) NumShards() uint64 {
	return f.numShards
}

// Clear resets every shard to its empty state. The same caveat as
// [AtomicFilter.Clear] applies.
func (f *ShardedAtomicFilter) Clear() {
	for _, shard := range f.shards {
		shard.Clear()
	}
}

// EstimatedFillRatio estimates the average fill ratio across all shards.
func (f *ShardedAtomicFilter) EstimatedFillRatio() float64 {
	var totalBits, setBits uint64
	for _, shard := range f.shards {
		totalBits += shard.Cap()
		setBits += uint64(float64(shard.Cap()) * shard.EstimatedFillRatio())
	}
	// totalBits is always > 0 since shards always have capacity
	return float64(setBits) / float64(totalBits)
}

// EstimatedFalsePositiveRate estimates the current false positive rate.
// For sharded filters, this is approximately the average across shards.
func (f *ShardedAtomicFilter) EstimatedFalsePositiveRate() float64 {
	var sum float64
	for _, shard := range f.shards {
		sum += shard.EstimatedFalsePositiveRate()
	}
	return sum / float64(f.numShards)
}

// nextPowerOf2 returns the smallest power of 2 >= n.
func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

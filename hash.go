package sketch

import "github.com/zeebo/xxh3"

// The filters and the estimator share one seeded hash family built on xxh3.
// Probe i of a filter hashes with seed i, the estimator hashes with a single
// fixed seed, and sharded filters route with their own seed so that shard
// selection stays independent of probe positions. Different seeds give
// effectively independent 64-bit values for the same input.

const (
	// estimatorSeed is the fixed seed used for all cardinality hashing.
	estimatorSeed uint64 = 0

	// shardSeed routes keys to shards. Kept far away from the probe
	// seeds 0..k-1 so routing never correlates with bit positions.
	shardSeed uint64 = 0x9e3779b97f4a7c15
)

// hashData computes the seeded xxh3 hash of the given data.
func hashData(data []byte, seed uint64) uint64 {
	return xxh3.HashSeed(data, seed)
}

// hashString computes the seeded xxh3 hash of the given string.
// This avoids the allocation of converting string to []byte.
func hashString(s string, seed uint64) uint64 {
	return xxh3.HashStringSeed(s, seed)
}

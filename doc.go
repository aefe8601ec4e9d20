// Package sketch provides space-efficient probabilistic set sketches for Go:
// bloom filters for approximate membership and HyperLogLog estimators for
// approximate distinct counts.
//
// A bloom filter answers "have I seen this value?" using a fixed budget of
// bits. False positive matches are possible, but false negatives are not –
// if the filter says a value is not present, it definitely is not. A
// HyperLogLog estimator answers "how many distinct values have I seen?"
// within a few percent, using a few kilobytes regardless of how many values
// flow through it. The two structures are independent and share only the
// hash family.
//
// # Design
//
// Both sketches hash with xxh3, a fast non-cryptographic 64-bit hash.
//
// Filters use the classic k-probe design: each key is hashed k times with
// seeds 0..k-1, and probe i addresses bit hash_i mod m in a packed
// [BitSet]. Seeded re-hashing keeps the probes independent for any m and k,
// at the cost of k hash evaluations per operation.
//
// Estimators hash each value once with a fixed seed. The low bits of the
// hash pick a bucket, the leftmost 1-bit of the remaining bits scores it,
// and every bucket keeps the highest score it has seen. The harmonic mean
// of the bucket scores yields the distinct count, with linear counting
// taking over for small sets and a saturation correction for counts
// approaching the size of the hash space.
//
// # Implementations
//
// Three filter implementations are provided for different use cases:
//
// [Filter] is the fastest option for single-threaded workloads. It has no
// synchronization overhead.
//
// [AtomicFilter] provides thread-safety using lock-free atomic operations.
// Multiple goroutines can safely call Add and Test concurrently. It uses
// [sync/atomic.Uint64.Or] (Go 1.23+) for efficient atomic bit-setting.
//
// [ShardedAtomicFilter] distributes keys across multiple independent shards
// to reduce contention under heavy parallel writes. The shard count is
// auto-tuned to GOMAXPROCS by default. Use this when you have many
// goroutines performing concurrent writes.
//
// The estimator comes in two variants: [Estimator] for single-threaded use
// and [AtomicEstimator], which packs buckets into atomic words and raises
// them with compare-and-swap so concurrent adds never lose an update.
//
// # Choosing Parameters
//
// Filters take their capacity in bits and hash probe count directly:
//
//	// 1 MiB of bits, 7 probes per key
//	f, err := sketch.NewFilter(8*1024*1024, 7)
//
// When you know the workload instead, [NewFilterWithEstimates] sizes the
// filter for an expected item count and target false positive rate using
// the rate-optimal formulas in [OptimalParams]:
//
//	// Filter for 1 million items with 1% false positive rate
//	f, err := sketch.NewFilterWithEstimates(1_000_000, 0.01)
//
// Estimators take a precision p and use 2^p buckets of one byte each. The
// standard error is about 1.04/sqrt(2^p), so precision 14 costs 16 KiB and
// is accurate to roughly 0.8%:
//
//	e, err := sketch.NewEstimator(14)
//
// Constructors validate their parameters and fail fast: a zero capacity,
// zero hash count, or out-of-range precision returns [ErrInvalidCapacity],
// [ErrInvalidHashCount], or [ErrInvalidPrecision] rather than producing a
// sketch that silently misbehaves.
//
// # False Positive Rate
//
// A filter's false positive rate depends on its capacity m, its probe
// count k, and the number of items added n, approximately
// (1 - e^(-kn/m))^k. When filled to its intended capacity a filter sized
// by [NewFilterWithEstimates] achieves approximately the target rate;
// adding more items than planned degrades it. Use
// [Filter.EstimatedFalsePositiveRate] to monitor the current rate.
//
// # Memory Usage
//
// A filter uses m/8 bytes of bit storage. For a filter sized for n items
// at false positive rate p:
//
//	memory_bits ≈ -n * ln(p) / (ln(2))²
//
// Example: 1 million items at 1% FP rate ≈ 1.2 MB. An estimator uses
// 2^precision bytes: 1 KiB at precision 10, 16 KiB at precision 14.
//
// # Thread Safety
//
// [Filter], [Estimator], and [BitSet] are NOT thread-safe. Use external
// synchronization or choose the atomic variants for concurrent access.
//
// [AtomicFilter], [ShardedAtomicFilter], and [AtomicEstimator] are safe
// for concurrent adds and reads. Reads running concurrently with writes
// are eventually consistent: they observe some subset of the in-flight
// adds, never torn state.
//
// The TestAndAdd methods are NOT a single atomic operation – concurrent
// callers inserting the same new key may each observe it as new. Use them
// for best-effort deduplication, not strict mutual exclusion.
//
// # Performance Tips
//
//   - Use [Filter] for single-threaded workloads (fastest)
//   - Use [ShardedAtomicFilter] for write-heavy concurrent workloads
//   - Use [AtomicFilter] for read-heavy concurrent workloads
//   - Use string methods ([Filter.AddString], [Filter.TestString]) to avoid
//     allocating when you have string keys
//   - Use [Estimator.AddHash] when you already have a well-distributed
//     64-bit hash of the value
//   - Build with GOAMD64=v2 or higher to enable hardware POPCNT for
//     [Filter.EstimatedFillRatio]
//
// # References
//
//   - Bloom: "Space/Time Trade-offs in Hash Coding with Allowable Errors"
//   - Flajolet et al: "HyperLogLog: the analysis of a near-optimal
//     cardinality estimation algorithm"
//   - Less Hashing, Same Performance: https://www.eecs.harvard.edu/~michaelm/postscripts/rsa2008.pdf
package sketch

package sketch

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"
)

const (
	// MinPrecision is the smallest supported estimator precision. Bucket
	// counts below 16 have no published bias correction constant.
	MinPrecision = 4

	// MaxPrecision is the largest supported estimator precision. 2^24
	// buckets is 16 MiB of state; beyond that memory grows much faster
	// than accuracy.
	MaxPrecision = 24

	// two64 is 2^64, the size of the hash space.
	two64 float64 = 1 << 64
)

// ErrInvalidPrecision is returned when an estimator is constructed with a
// precision outside [MinPrecision, MaxPrecision].
var ErrInvalidPrecision = errors.New("sketch: precision out of range")

// Estimator approximates the number of distinct values in a stream using
// the HyperLogLog sketch.
//
// Every value is hashed once with a fixed seed. The low precision bits of
// the hash select one of 2^precision buckets, and the remaining bits are
// scored by the position of their leftmost 1-bit (the rank). Each bucket
// remembers the highest rank it has seen; rare high ranks are evidence of
// many distinct values. Adding a value the estimator has already seen can
// never change any bucket, so duplicates are free.
//
// The standard error of Estimate is about 1.04/sqrt(2^precision):
// precision 10 gives roughly 3.2%, precision 14 roughly 0.8%.
//
// Estimator is not safe for concurrent use; see [AtomicEstimator].
type Estimator struct {
	buckets   []uint8 // Highest rank seen per bucket
	mask      uint64  // bucketCount - 1, for fast modulo
	alpha     float64 // Bias correction for this bucket count
	precision uint8   // Number of low hash bits used for bucket selection
}

// NewEstimator creates an estimator with 2^precision buckets, all empty.
// It returns ErrInvalidPrecision if precision is outside
// [MinPrecision, MaxPrecision].
func NewEstimator(precision uint8) (*Estimator, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return nil, fmt.Errorf("%w: got %d, supported range is [%d, %d]",
			ErrInvalidPrecision, precision, MinPrecision, MaxPrecision)
	}

	bucketCount := uint64(1) << precision
	return &Estimator{
		buckets:   make([]uint8, bucketCount),
		mask:      bucketCount - 1,
		alpha:     alphaFor(bucketCount),
		precision: precision,
	}, nil
}

// Add adds a value to the estimator.
func (e *Estimator) Add(data []byte) {
	e.AddHash(hashData(data, estimatorSeed))
}

// AddString adds a string value to the estimator without allocating.
func (e *Estimator) AddString(s string) {
	e.AddHash(hashString(s, estimatorSeed))
}

// AddHash adds a value by its pre-computed 64-bit hash. Use this when the
// caller already has a well-distributed hash of the value; the hash quality
// directly determines the quality of the estimate.
func (e *Estimator) AddHash(h uint64) {
	j := h & e.mask
	r := rank(h>>e.precision, 64-e.precision)
	if r > e.buckets[j] {
		e.buckets[j] = r
	}
}

// Estimate returns the approximate number of distinct values added.
//
// The raw harmonic-mean estimate E = alpha * m^2 / sum(2^-bucket) is
// corrected at the extremes. When E <= 2.5*m and empty buckets remain,
// linear counting over the V empty buckets (m * ln(m/V)) is more accurate
// and is used instead; with nothing added this branch returns exactly 0.
// When E exceeds 2^64/30 the hash space itself starts to saturate, and E
// is remapped through -2^64 * ln(1 - E/2^64). Between the two corrections
// the raw estimate is returned as is.
//
// Estimate only reads bucket state: it never modifies the estimator, and
// the same bucket state always produces the same value.
func (e *Estimator) Estimate() float64 {
	var z float64
	var zeros uint64
	for _, r := range e.buckets {
		z += math.Exp2(-float64(r))
		if r == 0 {
			zeros++
		}
	}
	return correctedEstimate(e.alpha, float64(len(e.buckets)), z, zeros)
}

// Precision returns the precision the estimator was created with.
func (e *Estimator) Precision() uint8 {
	return e.precision
}

// BucketCount returns the number of buckets (2^precision).
func (e *Estimator) BucketCount() uint64 {
	return e.mask + 1
}

// Clear resets the estimator to its empty state.
func (e *Estimator) Clear() {
	clear(e.buckets)
}

// AtomicEstimator is a thread-safe HyperLogLog estimator. Buckets are
// packed eight to an atomic.Uint64 word and raised with a compare-and-swap
// loop, so concurrent adds never lose a bucket update. An Estimate taken
// while adds are in flight reflects some subset of them, never torn state.
type AtomicEstimator struct {
	raw       []byte          // Raw allocation to keep aligned memory alive for GC
	words     []atomic.Uint64 // Buckets packed 8 per word (cache-line aligned)
	mask      uint64          // bucketCount - 1, for fast modulo
	alpha     float64         // Bias correction for this bucket count
	precision uint8           // Number of low hash bits used for bucket selection
}

// NewAtomicEstimator creates a thread-safe estimator with 2^precision
// buckets, all empty. It returns ErrInvalidPrecision if precision is
// outside [MinPrecision, MaxPrecision].
func NewAtomicEstimator(precision uint8) (*AtomicEstimator, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return nil, fmt.Errorf("%w: got %d, supported range is [%d, %d]",
			ErrInvalidPrecision, precision, MinPrecision, MaxPrecision)
	}

	bucketCount := uint64(1) << precision
	raw, words := makeAlignedAtomicUint64Slice(int(bucketCount / 8))

	return &AtomicEstimator{
		raw:       raw,
		words:     words,
		mask:      bucketCount - 1,
		alpha:     alphaFor(bucketCount),
		precision: precision,
	}, nil
}

// Add adds a value to the estimator atomically.
func (e *AtomicEstimator) Add(data []byte) {
	e.AddHash(hashData(data, estimatorSeed))
}

// AddString adds a string value to the estimator atomically without
// allocating.
func (e *AtomicEstimator) AddString(s string) {
	e.AddHash(hashString(s, estimatorSeed))
}

// AddHash adds a value by its pre-computed 64-bit hash.
func (e *AtomicEstimator) AddHash(h uint64) {
	j := h & e.mask
	r := rank(h>>e.precision, 64-e.precision)

	word := &e.words[j>>3]
	shift := (j & 7) << 3
	for {
		old := word.Load()
		if uint8(old>>shift) >= r {
			return
		}
		updated := (old &^ (uint64(0xff) << shift)) | (uint64(r) << shift)
		if word.CompareAndSwap(old, updated) {
			return
		}
	}
}

// Estimate returns the approximate number of distinct values added.
// See [Estimator.Estimate] for the correction regimes.
// This operation is safe to call concurrently with Add.
func (e *AtomicEstimator) Estimate() float64 {
	var z float64
	var zeros uint64
	for i := range e.words {
		word := e.words[i].Load()
		for shift := 0; shift < 64; shift += 8 {
			r := uint8(word >> shift)
			z += math.Exp2(-float64(r))
			if r == 0 {
				zeros++
			}
		}
	}
	return correctedEstimate(e.alpha, float64(e.mask+1), z, zeros)
}

// Precision returns the precision the estimator was created with.
func (e *AtomicEstimator) Precision() uint8 {
	return e.precision
}

// BucketCount returns the number of buckets (2^precision).
func (e *AtomicEstimator) BucketCount() uint64 {
	return e.mask + 1
}

// Clear resets the estimator to its empty state. It is not atomic with
// respect to in-flight Add calls; quiesce writers before clearing.
func (e *AtomicEstimator) Clear() {
	for i := range e.words {
		e.words[i].Store(0)
	}
}

// alphaFor returns the bias correction constant for a bucket count. The
// three smallest bucket counts use the published constants; larger counts
// use the closed form.
func alphaFor(bucketCount uint64) float64 {
	switch bucketCount {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	}
	return 0.7213 / (1 + 1.079/float64(bucketCount))
}

// rank returns the position of the leftmost 1-bit of w counting from 1
// within a field width bits wide, or width+1 when w is zero. The result is
// always in [1, width+1].
func rank(w uint64, width uint8) uint8 {
	return width + 1 - uint8(bits.Len64(w))
}

// correctedEstimate applies the small and large range corrections to the
// raw harmonic-mean estimate.
func correctedEstimate(alpha, m, z float64, zeros uint64) float64 {
	est := alpha * m * m / z
	switch {
	case est <= 2.5*m && zeros > 0:
		// Small range: linear counting over the empty buckets
		return m * math.Log(m/float64(zeros))
	case est > two64/30:
		// Large range: undo the saturation of the 64-bit hash space
		return -two64 * math.Log(1-est/two64)
	}
	return est
}

package sketch

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// splitmix64 is a deterministic 64-bit mixer used to synthesize
// well-distributed hashes for AddHash without depending on any particular
// string hash.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func TestEstimatorValidation(t *testing.T) {
	for _, precision := range []uint8{0, 1, 3, 25, 64} {
		e, err := NewEstimator(precision)
		require.ErrorIs(t, err, ErrInvalidPrecision, "precision %d", precision)
		require.Nil(t, e)

		a, err := NewAtomicEstimator(precision)
		require.ErrorIs(t, err, ErrInvalidPrecision, "precision %d", precision)
		require.Nil(t, a)
	}

	for _, precision := range []uint8{MinPrecision, 10, 14, MaxPrecision} {
		e, err := NewEstimator(precision)
		require.NoError(t, err)
		require.Equal(t, precision, e.Precision())
		require.Equal(t, uint64(1)<<precision, e.BucketCount())
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		w     uint64
		width uint8
		want  uint8
	}{
		{0, 60, 61},           // all zeros scores the maximum
		{1, 60, 60},           // 59 leading zeros in a 60-bit field
		{2, 60, 59},
		{3, 60, 59},
		{1 << 59, 60, 1},      // top bit set scores 1
		{1<<60 - 1, 60, 1},    // any value with the top bit set scores 1
		{0, 54, 55},
		{1, 54, 54},
		{1 << 53, 54, 1},
		{0, 40, 41},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, rank(tt.w, tt.width),
			"rank(%#x, %d)", tt.w, tt.width)
	}
}

func TestEstimatorBucketSelection(t *testing.T) {
	e, err := NewEstimator(4)
	require.NoError(t, err)

	// The low precision bits pick the bucket, the rest score it.
	// 0b1_0101: bucket 5, w=1, so rank is (64-4) - 1 + 1 = 60.
	e.AddHash(1<<4 | 5)
	require.Equal(t, uint8(60), e.buckets[5])
	for j, r := range e.buckets {
		if j != 5 {
			require.Zero(t, r, "bucket %d", j)
		}
	}

	// A lower rank for the same bucket must not lower it
	e.AddHash(1<<63 | 5)
	require.Equal(t, uint8(60), e.buckets[5])

	// A higher rank replaces it: w=0 scores the ceiling 61
	e.AddHash(5)
	require.Equal(t, uint8(61), e.buckets[5])
}

func TestEstimatorRankCeiling(t *testing.T) {
	e, err := NewEstimator(4)
	require.NoError(t, err)

	// w=0 for every bucket: each must sit exactly at the ceiling W-b+1
	for j := uint64(0); j < 16; j++ {
		e.AddHash(j)
	}
	for j, r := range e.buckets {
		require.Equal(t, uint8(61), r, "bucket %d", j)
	}
}

func TestEstimatorZeroState(t *testing.T) {
	e, err := NewEstimator(14)
	require.NoError(t, err)
	require.Equal(t, 0.0, e.Estimate())

	a, err := NewAtomicEstimator(14)
	require.NoError(t, err)
	require.Equal(t, 0.0, a.Estimate())
}

func TestEstimatorSmallRange(t *testing.T) {
	// Five distinct values in 16 buckets force the linear counting branch:
	// the raw estimate is far below 2.5*m and empty buckets remain.
	e, err := NewEstimator(4)
	require.NoError(t, err)

	for j := uint64(0); j < 5; j++ {
		e.AddHash(j)
	}

	est := e.Estimate()
	require.InDelta(t, 5, est, 2)
	// Exactly 11 empty buckets left: 16 * ln(16/11)
	require.InEpsilon(t, 5.995095191062571, est, 1e-9)
}

func TestEstimatorSmallRangeStrings(t *testing.T) {
	e, err := NewEstimator(4)
	require.NoError(t, err)

	values := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for _, v := range values {
		e.AddString(v)
	}

	require.InDelta(t, float64(len(values)), e.Estimate(), 3)
}

func TestEstimatorLargeRange(t *testing.T) {
	// Rank 60 in all 16 buckets pushes the raw estimate past 2^64/30,
	// forcing the saturation correction.
	e, err := NewEstimator(4)
	require.NoError(t, err)

	for j := uint64(0); j < 16; j++ {
		e.AddHash(1<<4 | j)
	}

	est := e.Estimate()
	require.Greater(t, est, two64/30)
	require.InEpsilon(t, 2.061968028568636e+19, est, 1e-9)
}

func TestEstimatorAccuracy(t *testing.T) {
	// 100k distinct hashes at precision 10 (1024 buckets, ~3.2% standard
	// error) must land within 5%. splitmix64 over a counter keeps the
	// inputs distinct and the run fully deterministic.
	e, err := NewEstimator(10)
	require.NoError(t, err)

	const n = 100_000
	for i := uint64(0); i < n; i++ {
		e.AddHash(splitmix64(i))
	}

	est := e.Estimate()
	require.InEpsilon(t, float64(n), est, 0.05)
	t.Logf("estimate for %d distinct: %.1f (%.2f%% off)", n, est, 100*(est-n)/n)
}

func TestEstimatorAccuracyStrings(t *testing.T) {
	// Same check through the string path at precision 14 (~0.8% standard
	// error), where 5% is a very comfortable margin.
	e, err := NewEstimator(14)
	require.NoError(t, err)

	const n = 100_000
	for i := range n {
		e.AddString(fmt.Sprintf("item-%d", i))
	}

	est := e.Estimate()
	require.InEpsilon(t, float64(n), est, 0.05)
	t.Logf("estimate for %d distinct: %.1f (%.2f%% off)", n, est, 100*(est-float64(n))/float64(n))
}

func TestEstimatorDuplicatesFree(t *testing.T) {
	e, err := NewEstimator(10)
	require.NoError(t, err)

	for i := range 1000 {
		e.AddString(fmt.Sprintf("item-%d", i))
	}
	snapshot := slices.Clone(e.buckets)
	first := e.Estimate()

	// Feed every value again, several times
	for range 3 {
		for i := range 1000 {
			e.AddString(fmt.Sprintf("item-%d", i))
		}
	}

	require.Equal(t, snapshot, e.buckets, "duplicates changed bucket state")
	require.Equal(t, first, e.Estimate())
}

func TestEstimatorMonotoneBuckets(t *testing.T) {
	e, err := NewEstimator(10)
	require.NoError(t, err)

	prev := make([]uint8, len(e.buckets))
	for i := range 5000 {
		e.AddString(fmt.Sprintf("item-%d", i))

		for j := range e.buckets {
			require.GreaterOrEqual(t, e.buckets[j], prev[j],
				"bucket %d decreased at add %d", j, i)
		}
		copy(prev, e.buckets)
	}
}

func TestEstimatorOrderIndependence(t *testing.T) {
	forward, err := NewEstimator(12)
	require.NoError(t, err)
	backward, err := NewEstimator(12)
	require.NoError(t, err)

	const n = 2000
	for i := range n {
		forward.AddString(fmt.Sprintf("item-%d", i))
	}
	for i := n - 1; i >= 0; i-- {
		backward.AddString(fmt.Sprintf("item-%d", i))
	}

	require.Equal(t, forward.buckets, backward.buckets)
	require.Equal(t, forward.Estimate(), backward.Estimate())
}

func TestEstimatorClear(t *testing.T) {
	e, err := NewEstimator(10)
	require.NoError(t, err)

	for i := range 100 {
		e.AddString(fmt.Sprintf("item-%d", i))
	}
	require.Greater(t, e.Estimate(), 0.0)

	e.Clear()
	require.Equal(t, 0.0, e.Estimate())
}

func TestAlphaConstants(t *testing.T) {
	require.Equal(t, 0.673, alphaFor(16))
	require.Equal(t, 0.697, alphaFor(32))
	require.Equal(t, 0.709, alphaFor(64))
	require.Equal(t, 0.7213/(1+1.079/128), alphaFor(128))
	require.Equal(t, 0.7213/(1+1.079/16384), alphaFor(16384))
}

func TestAtomicEstimatorBasic(t *testing.T) {
	e, err := NewAtomicEstimator(10)
	require.NoError(t, err)

	for i := range 100 {
		e.AddString(fmt.Sprintf("item-%d", i))
	}
	e.Add([]byte("bytes-key"))
	e.AddHash(splitmix64(12345))

	require.InDelta(t, 102, e.Estimate(), 10)
	require.Equal(t, uint8(10), e.Precision())
	require.Equal(t, uint64(1024), e.BucketCount())
}

func TestAtomicEstimatorMatchesSequential(t *testing.T) {
	seq, err := NewEstimator(12)
	require.NoError(t, err)
	conc, err := NewAtomicEstimator(12)
	require.NoError(t, err)

	const n = 10_000
	for i := range n {
		seq.AddString(fmt.Sprintf("item-%d", i))
	}

	// Every goroutine adds the whole key set. Bucket updates are
	// max-operations, so the duplicate writes must not change the outcome,
	// only contend on the CAS loop.
	const numGoroutines = 8
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for i := range n {
				conc.AddString(fmt.Sprintf("item-%d", i))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, seq.Estimate(), conc.Estimate())
}

func TestAtomicEstimatorClear(t *testing.T) {
	e, err := NewAtomicEstimator(10)
	require.NoError(t, err)

	for i := range 100 {
		e.AddString(fmt.Sprintf("item-%d", i))
	}
	require.Greater(t, e.Estimate(), 0.0)

	e.Clear()
	require.Equal(t, 0.0, e.Estimate())
}

func TestEstimatorAccuracyAcrossPrecisions(t *testing.T) {
	// Standard error is 1.04/sqrt(2^p); allow 4 standard errors at every
	// precision.
	const n = 50_000
	for _, precision := range []uint8{6, 8, 10, 12, 14} {
		e, err := NewEstimator(precision)
		require.NoError(t, err)

		for i := uint64(0); i < n; i++ {
			e.AddHash(splitmix64(i))
		}

		est := e.Estimate()
		tolerance := 4 * 1.04 / math.Sqrt(float64(uint64(1)<<precision))
		require.InEpsilon(t, float64(n), est, tolerance,
			"precision %d", precision)
		t.Logf("precision %2d: estimate %.0f (%+.2f%%)",
			precision, est, 100*(est-n)/n)
	}
}

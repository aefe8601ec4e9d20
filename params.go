package sketch

import "math"

const (
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014
)

// OptimalParams calculates rate-optimal bloom filter parameters for the
// expected number of items and target false positive rate. It returns the
// capacity in bits, the number of hash probes (k), and the bits of storage
// per item.
//
// The capacity comes from m = -n * ln(p) / (ln 2)^2 rounded up, and the
// probe count from k = (m/n) * ln(2) rounded to the nearest integer, with
// k clamped to at least 1. Degenerate inputs are nudged into range:
// expectedItems 0 is treated as 1, and fpRate outside (0, 1) falls back to
// 0.0001 or 0.99.
func OptimalParams(expectedItems uint64, fpRate float64) (capacity uint64, hashCount uint32, bitsPerItem float64) {
	if expectedItems == 0 {
		expectedItems = 1
	}
	if fpRate <= 0 {
		fpRate = 0.0001 // default to 0.01%
	}
	if fpRate >= 1 {
		fpRate = 0.99
	}

	// Optimal bits per item: -ln(fpRate) / ln(2)^2
	bitsPerItem = -math.Log(fpRate) / ln2Squared

	// Total bits needed, rounded up (always >= 1 since bitsPerItem > 0)
	capacity = uint64(math.Ceil(float64(expectedItems) * bitsPerItem))

	// Optimal k: (m/n) * ln(2)
	kFloat := float64(capacity) / float64(expectedItems) * ln2
	hashCount = uint32(math.Round(kFloat))
	hashCount = max(hashCount, 1)

	return capacity, hashCount, bitsPerItem
}

// EstimateFalsePositiveRate estimates the false positive rate for given parameters.
// Formula: (1 - e^(-kn/m))^k
func EstimateFalsePositiveRate(capacity uint64, hashCount uint32, itemsAdded uint64) float64 {
	m := float64(capacity)
	n := float64(itemsAdded)
	k := float64(hashCount)

	if m == 0 || n == 0 {
		return 0
	}

	// (1 - e^(-kn/m))^k
	return math.Pow(1-math.Exp(-k*n/m), k)
}

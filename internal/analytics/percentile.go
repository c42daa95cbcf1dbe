package analytics

import (
	"math"
	"sort"
)

// Percentile computes the p-th percentile (0..100) of a sample using linear
// interpolation between the two nearest ranks of the sorted sample (the
// "R-7" convention). The input is not modified. An empty sample yields 0.
func Percentile(sample []float64, p float64) float64 {
	n := len(sample)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sample[0]
	}

	sorted := make([]float64, n)
	copy(sorted, sample)
	sort.Float64s(sorted)

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// nearestRankIndex returns the index into a sorted sample for a nearest-rank
// percentile selection, used for picking representative sample paths.
func nearestRankIndex(n int, p float64) int {
	if n == 0 {
		return 0
	}
	i := int(math.Round(p / 100 * float64(n-1)))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Package distribution builds the discrete PMF/CDF used by both the
// primary-edge distribution and the flat secondary-edge distribution, and
// inverts it by CDF lookup.
package distribution

import "sort"

// Discrete1D is a normalized probability mass function over indices
// [0, len(PMF)) together with its exclusive-prefix-sum CDF.
type Discrete1D struct {
	PMF []float64
	CDF []float64
}

// Build normalizes weights into a PMF and its exclusive-prefix-sum CDF.
// If the weights sum to zero, PMF and CDF are both all-zero and sampling
// must fail cleanly. The prefix sum is computed left-to-right (not a
// parallel or pairwise tree) so results are bit-reproducible across runs.
func Build(weights []float64) Discrete1D {
	n := len(weights)
	d := Discrete1D{PMF: make([]float64, n), CDF: make([]float64, n)}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return d
	}
	running := 0.0
	for i, w := range weights {
		d.CDF[i] = running
		d.PMF[i] = w / total
		running += d.PMF[i]
	}
	return d
}

// IsZero reports whether the distribution has no positive-weight entries.
func (d Discrete1D) IsZero() bool {
	for _, p := range d.PMF {
		if p > 0 {
			return false
		}
	}
	return true
}

// Sample inverts the CDF for a uniform draw u in [0,1): returns the index
// just before the first entry whose CDF exceeds u (the upper-bound index
// minus one), clamped to [0, len-1].
func (d Discrete1D) Sample(u float64) int {
	n := len(d.CDF)
	if n == 0 {
		return -1
	}
	// upper_bound: first index with CDF[i] > u.
	i := sort.Search(n, func(i int) bool { return d.CDF[i] > u })
	idx := i - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

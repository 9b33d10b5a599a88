package secondary

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/math3d"
)

// lineIntegral evaluates the analytic LTC line integral over a clipped
// edge in LTC-local space and inverts its CDF by hybrid bisection/Newton.
type lineIntegral struct {
	vo, wt   math3d.Vec3
	l0, l1   float64
	d        float64
	normAtL1 float64 // I(l1) - I(l0)
}

func newLineIntegral(v0o, v1o math3d.Vec3) lineIntegral {
	wt := v1o.Sub(v0o).Normalize()
	l0 := v0o.Dot(wt)
	l1 := v1o.Dot(wt)
	vo := v0o.Sub(wt.Scale(l0))
	d := vo.Len()
	li := lineIntegral{vo: vo, wt: wt, l0: l0, l1: l1, d: d}
	li.normAtL1 = li.i(l1) - li.i(l0)
	return li
}

func (li lineIntegral) degenerate() bool {
	return li.d < 1e-12 || math.Abs(li.normAtL1) < 1e-12 || math.Abs(li.l1-li.l0) < 1e-12
}

// i is the antiderivative I(l) of the clamped-cosine line density along
// the edge.
func (li lineIntegral) i(l float64) float64 {
	d := li.d
	denom := d * (d*d + l*l)
	return (l/denom+math.Atan(l/d)/(d*d))*li.vo.Z + (l*l/denom)*li.wt.Z
}

// cdf is line_cdf(l).
func (li lineIntegral) cdf(l float64) float64 {
	return (li.i(l) - li.i(li.l0)) / li.normAtL1
}

// pdf is line_pdf(l).
func (li lineIntegral) pdf(l float64) float64 {
	d := li.d
	num := 2 * d * (li.vo.Add(li.wt.Scale(l))).Z
	denomSq := d*d + l*l
	return num / (li.normAtL1 * denomSq * denomSq)
}

// invert solves cdf(l) = t on [min(l0,l1), max(l0,l1)] via hybrid
// bisection/Newton: up to 20 iterations, stop when |value| < 1e-5, fall
// back to bisection whenever a Newton step would leave the current
// bracket.
func (li lineIntegral) invert(t float64) (float64, bool) {
	if li.degenerate() {
		return 0, false
	}
	lo, hi := li.l0, li.l1
	if lo > hi {
		lo, hi = hi, lo
	}
	l := 0.5 * (lo + hi)
	for iter := 0; iter < lineSearchMaxIter; iter++ {
		value := li.cdf(l) - t
		if math.Abs(value) < lineSearchTolerance {
			return l, true
		}
		if value < 0 {
			lo = l
		} else {
			hi = l
		}
		deriv := li.pdf(l)
		next := l
		if deriv > 1e-12 {
			next = l - value/deriv
		}
		if next <= lo || next >= hi {
			next = 0.5 * (lo + hi)
		}
		l = next
	}
	return l, true
}

// Package ltc implements the Linearly Transformed Cosine sphere integral
// used by the hierarchical secondary-edge sampler's importance function and
// by the secondary-edge sampler's BSDF setup. The LTC fitting tables
// themselves are external, process-wide lookup data loaded once at
// initialization — consumed here through the Table interface.
package ltc

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/math3d"
)

// Table is the external LTC fitting-table boundary. TabM returns the inverse
// LTC transform for a given roughness and incident angle cosine; TabSphere
// is the precomputed 2-D form-factor-to-average-direction lookup consumed by
// SphereIntegral's last step.
type Table interface {
	// TabM returns the inverse LTC matrix for roughness `rough` and cosine
	// of the incident angle `cosTheta`.
	TabM(rough, cosTheta float64) math3d.Mat3
	// TabSphere evaluates the precomputed sphere-integral lookup at
	// (avgDirZ, formFactor).
	TabSphere(avgDirZ, formFactor float64) float64
}

const ellipseAxisAlignedTol = 1e-4

// SphereIntegral evaluates the integral of a linearly-transformed clamped
// cosine over a spherical cap: the cap is stood in for by the disk of the
// same radius at the sphere centre, facing the shading point. center is
// expressed relative to the shading point; mInv (the LTC inverse transform
// composed with the world-to-local shading frame) maps it into the
// clamped-cosine lobe's local space. tab provides the final tabulated
// lookup.
//
// The construction follows Heitz & Dupuy's ellipse-to-equivalent-disk method
// for LTC disk lights: transform the disk frame, diagonalize its Gram
// matrix, solve the characteristic cubic, and read the proxy disk's average
// direction and form factor off the roots. The cubic is solved with the
// trigonometric depressed-cubic formula rather than the merged Blinn
// "Algorithm A"/"Algorithm D" pair — the merge only exists to avoid
// catastrophic cancellation in single precision, which float64 does not
// need. The ellipse-disk construction guarantees a non-negative discriminant
// for any valid (non-degenerate, front-facing) cap, so the three-real-root
// branch is the only one taken.
func SphereIntegral(mInv math3d.Mat3, center math3d.Vec3, radius float64, tab Table) float64 {
	t1, t2 := tangentFrame(center)

	c := mInv.MulVec3(center)
	v1 := mInv.MulVec3(t1.Scale(radius))
	v2 := mInv.MulVec3(t2.Scale(radius))

	if v1.Cross(v2).Dot(c) <= 0 {
		return 0
	}

	d11 := v1.Dot(v1)
	d22 := v2.Dot(v2)
	d12 := v1.Dot(v2)

	// Reduce the transformed frame to unit ellipse axes with reciprocal
	// squared lengths a, b.
	var a, b float64
	if math.Abs(d12)/math.Sqrt(d11*d22) > ellipseAxisAlignedTol {
		// Diagonalize the 2x2 Gram matrix in closed form.
		tr := d11 + d22
		det := math.Sqrt(math.Max(d11*d22-d12*d12, 0))
		u := 0.5 * math.Sqrt(math.Max(tr-2*det, 0))
		w := 0.5 * math.Sqrt(tr+2*det)
		eMax := (u + w) * (u + w)
		eMin := (u - w) * (u - w)

		var ax1, ax2 math3d.Vec3
		if d11 > d22 {
			ax1 = v1.Scale(d12).Add(v2.Scale(eMax - d11))
			ax2 = v1.Scale(d12).Add(v2.Scale(eMin - d11))
		} else {
			ax1 = v2.Scale(d12).Add(v1.Scale(eMax - d22))
			ax2 = v2.Scale(d12).Add(v1.Scale(eMin - d22))
		}
		a, b = 1/eMax, 1/eMin
		v1 = ax1.Normalize()
		v2 = ax2.Normalize()
	} else {
		a, b = 1/d11, 1/d22
		v1 = v1.Scale(math.Sqrt(a))
		v2 = v2.Scale(math.Sqrt(b))
	}

	v3 := v1.Cross(v2)
	if v3.Dot(c) < 0 {
		v3 = v3.Negate()
	}
	l := v3.Dot(c)
	if l <= 0 {
		return 0
	}
	x0 := v1.Dot(c) / l
	y0 := v2.Dot(c) / l
	a *= l * l
	b *= l * l

	c2 := 1 - a*(1+x0*x0) - b*(1+y0*y0)
	c1 := a*b*(1+x0*x0+y0*y0) - a - b
	c0 := a * b

	e1, e2, e3 := solveCubic(c2, c1, c0)
	if e2 >= 0 || e1 <= 0 || e3 <= 0 {
		// Tangent or grazing cap: no contribution.
		return 0
	}

	avgLocal := math3d.V3(a*x0/(a-e2), b*y0/(b-e2), 1)
	avg := v1.Scale(avgLocal.X).Add(v2.Scale(avgLocal.Y)).Add(v3.Scale(avgLocal.Z)).Normalize()

	l1 := math.Sqrt(-e2 / e3)
	l2 := math.Sqrt(-e2 / e1)
	ff := l1 * l2 / math.Sqrt((1+l1*l1)*(1+l2*l2))

	return tab.TabSphere(avg.Z, ff) * ff
}

// tangentFrame returns two unit vectors orthogonal to n and to each other,
// used to build the tangent basis of the sphere cap before scaling by its
// radius. Falls back to an arbitrary axis if n is degenerate.
func tangentFrame(n math3d.Vec3) (math3d.Vec3, math3d.Vec3) {
	nn := n.Normalize()
	if nn.LenSq() == 0 {
		nn = math3d.V3(0, 0, 1)
	}
	frame := math3d.FrameFromNormal(nn)
	return math3d.V3(frame[0], frame[1], frame[2]), math3d.V3(frame[3], frame[4], frame[5])
}

// solveCubic solves the monic cubic x^3 + b2*x^2 + b1*x + b0 = 0 for its
// three real roots. The quadric behind the ellipse-disk reduction has
// signature (+,+,-), so exactly one root is negative; that root selects the
// equivalent disk and is returned as e2, with the positive pair in (e1, e3).
func solveCubic(b2, b1, b0 float64) (e1, e2, e3 float64) {
	p := b1 - b2*b2/3
	q := 2*b2*b2*b2/27 - b2*b1/3 + b0

	var roots [3]float64
	if math.Abs(p) < 1e-14 {
		r := math.Cbrt(-q)
		roots[0], roots[1], roots[2] = r, r, r
	} else {
		m := 2 * math.Sqrt(math.Max(-p/3, 0))
		if m == 0 {
			r := math.Cbrt(-q)
			roots[0], roots[1], roots[2] = r, r, r
		} else {
			arg := 3 * q / (p * m)
			arg = math.Max(-1, math.Min(1, arg))
			phi := math.Acos(arg) / 3
			for k := range 3 {
				roots[k] = m*math.Cos(phi-2*math.Pi*float64(k)/3) - b2/3
			}
		}
	}

	e2 = math.Min(roots[0], math.Min(roots[1], roots[2]))
	switch e2 {
	case roots[0]:
		e1, e3 = roots[1], roots[2]
	case roots[1]:
		e1, e3 = roots[0], roots[2]
	default:
		e1, e3 = roots[0], roots[1]
	}
	return e1, e2, e3
}

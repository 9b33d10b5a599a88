package ltc

import (
	"math"
	"testing"

	"github.com/taigrr/edgegrad/pkg/math3d"
)

// analyticTable is a closed-form stand-in for the precomputed sphere lookup,
// exact for fully-visible on-axis caps: a proxy disk with form factor ff
// stands for a sphere with sin^2(alpha) = ff/(1-ff), whose clamped-cosine
// integral is pi*(1 - cos(alpha)) scaled by the average direction's cosine.
type analyticTable struct{}

func (analyticTable) TabM(rough, cosTheta float64) math3d.Mat3 {
	return math3d.Identity3()
}

func (analyticTable) TabSphere(avgDirZ, ff float64) float64 {
	if ff <= 0 || ff >= 1 {
		return 0
	}
	sinSq := math.Min(ff/(1-ff), 1)
	return math.Pi * math.Max(avgDirZ, 0) * (1 - math.Sqrt(1-sinSq)) / ff
}

func TestSphereIntegralMatchesAnalyticOnAxis(t *testing.T) {
	// Unit sphere straight above the shading point at distance 2, untransformed
	// lobe: the result must match pi*(1 - sqrt(1 - 1/4)) within 1%.
	got := SphereIntegral(math3d.Identity3(), math3d.V3(0, 0, 2), 1, analyticTable{})
	want := math.Pi * (1 - math.Sqrt(1-0.25))
	if math.Abs(got-want) > 0.01*want {
		t.Fatalf("SphereIntegral = %v, want %v within 1%%", got, want)
	}
}

func TestSphereIntegralBackFacingFrameReturnsZero(t *testing.T) {
	// A mirroring transform flips the swept area negative; the integral must
	// bail out with 0 instead of producing a signed contribution.
	mirror := math3d.Identity3().ScaleCols(math3d.V3(1, 1, -1))
	got := SphereIntegral(mirror, math3d.V3(0, 0, 2), 1, analyticTable{})
	if got != 0 {
		t.Fatalf("back-facing frame: got %v, want 0", got)
	}
}

func TestSphereIntegralFallsOffWithDistance(t *testing.T) {
	tab := analyticTable{}
	near := SphereIntegral(math3d.Identity3(), math3d.V3(0, 0, 2), 1, tab)
	far := SphereIntegral(math3d.Identity3(), math3d.V3(0, 0, 4), 1, tab)
	if !(near > far && far > 0) {
		t.Fatalf("expected monotone falloff, got near=%v far=%v", near, far)
	}
}

func TestSphereIntegralOffAxisUsesDiagonalization(t *testing.T) {
	// A shear makes the transformed tangent frame non-orthogonal, forcing the
	// Gram-matrix diagonalization branch; the result must stay finite and
	// positive for a front-facing cap.
	shear := math3d.Mat3{
		1, 0, 0,
		0.3, 1, 0,
		0, 0, 1,
	}
	got := SphereIntegral(shear, math3d.V3(0.5, 0.3, 2), 0.5, analyticTable{})
	if math.IsNaN(got) || math.IsInf(got, 0) || got <= 0 {
		t.Fatalf("sheared frame: got %v, want finite positive", got)
	}
}

func TestSolveCubicRecoversKnownRoots(t *testing.T) {
	// x^3 - 7x^2 + 8x + 16 = (x-4)^2 (x+1): the negative root must come back
	// as e2 with the positive pair in (e1, e3).
	e1, e2, e3 := solveCubic(-7, 8, 16)
	if math.Abs(e2-(-1)) > 1e-9 {
		t.Fatalf("e2 = %v, want -1", e2)
	}
	if math.Abs(e1-4) > 1e-9 || math.Abs(e3-4) > 1e-9 {
		t.Fatalf("(e1, e3) = (%v, %v), want (4, 4)", e1, e3)
	}
}

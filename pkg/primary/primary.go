// Package primary implements the primary-edge distribution build, the
// primary-edge sampler, and the propagation of sampled-edge contributions
// back to vertex and camera derivatives.
package primary

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/distribution"
	"github.com/taigrr/edgegrad/pkg/edgelog"
	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/parallel"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// Screen-space offset of the straddling ray pair for pinhole cameras.
const pinholeEps = 1e-6

// Record is a sampled primary edge with its screen-space sample point:
// valid iff Edge.ShapeID >= 0.
type Record struct {
	Edge        edges.Edge
	ScreenPoint math3d.Vec2
}

// Invalid is the canonical invalid primary-edge record: degenerate samples
// produce it instead of an error, and the outer pipeline treats it as
// contributing nothing.
var Invalid = Record{Edge: edges.Edge{ShapeID: -1}}

func (r Record) Valid() bool { return r.Edge.ShapeID >= 0 }

// Sample is one primary-edge draw: two independent uniforms in [0,1).
type Sample struct {
	EdgeSel, T float64
}

// BuildDistribution computes the per-edge screen-space weight: the clipped
// screen-space length of the edge's projection if it is a silhouette from
// the camera origin, else zero.
func BuildDistribution(shapes []scene.Shape, edgeList []edges.Edge, cam scene.Camera) distribution.Discrete1D {
	idx := edges.IndexShapes(shapes)
	weights := make([]float64, len(edgeList))
	origin := cam.Origin()
	for i, e := range edgeList {
		sh := idx[e.ShapeID]
		weights[i] = primaryEdgeWeight(sh, e, cam, origin)
	}
	d := distribution.Build(weights)
	if d.IsZero() {
		edgelog.Logger().Warn("primary edge distribution is zero", "num_edges", len(edgeList))
	}
	return d
}

func primaryEdgeWeight(sh scene.Shape, e edges.Edge, cam scene.Camera, origin math3d.Vec3) float64 {
	if !edges.IsSilhouette(sh, e, origin) {
		return 0
	}
	v0 := sh.Vertex(e.V0)
	v1 := sh.Vertex(e.V1)
	s0, ok0 := cam.Project(v0)
	s1, ok1 := cam.Project(v1)
	if !ok0 || !ok1 {
		return 0
	}
	c0, c1, ok := clipToUnitSquare(s0, s1)
	if !ok {
		return 0
	}
	return c0.Distance(c1)
}

// clipToUnitSquare clips the segment (a,b) against [0,1]^2 using Liang-Barsky.
func clipToUnitSquare(a, b math3d.Vec2) (math3d.Vec2, math3d.Vec2, bool) {
	d := b.Sub(a)
	t0, t1 := 0.0, 1.0
	p := [4]float64{-d.X, d.X, -d.Y, d.Y}
	q := [4]float64{a.X, 1 - a.X, a.Y, 1 - a.Y}
	for i := range 4 {
		if p[i] == 0 {
			if q[i] < 0 {
				return math3d.Vec2{}, math3d.Vec2{}, false
			}
			continue
		}
		r := q[i] / p[i]
		if p[i] < 0 {
			if r > t1 {
				return math3d.Vec2{}, math3d.Vec2{}, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return math3d.Vec2{}, math3d.Vec2{}, false
			}
			t1 = math.Min(t1, r)
		}
	}
	if t0 > t1 {
		return math3d.Vec2{}, math3d.Vec2{}, false
	}
	return a.Add(d.Scale(t0)), a.Add(d.Scale(t1)), true
}

// Output collects the buffers produced by one call to SampleEdges. Index
// discipline: Rays[2*idx+0]/Rays[2*idx+1] are the straddling ray pair for
// sample idx; Throughputs[2*idx+side] is the radiance-channel throughput of
// that ray and ChannelMultipliers[2*idx+side] the full per-channel vector.
type Output struct {
	Records            []Record
	Rays               []scene.Ray
	RayDiffs           []scene.RayDifferential
	Throughputs        []math3d.Vec3
	ChannelMultipliers [][]float64
}

// SampleEdges draws primary-edge samples and emits straddling ray pairs
// with their throughputs. dImage is a flat width*height*nd buffer
// of per-pixel gradients (row-major, nd = channels.NumTotalDimensions).
func SampleEdges(
	cam scene.Camera,
	shapes []scene.Shape,
	edgeList []edges.Edge,
	dist distribution.Discrete1D,
	samples []Sample,
	dImage []float64,
	channels scene.ChannelInfo,
) Output {
	idx := edges.IndexShapes(shapes)
	n := len(samples)
	out := Output{
		Records:            make([]Record, n),
		Rays:               make([]scene.Ray, 2*n),
		RayDiffs:           make([]scene.RayDifferential, n),
		Throughputs:        make([]math3d.Vec3, 2*n),
		ChannelMultipliers: make([][]float64, 2*n),
	}
	nd := channels.NumTotalDimensions

	parallel.For(n, func(i int) {
		s := samples[i]
		out.ChannelMultipliers[2*i] = make([]float64, nd)
		out.ChannelMultipliers[2*i+1] = make([]float64, nd)

		if dist.IsZero() {
			out.Records[i] = Invalid
			return
		}
		edgeID := dist.Sample(s.EdgeSel)
		if dist.PMF[edgeID] <= 0 {
			out.Records[i] = Invalid
			return
		}
		e := edgeList[edgeID]
		sh := idx[e.ShapeID]
		v0 := sh.Vertex(e.V0)
		v1 := sh.Vertex(e.V1)

		var edgePt math3d.Vec2
		var jacobian float64 = 1
		var ok bool
		if cam.Fisheye() {
			edgePt, jacobian, ok = sampleFisheye(cam, v0, v1, s.T)
		} else {
			edgePt, ok = samplePinhole(cam, v0, v1, s.T)
		}
		if !ok {
			out.Records[i] = Invalid
			return
		}

		s0, ok0 := cam.Project(v0)
		s1, ok1 := cam.Project(v1)
		if !ok0 || !ok1 {
			out.Records[i] = Invalid
			return
		}
		d := s1.Sub(s0)
		nHat := math3d.V2(-d.Y, d.X).Normalize()
		if nHat.LenSq() == 0 {
			out.Records[i] = Invalid
			return
		}

		out.Records[i] = Record{Edge: e, ScreenPoint: edgePt}

		upperScreen := edgePt.Add(nHat.Scale(pinholeEps))
		lowerScreen := edgePt.Sub(nHat.Scale(pinholeEps))
		out.Rays[2*i] = cam.SamplePrimary(upperScreen)
		out.Rays[2*i+1] = cam.SamplePrimary(lowerScreen)
		out.RayDiffs[i] = rayDifferential(cam, edgePt)

		pixelGrad := sampleChannels(dImage, cam.Width(), cam.Height(), nd, edgePt)
		pmf := dist.PMF[edgeID]
		scale := jacobian / pmf
		for c := 0; c < nd; c++ {
			out.ChannelMultipliers[2*i][c] = pixelGrad[c] * scale
			out.ChannelMultipliers[2*i+1][c] = -pixelGrad[c] * scale
		}
		tp := radianceChannels(pixelGrad, channels.RadianceDimension).Scale(scale)
		out.Throughputs[2*i] = tp
		out.Throughputs[2*i+1] = tp.Negate()
	})

	return out
}

func samplePinhole(cam scene.Camera, v0, v1 math3d.Vec3, t float64) (math3d.Vec2, bool) {
	s0, ok0 := cam.Project(v0)
	s1, ok1 := cam.Project(v1)
	if !ok0 || !ok1 {
		return math3d.Vec2{}, false
	}
	edgePt := s0.Lerp(s1, t)
	if !cam.InScreen(edgePt) {
		return math3d.Vec2{}, false
	}
	return edgePt, true
}

// sampleFisheye unprojects the endpoints to camera-space directions,
// interpolates linearly there, and re-projects. Returns
// the combined line*Dirac Jacobian to be applied to throughputs.
func sampleFisheye(cam scene.Camera, v0, v1 math3d.Vec3, t float64) (math3d.Vec2, float64, bool) {
	s0, ok0 := cam.Project(v0)
	s1, ok1 := cam.Project(v1)
	if !ok0 || !ok1 {
		return math3d.Vec2{}, 0, false
	}
	v0dir := cam.ScreenToCamera(s0)
	v1dir := cam.ScreenToCamera(s1)
	edgeLocal := v0dir.Lerp(v1dir, t)
	edgePt, ok := cam.CameraToScreen(edgeLocal.Normalize())
	if !ok || !cam.InScreen(edgePt) {
		return math3d.Vec2{}, 0, false
	}

	edgeLocalLen := edgeLocal.Len()
	if edgeLocalLen == 0 {
		return math3d.Vec2{}, 0, false
	}
	epsPrime := 1e-5 / edgeLocalLen

	tPerturbed := t + epsPrime
	edgeLocalDelta := v0dir.Lerp(v1dir, tPerturbed)
	edgePtDelta, okd := cam.CameraToScreen(edgeLocalDelta.Normalize())
	if !okd {
		return math3d.Vec2{}, 0, false
	}
	lineJacobian := edgePtDelta.Sub(edgePt).Len() / epsPrime

	gradAlpha := v0dir.Cross(v1dir)
	gradLen := gradAlpha.Len()
	if gradLen == 0 {
		return math3d.Vec2{}, 0, false
	}
	diracJacobian := 1 / gradLen

	return edgePt, lineJacobian * diracJacobian, true
}

// rayDifferential computes a finite-difference ray differential at a
// screen-space point, matching the step size used by
// scene.PinholeCamera.DProject/DScreenToCamera.
func rayDifferential(cam scene.Camera, s math3d.Vec2) scene.RayDifferential {
	const h = 1e-4
	base := cam.SamplePrimary(s)
	rx := cam.SamplePrimary(math3d.V2(s.X+h, s.Y))
	ry := cam.SamplePrimary(math3d.V2(s.X, s.Y+h))
	return scene.RayDifferential{
		OriginDx: rx.Origin.Sub(base.Origin).Scale(1 / h),
		OriginDy: ry.Origin.Sub(base.Origin).Scale(1 / h),
		DirDx:    rx.Dir.Sub(base.Dir).Scale(1 / h),
		DirDy:    ry.Dir.Sub(base.Dir).Scale(1 / h),
	}
}

func sampleChannels(dImage []float64, width, height, nd int, s math3d.Vec2) []float64 {
	out := make([]float64, nd)
	if len(dImage) == 0 || nd == 0 {
		return out
	}
	x := clampIdx(int(s.X*float64(width)), width)
	y := clampIdx(int(s.Y*float64(height)), height)
	base := (y*width + x) * nd
	if base+nd > len(dImage) {
		return out
	}
	copy(out, dImage[base:base+nd])
	return out
}

// radianceChannels extracts the (up to three) radiance channels starting at
// rd as a vector throughput.
func radianceChannels(grad []float64, rd int) math3d.Vec3 {
	var tp math3d.Vec3
	if rd < 0 {
		rd = 0
	}
	if rd < len(grad) {
		tp.X = grad[rd]
	}
	if rd+1 < len(grad) {
		tp.Y = grad[rd+1]
	}
	if rd+2 < len(grad) {
		tp.Z = grad[rd+2]
	}
	return tp
}

func clampIdx(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// Package secondary implements the flat secondary-edge distribution, the
// secondary-edge sampler — stratified importance resampling and
// hierarchical-tree traversal over the LTC importance function — and the
// two secondary-edge post-processing operators.
package secondary

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/bvh"
	"github.com/taigrr/edgegrad/pkg/distribution"
	"github.com/taigrr/edgegrad/pkg/edgelog"
	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/ltc"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/parallel"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// Numerical behavior knobs shared across the sampler.
const (
	strataCount         = 64
	minRoughnessCutoff  = 1e-2
	edgeLengthEpsilon   = 1e-5
	nearPlaneMultiplier = 1e-3
	halfPlaneEps        = 1e-4
	bsdfLuminanceFloor  = 1e-6
	lineSearchTolerance = 1e-5
	lineSearchMaxIter   = 20
)

// Record is a sampled secondary edge: valid iff Edge.ShapeID >= 0.
type Record struct {
	Edge edges.Edge
	// Point is the sampled point in world space (the direction from the
	// shading point scaled back into a point for bookkeeping/derivatives).
	Point math3d.Vec3
	// MWt is m*wt, the world-space edge tangent direction after
	// un-transforming out of the LTC-local frame, used by the ray-plane
	// intersection Jacobian downstream.
	MWt math3d.Vec3
}

var Invalid = Record{Edge: edges.Edge{ShapeID: -1}}

func (r Record) Valid() bool { return r.Edge.ShapeID >= 0 }

// Sample is one secondary-edge draw: uniform selectors for the edge, the
// resampling stratum, the point on the edge, and the BSDF component.
type Sample struct {
	EdgeSel, ResampleSel, T, BsdfComponent float64
}

// Input is the per-active-pixel state carried along the light path into
// the secondary-edge sampler.
type Input struct {
	IncomingRay     scene.Ray
	IncomingRayDiff scene.RayDifferential
	Intersection    scene.Intersection
	Throughput      math3d.Vec3
	MinRoughness    float64
	PixelIndex      int
}

// MaterialLookup resolves a shape's per-face material id to the BSDF
// boundary.
type MaterialLookup func(materialID int) scene.Material

// BuildDistribution computes the flat secondary-edge distribution:
// weight = edge length * exterior dihedral angle.
func BuildDistribution(shapes []scene.Shape, edgeList []edges.Edge) distribution.Discrete1D {
	idx := edges.IndexShapes(shapes)
	weights := make([]float64, len(edgeList))
	for i, e := range edgeList {
		sh := idx[e.ShapeID]
		v0 := sh.Vertex(e.V0)
		v1 := sh.Vertex(e.V1)
		weights[i] = v0.Distance(v1) * edges.ExteriorDihedral(sh, e)
	}
	d := distribution.Build(weights)
	if d.IsZero() {
		edgelog.Logger().Warn("secondary edge distribution is zero", "num_edges", len(edgeList))
	}
	return d
}

// Output collects the buffers produced by one call to SampleEdges, with ray
// pairs interleaved: Rays[2*idx+side], Throughputs[2*idx+side].
type Output struct {
	Records      []Record
	Rays         []scene.Ray
	BsdfDiffs    []scene.RayDifferential
	Throughputs  []math3d.Vec3
	MinRoughness []float64
}

// SampleEdges draws one secondary-edge sample per active pixel and emits
// the straddling ray pairs with their throughputs.
func SampleEdges(
	shapes []scene.Shape,
	edgeList []edges.Edge,
	flatDist distribution.Discrete1D,
	tree *bvh.EdgeTreeRoots,
	materials MaterialLookup,
	tab ltc.Table,
	cam scene.Camera,
	samples []Sample,
	inputs []Input,
	dImage []float64,
	channels scene.ChannelInfo,
) Output {
	idx := edges.IndexShapes(shapes)
	n := len(samples)
	out := Output{
		Records:      make([]Record, n),
		Rays:         make([]scene.Ray, 2*n),
		BsdfDiffs:    make([]scene.RayDifferential, n),
		Throughputs:  make([]math3d.Vec3, 2*n),
		MinRoughness: make([]float64, n),
	}
	nd := channels.NumTotalDimensions

	parallel.For(n, func(i int) {
		k := kernel{
			shapes:    idx,
			edgeList:  edgeList,
			flatDist:  flatDist,
			tree:      tree,
			materials: materials,
			tab:       tab,
			cam:       cam,
			dImage:    dImage,
			nd:        nd,
		}
		rec, ray0, ray1, diff, t0, t1, minRough := k.sampleOne(samples[i], inputs[i])
		out.Records[i] = rec
		out.Rays[2*i], out.Rays[2*i+1] = ray0, ray1
		out.BsdfDiffs[i] = diff
		out.Throughputs[2*i], out.Throughputs[2*i+1] = t0, t1
		out.MinRoughness[i] = minRough
	})

	return out
}

type kernel struct {
	shapes    edges.ShapeIndex
	edgeList  []edges.Edge
	flatDist  distribution.Discrete1D
	tree      *bvh.EdgeTreeRoots
	materials MaterialLookup
	tab       ltc.Table
	cam       scene.Camera
	dImage    []float64
	nd        int
}

func (k kernel) sampleOne(s Sample, in Input) (rec Record, ray0, ray1 scene.Ray, diff scene.RayDifferential, t0, t1 math3d.Vec3, minRough float64) {
	invalid := func() (Record, scene.Ray, scene.Ray, scene.RayDifferential, math3d.Vec3, math3d.Vec3, float64) {
		return Invalid, scene.Ray{}, scene.Ray{}, scene.RayDifferential{}, math3d.Vec3{}, math3d.Vec3{}, in.MinRoughness
	}

	if in.MinRoughness > minRoughnessCutoff || !in.Intersection.Hit {
		return invalid()
	}
	sp := in.Intersection.SurfacePt
	p := sp.Position
	n := sp.ShadingNormal
	mat := k.materials(k.shapes[in.Intersection.ShapeID].MaterialID(in.Intersection.FaceID))
	if mat == nil {
		return invalid()
	}

	wi := in.IncomingRay.Dir.Negate().Normalize()

	diffuseRefl := mat.DiffuseReflectance(sp)
	specRefl := mat.SpecularReflectance(sp)
	yd := luminance(diffuseRefl)
	ys := luminance(specRefl)
	var diffusePMF float64
	if yd+ys > 0 {
		diffusePMF = yd / (yd + ys)
	}

	localToWorld := sp.ShadingFrame
	worldToLocal := localToWorld.Transpose()

	var mInv math3d.Mat3
	var mPMF float64
	isDiffuse := s.BsdfComponent <= diffusePMF
	if isDiffuse {
		mInv = worldToLocal
		mPMF = diffusePMF
		if mPMF == 0 {
			mPMF = 1
		}
	} else {
		rough := mat.Roughness(sp)
		cosThetaI := clampUnit(wi.Dot(n))
		mInv = k.tab.TabM(rough, cosThetaI).Mul(worldToLocal)
		mPMF = 1 - diffusePMF
		if mPMF == 0 {
			mPMF = 1
		}
	}

	edgeID, edgeWeight0, ok := k.selectEdge(s, in, p, n, mInv)
	if !ok {
		return invalid()
	}
	e := k.edgeList[edgeID]
	sh := k.shapes[e.ShapeID]
	v0 := sh.Vertex(e.V0)
	v1 := sh.Vertex(e.V1)

	v0o := mInv.MulVec3(v0.Sub(p))
	v1o := mInv.MulVec3(v1.Sub(p))
	v0o, v1o, ok = clipToTangentPlane(v0o, v1o)
	if !ok {
		return invalid()
	}

	li := newLineIntegral(v0o, v1o)
	if li.degenerate() {
		return invalid()
	}
	l, ok := li.invert(s.T)
	if !ok {
		return invalid()
	}
	linePDF := li.pdf(l)
	if linePDF <= 0 {
		return invalid()
	}

	mFwd := mInv.Inverse()
	localPoint := li.vo.Add(li.wt.Scale(l))
	sampleDir := mFwd.MulVec3(localPoint)
	sHat := sampleDir.Normalize()
	if sHat.LenSq() == 0 {
		return invalid()
	}

	hHat := v0.Sub(p).Cross(v1.Sub(p))
	if hHat.LenSq() == 0 {
		return invalid()
	}
	hHat = hHat.Normalize()

	bsdfVal := mat.Bsdf(sp, wi, sHat)
	if luminance(bsdfVal) < bsdfLuminanceFloor {
		return invalid()
	}

	rayOrigin := p.Add(sHat.Scale(nearPlaneMultiplier * sampleDir.Len()))
	upperDir := sHat.Add(hHat.Scale(halfPlaneEps)).Normalize()
	lowerDir := sHat.Sub(hHat.Scale(halfPlaneEps)).Normalize()
	ray0 = scene.Ray{Origin: rayOrigin, Dir: upperDir}
	ray1 = scene.Ray{Origin: rayOrigin, Dir: lowerDir}

	edgeWeight := edgeWeight0 / (mPMF * linePDF)

	dColor := sampleChannel(k.dImage, in.PixelIndex, k.nd)
	upper := in.Throughput.Mul(bsdfVal).Scale(edgeWeight * dColor)
	lower := upper.Negate()

	diff = rayDifferentials(isDiffuse, in.IncomingRayDiff, in.IncomingRay.Dir.Negate(), n, sp.DnDx, sp.DnDy)

	rec = Record{Edge: e, Point: p.Add(sampleDir), MWt: mFwd.MulVec3(li.wt)}
	minRough = math.Max(in.MinRoughness, mat.Roughness(sp))
	return rec, ray0, ray1, diff, upper, lower, minRough
}

func luminance(c math3d.Vec3) float64 {
	return 0.2126*c.X + 0.7152*c.Y + 0.0722*c.Z
}

func clampUnit(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}

func sampleChannel(dImage []float64, pixelIndex, nd int) float64 {
	if nd == 0 {
		return 0
	}
	base := pixelIndex * nd
	if base < 0 || base >= len(dImage) {
		return 0
	}
	return dImage[base]
}

// clipToTangentPlane clips segment (v0,v1) in local (z = cosine-lobe axis)
// space to z >= 0. ok=false if the whole segment lies at or below the
// tangent plane.
func clipToTangentPlane(v0, v1 math3d.Vec3) (math3d.Vec3, math3d.Vec3, bool) {
	if v0.Z <= 0 && v1.Z <= 0 {
		return v0, v1, false
	}
	if v0.Z >= 0 && v1.Z >= 0 {
		return v0, v1, true
	}
	t := v0.Z / (v0.Z - v1.Z)
	mid := v0.Lerp(v1, t)
	if v0.Z < 0 {
		return mid, v1, true
	}
	return v0, mid, true
}

package secondary

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/bvh"
	"github.com/taigrr/edgegrad/pkg/edgelog"
	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// selectEdge picks the edge for one sample: hierarchical-tree traversal
// when a tree is present, else stratified importance resampling over the
// flat distribution. The returned weight is the reciprocal selection
// density of its branch.
func (k kernel) selectEdge(s Sample, in Input, p, n math3d.Vec3, mInv math3d.Mat3) (int, float64, bool) {
	if k.tree != nil {
		id, pmf := bvh.Sample(*k.tree, p, n, k.cam.Origin(), mInv, k.tab, s.EdgeSel)
		if id < 0 || pmf <= 0 {
			return -1, 0, false
		}
		return id, 1 / pmf, true
	}
	return k.selectEdgeResample(s, in, p, n, mInv)
}

type stratumResult struct {
	edgeID  int
	raw     float64 // I(l1) - I(l0), before dividing by pmf_edge
	pmfEdge float64
	weight  float64 // raw / pmf_edge
}

func (k kernel) selectEdgeResample(s Sample, in Input, p, n math3d.Vec3, mInv math3d.Mat3) (int, float64, bool) {
	if k.flatDist.IsZero() {
		return -1, 0, false
	}
	strata := make([]stratumResult, strataCount)
	total := 0.0
	for i := range strataCount {
		u := frac(s.EdgeSel + float64(i)/strataCount)
		edgeID := k.flatDist.Sample(u)
		pmfEdge := k.flatDist.PMF[edgeID]
		strata[i] = stratumResult{edgeID: -1}
		if pmfEdge <= 0 {
			continue
		}
		e := k.edgeList[edgeID]
		if sameTriangle(e, in.Intersection) {
			continue
		}
		sh := k.shapes[e.ShapeID]
		raw, ok := k.candidateRaw(sh, e, p, n, mInv)
		if !ok || raw <= 0 {
			continue
		}
		w := raw / pmfEdge
		strata[i] = stratumResult{edgeID: edgeID, raw: raw, pmfEdge: pmfEdge, weight: w}
		total += w
	}
	if total <= 0 {
		edgelog.Logger().Debug("secondary stratified resampling found no candidate", "pixel", in.PixelIndex)
		return -1, 0, false
	}

	target := s.ResampleSel * total
	running := 0.0
	chosen := strataCount - 1
	for i, st := range strata {
		if target < running+st.weight {
			chosen = i
			break
		}
		running += st.weight
	}
	r := strata[chosen]
	if r.edgeID < 0 || r.raw <= 0 {
		return -1, 0, false
	}
	edgeSampleWeight := (total / strataCount) / r.raw
	return r.edgeID, edgeSampleWeight, true
}

func sameTriangle(e edges.Edge, hit scene.Intersection) bool {
	return e.ShapeID == hit.ShapeID && (e.F0 == hit.FaceID || e.F1 == hit.FaceID)
}

// candidateRaw evaluates I(l1)-I(l0) for a stratified-resampling
// candidate, rejecting non-silhouettes, too-short edges and fully-clipped
// chords.
func (k kernel) candidateRaw(sh scene.Shape, e edges.Edge, p, n math3d.Vec3, mInv math3d.Mat3) (float64, bool) {
	v0 := sh.Vertex(e.V0)
	v1 := sh.Vertex(e.V1)
	if v0.Distance(v1) < edgeLengthEpsilon {
		return 0, false
	}
	if !edges.IsSilhouette(sh, e, p) {
		return 0, false
	}
	v0o := mInv.MulVec3(v0.Sub(p))
	v1o := mInv.MulVec3(v1.Sub(p))
	v0o, v1o, ok := clipToTangentPlane(v0o, v1o)
	if !ok {
		return 0, false
	}
	li := newLineIntegral(v0o, v1o)
	if li.degenerate() {
		return 0, false
	}
	return math.Max(li.normAtL1, 0), true
}

func frac(x float64) float64 {
	return x - math.Floor(x)
}

// rayDifferentials propagates differentials across the sampled bounce:
// origin differentials carry over from the incoming ray; direction
// differentials use a fixed low-pass kernel for the diffuse branch, and an
// Igehy-style reflection transfer off the shading normal for the specular
// branch.
func rayDifferentials(isDiffuse bool, incoming scene.RayDifferential, wo, n, dndx, dndy math3d.Vec3) scene.RayDifferential {
	diff := scene.RayDifferential{OriginDx: incoming.OriginDx, OriginDy: incoming.OriginDy}
	if isDiffuse {
		diff.DirDx = math3d.V3(0.03, 0.03, 0.03)
		diff.DirDy = math3d.V3(0.03, 0.03, 0.03)
		return diff
	}

	dwodx := incoming.DirDx.Negate()
	dwody := incoming.DirDy.Negate()
	dDNdx := dwodx.Dot(n) + wo.Dot(dndx)
	dDNdy := dwody.Dot(n) + wo.Dot(dndy)
	woDotN := wo.Dot(n)

	diff.DirDx = dwodx.Negate().Add(n.Scale(2 * dDNdx)).Add(dndx.Scale(2 * woDotN))
	diff.DirDy = dwody.Negate().Add(n.Scale(2 * dDNdy)).Add(dndy.Scale(2 * woDotN))
	return diff
}

package primary

import (
	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// WeightFilter is the opt-in hook for UpdateWeights: when set, a record's
// contribution is zeroed if the filter returns false for the intersection
// the ray actually hit. Callers typically use it to reject rays that missed
// both triangles adjacent to the sampled edge. Left nil (disabled) by
// default.
type WeightFilter func(scene.Intersection, Record) bool

// UpdateWeights zeros out channel multipliers for rays whose traced
// intersection is rejected by filter. A nil filter is a no-op.
func UpdateWeights(records []Record, hits []scene.Intersection, channelMultipliers [][]float64, filter WeightFilter) {
	if filter == nil {
		return
	}
	for i, r := range records {
		if !r.Valid() {
			continue
		}
		if filter(hits[2*i], r) && filter(hits[2*i+1], r) {
			continue
		}
		zero(channelMultipliers[2*i])
		zero(channelMultipliers[2*i+1])
	}
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}

// VertexDerivative is one accumulated gradient contribution on a mesh
// vertex.
type VertexDerivative struct {
	ShapeID, VertexID int
	D                 math3d.Vec3
}

// CameraDerivative accumulates the gradient on the camera's world position.
// Moving the camera by -delta is equivalent, to first order, to a rigid
// translation of the whole scene by delta. The camera-projection Jacobian
// itself is not part of the scene.Camera boundary, so the vertex-space
// gradients are reflected through that translation equivalence rather than
// a separate per-parameter Jacobian.
type CameraDerivative struct {
	DOrigin math3d.Vec3
}

// ComputeDerivatives propagates primary-edge contributions back to
// geometry: given the per-record reduced scalar contribution reported by the
// outer pipeline (the upper-minus-lower radiance difference, already scaled
// by the ray's channel multiplier), propagate it back to d(vertex) and
// d(camera) via the screen-space projection Jacobian.
func ComputeDerivatives(shapes []scene.Shape, cam scene.Camera, records []Record, samples []Sample, contribs []float64) ([]VertexDerivative, CameraDerivative) {
	idx := edges.IndexShapes(shapes)
	var out []VertexDerivative
	var camD CameraDerivative

	for i, r := range records {
		if !r.Valid() || contribs[i] == 0 {
			continue
		}
		e := r.Edge
		sh := idx[e.ShapeID]
		v0 := sh.Vertex(e.V0)
		v1 := sh.Vertex(e.V1)
		s0, ok0 := cam.Project(v0)
		s1, ok1 := cam.Project(v1)
		if !ok0 || !ok1 {
			continue
		}
		d := s1.Sub(s0)
		nHat := math3d.V2(-d.Y, d.X).Normalize()
		if nHat.LenSq() == 0 {
			continue
		}
		dScreen := nHat.Scale(contribs[i])

		dx0, dy0 := cam.DProject(v0)
		dx1, dy1 := cam.DProject(v1)
		t := samples[i].T

		dv0 := dx0.Scale(dScreen.X).Add(dy0.Scale(dScreen.Y)).Scale(1 - t)
		dv1 := dx1.Scale(dScreen.X).Add(dy1.Scale(dScreen.Y)).Scale(t)

		out = append(out,
			VertexDerivative{ShapeID: e.ShapeID, VertexID: e.V0, D: dv0},
			VertexDerivative{ShapeID: e.ShapeID, VertexID: e.V1, D: dv1},
		)
		camD.DOrigin = camD.DOrigin.Sub(dv0).Sub(dv1)
	}

	return out, camD
}

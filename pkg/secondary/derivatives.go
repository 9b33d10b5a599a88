package secondary

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// UpdateWeights applies the geometry term between the shading point and
// the ray's actual hit point (the cosine/distance^2 conversion from the
// direction measure the sampler used to the hit surface's area measure).
// When a ray escapes, the throughput is left untouched for the outer
// pipeline to combine with environment radiance, or zeroed when there is no
// environment map.
func UpdateWeights(records []Record, rays []scene.Ray, hits []scene.Intersection, throughputs []math3d.Vec3, envmap scene.Envmap) {
	hasEnvmap := envmap != nil && envmap.Present()
	for i, rec := range records {
		if !rec.Valid() {
			continue
		}
		for side := range 2 {
			idx := 2*i + side
			hit := hits[idx]
			if !hit.Hit {
				if !hasEnvmap {
					throughputs[idx] = math3d.Vec3{}
				}
				continue
			}
			if hit.Distance <= 0 {
				throughputs[idx] = math3d.Vec3{}
				continue
			}
			cosHit := math.Abs(hit.SurfacePt.GeomNormal.Dot(rays[idx].Dir))
			throughputs[idx] = throughputs[idx].Scale(cosHit / (hit.Distance * hit.Distance))
		}
	}
}

// ShadingPointDerivative accumulates the gradient with respect to a
// secondary-edge sample's shading point (further propagated by the outer
// pipeline to that point's supporting triangle vertices via its barycentric
// weights).
type ShadingPointDerivative struct {
	PixelIndex int
	D          math3d.Vec3
}

// VertexDerivative is one accumulated gradient contribution on a mesh
// vertex (mirrors primary.VertexDerivative; kept package-local since the two
// propagators are independent consumers of the sampler API).
type VertexDerivative struct {
	ShapeID, VertexID int
	D                 math3d.Vec3
}

// AccumulateDerivatives converts per-ray edge contributions into gradients
// via the cross-product rule: for each ray with a surface hit x and per-ray
// edge contribution c,
//
//	dc/dp  += (d1 x d0) + (x-p) x d1 + d0 x (x-p)
//	dc/dv0 += d1 x (x-p)
//	dc/dv1 += (x-p) x d0
//
// with d0 = v0-p, d1 = v1-p.
func AccumulateDerivatives(
	shapes []scene.Shape,
	records []Record,
	shadingPoints []math3d.Vec3,
	rays []scene.Ray,
	hits []scene.Intersection,
	contribs []float64,
) ([]ShadingPointDerivative, []VertexDerivative) {
	idxShapes := edges.IndexShapes(shapes)
	var dPoints []ShadingPointDerivative
	var dVerts []VertexDerivative

	for i, rec := range records {
		if !rec.Valid() {
			continue
		}
		e := rec.Edge
		sh := idxShapes[e.ShapeID]
		p := shadingPoints[i]
		v0 := sh.Vertex(e.V0)
		v1 := sh.Vertex(e.V1)
		d0 := v0.Sub(p)
		d1 := v1.Sub(p)

		for side := range 2 {
			ri := 2*i + side
			c := contribs[ri]
			if c == 0 || !hits[ri].Hit {
				continue
			}
			x := hits[ri].SurfacePt.Position
			xp := x.Sub(p)

			dp := d1.Cross(d0).Add(xp.Cross(d1)).Add(d0.Cross(xp))
			dv0 := d1.Cross(xp)
			dv1 := xp.Cross(d0)

			dPoints = append(dPoints, ShadingPointDerivative{PixelIndex: i, D: dp.Scale(c)})
			dVerts = append(dVerts,
				VertexDerivative{ShapeID: e.ShapeID, VertexID: e.V0, D: dv0.Scale(c)},
				VertexDerivative{ShapeID: e.ShapeID, VertexID: e.V1, D: dv1.Scale(c)},
			)
		}
	}

	return dPoints, dVerts
}

// Package edges builds the deduplicated edge table and implements the
// silhouette test shared by the primary and secondary edge distributions.
package edges

import (
	"fmt"
	"math"
	"sort"

	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// Edge is a deduplicated mesh edge: shape id, canonical endpoint pair
// (v0 <= v1), and the id of each incident triangle (f1 = -1 if boundary).
type Edge struct {
	ShapeID int
	V0, V1  int
	F0, F1  int
}

// Boundary reports whether the edge has only one incident triangle.
func (e Edge) Boundary() bool {
	return e.F1 < 0
}

// ErrNonManifoldEdge is returned by Build when a third triangle claims an
// edge already shared by two others. Extra faces are never silently
// dropped — a library feeding a differentiation pipeline must not guess
// which face the caller intended.
type ErrNonManifoldEdge struct {
	ShapeID int
	V0, V1  int
}

func (e *ErrNonManifoldEdge) Error() string {
	return fmt.Sprintf("edges: non-manifold edge in shape %d: (%d,%d) claimed by more than two triangles", e.ShapeID, e.V0, e.V1)
}

type candidate struct {
	v0, v1 int
	face   int
}

// Build collects triangle edges from shapes, canonicalizes endpoint order,
// sorts, and merges duplicates. Edges are never merged across shapes.
func Build(shapes []scene.Shape) ([]Edge, error) {
	var out []Edge
	for _, sh := range shapes {
		shapeEdges, err := buildShape(sh)
		if err != nil {
			return nil, err
		}
		out = append(out, shapeEdges...)
	}
	return out, nil
}

func buildShape(sh scene.Shape) ([]Edge, error) {
	n := sh.NumFaces()
	cands := make([]candidate, 0, n*3)
	for f := range n {
		tri := sh.Face(f)
		for k := range 3 {
			a, b := tri[k], tri[(k+1)%3]
			v0, v1 := a, b
			if v0 > v1 {
				v0, v1 = v1, v0
			}
			cands = append(cands, candidate{v0: v0, v1: v1, face: f})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].v0 != cands[j].v0 {
			return cands[i].v0 < cands[j].v0
		}
		if cands[i].v1 != cands[j].v1 {
			return cands[i].v1 < cands[j].v1
		}
		return cands[i].face < cands[j].face
	})

	out := make([]Edge, 0, len(cands))
	i := 0
	for i < len(cands) {
		j := i + 1
		for j < len(cands) && cands[j].v0 == cands[i].v0 && cands[j].v1 == cands[i].v1 {
			j++
		}
		run := cands[i:j]
		if len(run) > 2 {
			return nil, &ErrNonManifoldEdge{ShapeID: sh.ID(), V0: run[0].v0, V1: run[0].v1}
		}
		e := Edge{ShapeID: sh.ID(), V0: run[0].v0, V1: run[0].v1, F0: run[0].face, F1: -1}
		if len(run) == 2 {
			e.F1 = run[1].face
		}
		out = append(out, e)
		i = j
	}
	return out, nil
}

// IsSilhouette reports whether an edge is a silhouette from query point q:
// true iff it is a boundary edge, or the two
// incident faces' outward normals lie on opposite sides of the half-space
// <., q - v0>. Numerically aligned normals are treated as non-silhouette.
func IsSilhouette(sh scene.Shape, e Edge, q math3d.Vec3) bool {
	if e.Boundary() {
		return true
	}
	v0 := sh.Vertex(e.V0)
	n0 := sh.FaceNormal(e.F0)
	n1 := sh.FaceNormal(e.F1)

	dir := q.Sub(v0)
	s0 := n0.Dot(dir)
	s1 := n1.Dot(dir)

	// Perfectly (or near-perfectly) aligned normals are stable non-silhouette,
	// never jitter between calls for identical inputs.
	const eps = 1e-10
	if absf(s0) <= eps || absf(s1) <= eps {
		return false
	}
	return (s0 > 0) != (s1 > 0)
}

// ShapeIndex maps a shape id to its scene.Shape, built once per scene and
// shared by every package that needs to resolve an Edge's endpoints. Shapes
// are looked up by id rather than stored by reference, keeping Edge a plain
// value type.
type ShapeIndex map[int]scene.Shape

// IndexShapes builds a ShapeIndex from a shape list.
func IndexShapes(shapes []scene.Shape) ShapeIndex {
	idx := make(ShapeIndex, len(shapes))
	for _, sh := range shapes {
		idx[sh.ID()] = sh
	}
	return idx
}

// ExteriorDihedral returns pi minus the interior dihedral angle between the
// two faces sharing e, or pi for boundary edges. Used both by the flat
// secondary-edge distribution's weight and by the BVH builder's per-leaf
// WeightedTotalLength, so the tree's weight aggregate uses the same
// importance measure as the flat distribution it falls back to.
func ExteriorDihedral(sh scene.Shape, e Edge) float64 {
	if e.Boundary() {
		return math.Pi
	}
	n0 := sh.FaceNormal(e.F0).Normalize()
	n1 := sh.FaceNormal(e.F1).Normalize()
	// The angle between the two outward normals is pi minus the interior
	// dihedral: 0 for coplanar faces, approaching pi for a sharp fold.
	return math.Acos(clampUnit(n0.Dot(n1)))
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

// ApexVertex returns the vertex of face faceIdx that is not one of the
// edge's two endpoints (the "third" vertex), used by silhouette-convexity
// classification for CS/NCS edge partitioning in the BVH builder.
func ApexVertex(sh scene.Shape, faceIdx, v0, v1 int) int {
	tri := sh.Face(faceIdx)
	for _, v := range tri {
		if v != v0 && v != v1 {
			return v
		}
	}
	return tri[0]
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Package bvh implements the secondary-edge hierarchical sampler's data
// model and traversal: BVHNode3 (pure spatial bounds, for edges guaranteed
// silhouette from one side) and BVHNode6 (spatial + directional bounds, for
// ambiguous edges), an EdgeTreeRoots forest, the LTC-importance function
// and the proportional-choice traversal.
//
// Node children are exclusively owned by their parent: no back-pointers, no
// shared ownership, just an index-based leaf reference into the caller's
// Edge slice.
package bvh

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/ltc"
	"github.com/taigrr/edgegrad/pkg/math3d"
)

const importanceEps = 1e-6

// BVHNode3 bounds a set of edges guaranteed to be a silhouette from any
// point on one side of the mesh: a leaf iff EdgeID >= 0 and both children
// are nil, otherwise both children are non-nil and EdgeID is -1.
// WeightedTotalLength is the sum of the children's (or, at a leaf, the
// edge's own length*exterior-dihedral weight), matching the flat secondary
// distribution's weight.
type BVHNode3 struct {
	Bounds              AABB
	WeightedTotalLength float64
	EdgeID              int
	Left, Right         *BVHNode3
}

func (n *BVHNode3) Leaf() bool { return n.Left == nil && n.Right == nil }

// BVHNode6 additionally carries a directional AABB: the set of
// midpoint-to-camera directions swept by every edge in the subtree,
// conservative for all descendants.
type BVHNode6 struct {
	Bounds              AABB
	Directional         AABB
	WeightedTotalLength float64
	EdgeID              int
	Left, Right         *BVHNode6
}

func (n *BVHNode6) Leaf() bool { return n.Left == nil && n.Right == nil }

// EdgeTreeRoots is the optional forest built once per scene: CSRoot covers
// edges that are a silhouette consistently from one side (pure spatial
// bounds suffice); NCSRoot covers ambiguous edges that need the directional
// bound's Olson-Zhang cone test. At least one is non-nil if the scene has
// any edges.
type EdgeTreeRoots struct {
	CSRoot  *BVHNode3
	NCSRoot *BVHNode6
}

// belowTangentPlane reports whether every corner of box lies at or behind
// the tangent plane through p with normal n.
func belowTangentPlane(box AABB, p, n math3d.Vec3) bool {
	for _, c := range box.Corners() {
		if n.Dot(c.Sub(p)) > 0 {
			return false
		}
	}
	return true
}

// brdfTerm evaluates the BRDF term of the importance function: pi if p is
// inside the node's bounding sphere, else the LTC sphere integral of the
// bounding sphere as seen from p.
func brdfTerm(sphereCenter math3d.Vec3, sphereRadius float64, p math3d.Vec3, mInv math3d.Mat3, tab ltc.Table) float64 {
	if sphereCenter.Sub(p).LenSq() <= sphereRadius*sphereRadius {
		return math.Pi
	}
	return ltc.SphereIntegral(mInv, sphereCenter.Sub(p), sphereRadius, tab)
}

// Importance3 evaluates the importance of a BVHNode3 subtree for a query
// shading point.
func Importance3(node *BVHNode3, p, n math3d.Vec3, mInv math3d.Mat3, tab ltc.Table) float64 {
	if node == nil {
		return 0
	}
	if belowTangentPlane(node.Bounds, p, n) {
		return 0
	}
	center, radius := node.Bounds.BoundingSphere()
	brdf := brdfTerm(center, radius, p, mInv, tab)
	if brdf <= 0 {
		return 0
	}
	distSq := math.Max(center.Sub(p).LenSq(), importanceEps)
	return brdf * node.WeightedTotalLength / distSq
}

// Importance6 evaluates the importance of a BVHNode6 subtree, additionally
// applying the Olson-Zhang silhouette-cone test against the sphere centred
// between the shading point and the camera origin.
func Importance6(node *BVHNode6, p, n, cameraOrigin math3d.Vec3, mInv math3d.Mat3, tab ltc.Table) float64 {
	if node == nil {
		return 0
	}
	if belowTangentPlane(node.Bounds, p, n) {
		return 0
	}
	mid := p.Add(cameraOrigin).Scale(0.5)
	r := p.Sub(cameraOrigin).Len() * 0.5
	if !node.Directional.IntersectsSphere(mid, r) {
		return 0
	}
	center, radius := node.Bounds.BoundingSphere()
	brdf := brdfTerm(center, radius, p, mInv, tab)
	if brdf <= 0 {
		return 0
	}
	distSq := math.Max(center.Sub(p).LenSq(), importanceEps)
	return brdf * node.WeightedTotalLength / distSq
}

// Sample traverses the edge-tree forest for a query shading point, choosing
// between the two roots (and at every internal node, between the two
// children) with probability proportional to their LTC importance. Returns
// edgeID = -1 and pmf = 0 if no edge has positive importance along any
// path.
func Sample(roots EdgeTreeRoots, p, n, cameraOrigin math3d.Vec3, mInv math3d.Mat3, tab ltc.Table, u float64) (edgeID int, pmf float64) {
	impCS := Importance3(roots.CSRoot, p, n, mInv, tab)
	impNCS := Importance6(roots.NCSRoot, p, n, cameraOrigin, mInv, tab)
	total := impCS + impNCS
	if total <= 0 {
		return -1, 0
	}
	if u < impCS/total {
		u2 := u * total / impCS
		id, p3 := sampleNode3(roots.CSRoot, p, n, mInv, tab, u2)
		return id, p3 * (impCS / total)
	}
	u2 := (u - impCS/total) * total / impNCS
	id, p6 := sampleNode6(roots.NCSRoot, p, n, cameraOrigin, mInv, tab, u2)
	return id, p6 * (impNCS / total)
}

func sampleNode3(node *BVHNode3, p, n math3d.Vec3, mInv math3d.Mat3, tab ltc.Table, u float64) (int, float64) {
	if node == nil {
		return -1, 0
	}
	if node.Leaf() {
		return node.EdgeID, 1
	}
	imp0 := Importance3(node.Left, p, n, mInv, tab)
	imp1 := Importance3(node.Right, p, n, mInv, tab)
	total := imp0 + imp1
	if total <= 0 {
		return -1, 0
	}
	if u < imp0/total {
		id, cp := sampleNode3(node.Left, p, n, mInv, tab, u*total/imp0)
		return id, cp * (imp0 / total)
	}
	id, cp := sampleNode3(node.Right, p, n, mInv, tab, (u-imp0/total)*total/imp1)
	return id, cp * (imp1 / total)
}

func sampleNode6(node *BVHNode6, p, n, cameraOrigin math3d.Vec3, mInv math3d.Mat3, tab ltc.Table, u float64) (int, float64) {
	if node == nil {
		return -1, 0
	}
	if node.Leaf() {
		return node.EdgeID, 1
	}
	imp0 := Importance6(node.Left, p, n, cameraOrigin, mInv, tab)
	imp1 := Importance6(node.Right, p, n, cameraOrigin, mInv, tab)
	total := imp0 + imp1
	if total <= 0 {
		return -1, 0
	}
	if u < imp0/total {
		id, cp := sampleNode6(node.Left, p, n, cameraOrigin, mInv, tab, u*total/imp0)
		return id, cp * (imp0 / total)
	}
	id, cp := sampleNode6(node.Right, p, n, cameraOrigin, mInv, tab, (u-imp0/total)*total/imp1)
	return id, cp * (imp1 / total)
}

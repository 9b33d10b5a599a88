package bvh

import (
	"sort"

	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// Build is a reference median-split builder for the edge-tree forest;
// callers with a higher-quality SAH builder may construct EdgeTreeRoots by
// hand and skip this entirely.
//
// Edges are partitioned into CS (consistently a silhouette from either
// side, per isConvex) and NCS (needs the directional bound's cone test)
// sets, each built into its own tree. cameraOrigin seeds the
// midpoint-to-camera directional bound of NCS leaves.
func Build(shapes []scene.Shape, edgeList []edges.Edge, cameraOrigin math3d.Vec3) EdgeTreeRoots {
	byShape := edges.IndexShapes(shapes)

	var csLeaves []leafInfo
	var ncsLeaves []leafInfo
	for id, e := range edgeList {
		sh := byShape[e.ShapeID]
		v0 := sh.Vertex(e.V0)
		v1 := sh.Vertex(e.V1)
		mid := v0.Add(v1).Scale(0.5)
		weight := v0.Distance(v1) * edges.ExteriorDihedral(sh, e)
		li := leafInfo{
			edgeID: id,
			bounds: AABB{Min: v0.Min(v1), Max: v0.Max(v1)},
			weight: weight,
			mid:    mid,
			dirBox: FromPoint(cameraOrigin.Sub(mid).Normalize()),
		}
		if isConvex(sh, e) {
			csLeaves = append(csLeaves, li)
		} else {
			ncsLeaves = append(ncsLeaves, li)
		}
	}

	var roots EdgeTreeRoots
	if len(csLeaves) > 0 {
		roots.CSRoot = build3(csLeaves)
	}
	if len(ncsLeaves) > 0 {
		roots.NCSRoot = build6(ncsLeaves)
	}
	return roots
}

type leafInfo struct {
	edgeID int
	bounds AABB
	dirBox AABB
	weight float64
	mid    math3d.Vec3
}

// isConvex reports whether e is guaranteed to be a silhouette from any point
// outside the mesh on either side: a boundary edge always is; an interior
// edge is when each face's apex vertex lies behind the other face's plane
// (the classic convex-fold silhouette test used by shadow-volume edge
// extraction). Ambiguous (concave or near-flat) edges fall back to the
// directional-bound (BVHNode6) tree.
func isConvex(sh scene.Shape, e edges.Edge) bool {
	if e.Boundary() {
		return true
	}
	v0 := sh.Vertex(e.V0)
	n0 := sh.FaceNormal(e.F0)
	n1 := sh.FaceNormal(e.F1)
	apex0 := sh.Vertex(edges.ApexVertex(sh, e.F0, e.V0, e.V1))
	apex1 := sh.Vertex(edges.ApexVertex(sh, e.F1, e.V0, e.V1))
	return n0.Dot(apex1.Sub(v0)) <= 1e-9 && n1.Dot(apex0.Sub(v0)) <= 1e-9
}

func build3(leaves []leafInfo) *BVHNode3 {
	if len(leaves) == 1 {
		l := leaves[0]
		return &BVHNode3{Bounds: l.bounds, WeightedTotalLength: l.weight, EdgeID: l.edgeID}
	}
	axis := splitAxis(leaves)
	sort.Slice(leaves, func(i, j int) bool { return component(leaves[i].mid, axis) < component(leaves[j].mid, axis) })
	mid := len(leaves) / 2
	left := build3(leaves[:mid])
	right := build3(leaves[mid:])
	return &BVHNode3{
		Bounds:              left.Bounds.Union(right.Bounds),
		WeightedTotalLength: left.WeightedTotalLength + right.WeightedTotalLength,
		EdgeID:              -1,
		Left:                left,
		Right:               right,
	}
}

func build6(leaves []leafInfo) *BVHNode6 {
	if len(leaves) == 1 {
		l := leaves[0]
		return &BVHNode6{Bounds: l.bounds, Directional: l.dirBox, WeightedTotalLength: l.weight, EdgeID: l.edgeID}
	}
	axis := splitAxis(leaves)
	sort.Slice(leaves, func(i, j int) bool { return component(leaves[i].mid, axis) < component(leaves[j].mid, axis) })
	mid := len(leaves) / 2
	left := build6(leaves[:mid])
	right := build6(leaves[mid:])
	return &BVHNode6{
		Bounds:              left.Bounds.Union(right.Bounds),
		Directional:         left.Directional.Union(right.Directional),
		WeightedTotalLength: left.WeightedTotalLength + right.WeightedTotalLength,
		EdgeID:              -1,
		Left:                left,
		Right:               right,
	}
}

func splitAxis(leaves []leafInfo) int {
	box := EmptyAABB()
	for _, l := range leaves {
		box = box.Union(FromPoint(l.mid))
	}
	size := box.Max.Sub(box.Min)
	axis := 0
	if size.Y > component(size, axis) {
		axis = 1
	}
	if size.Z > component(size, axis) {
		axis = 2
	}
	return axis
}

func component(v math3d.Vec3, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

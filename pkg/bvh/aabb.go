package bvh

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/math3d"
)

// AABB is an axis-aligned bounding box, using the same corner-enumeration
// and component-select pattern as a frustum bounding box, generalized here
// to also bound directional (unit-vector) extents for BVHNode6.
type AABB struct {
	Min, Max math3d.Vec3
}

// EmptyAABB returns an AABB that contains no points; the identity element
// for Union.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{Min: math3d.V3(inf, inf, inf), Max: math3d.V3(-inf, -inf, -inf)}
}

// FromPoint returns the degenerate AABB containing exactly p.
func FromPoint(p math3d.Vec3) AABB {
	return AABB{Min: p, Max: p}
}

// Union returns the smallest AABB containing both a and b.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

// Center returns the midpoint of the box.
func (b AABB) Center() math3d.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Corners returns all 8 corners of the box.
func (b AABB) Corners() [8]math3d.Vec3 {
	return [8]math3d.Vec3{
		{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Max.Z},
	}
}

// BoundingSphere returns the center and radius of the sphere circumscribing
// the box, used by the hierarchical importance function.
func (b AABB) BoundingSphere() (center math3d.Vec3, radius float64) {
	center = b.Center()
	radius = b.Max.Sub(center).Len()
	return center, radius
}

// IntersectsSphere reports whether the box intersects the sphere (center,
// radius), using the closest-point test. Used by BVHNode6's Olson-Zhang
// silhouette-cone test.
func (b AABB) IntersectsSphere(center math3d.Vec3, radius float64) bool {
	closest := math3d.V3(
		clamp(center.X, b.Min.X, b.Max.X),
		clamp(center.Y, b.Min.Y, b.Max.Y),
		clamp(center.Z, b.Min.Z, b.Max.Z),
	)
	d := closest.Sub(center)
	return d.LenSq() <= radius*radius
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

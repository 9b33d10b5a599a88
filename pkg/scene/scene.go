// Package scene defines the external-interface boundary that edgegrad is
// built against: camera projection, shapes, materials, intersections and
// channel layout. edgegrad never implements shading, BSDF evaluation, or
// ray-scene intersection; it only calls through these interfaces.
package scene

import "github.com/taigrr/edgegrad/pkg/math3d"

// Ray is a parametric ray in world space.
type Ray struct {
	Origin math3d.Vec3
	Dir    math3d.Vec3
}

// At evaluates the ray at parameter t.
func (r Ray) At(t float64) math3d.Vec3 {
	return r.Origin.Add(r.Dir.Scale(t))
}

// RayDifferential carries the screen-space derivatives of a ray's origin and
// direction, used to keep texture filtering and shading consistent across a
// sampled edge pair.
type RayDifferential struct {
	OriginDx, OriginDy math3d.Vec3
	DirDx, DirDy       math3d.Vec3
}

// Camera is the projection/ray-generation boundary. Fisheye and pinhole
// cameras both satisfy it; edgegrad dispatches on the Fisheye flag where
// the two need materially different math.
type Camera interface {
	// Project maps a world-space point to screen space in [0,1]^2, ok=false
	// if the point does not project (behind the camera, or W<=0).
	Project(p math3d.Vec3) (screen math3d.Vec2, ok bool)

	// ScreenToCamera unprojects a screen-space point to a camera-space
	// direction (used by the fisheye primary-edge branch).
	ScreenToCamera(screen math3d.Vec2) math3d.Vec3

	// CameraToScreen projects a camera-space direction back to screen space.
	CameraToScreen(camDir math3d.Vec3) (screen math3d.Vec2, ok bool)

	// SamplePrimary returns the ray through a screen-space point.
	SamplePrimary(screen math3d.Vec2) Ray

	// InScreen reports whether a screen-space point lies within the image.
	InScreen(screen math3d.Vec2) bool

	// DProject returns the Jacobian of Project at p with respect to p,
	// expressed as the two gradient vectors (d screen.x/d p, d screen.y/d p).
	DProject(p math3d.Vec3) (dx, dy math3d.Vec3)

	// DScreenToCamera returns the Jacobian of ScreenToCamera at screen.
	DScreenToCamera(screen math3d.Vec2) (dx, dy math3d.Vec3)

	Fisheye() bool
	Width() int
	Height() int
	Origin() math3d.Vec3
	CamToWorld() math3d.Mat4
}

// Shape is a triangle mesh boundary: positions and triangle indices, plus a
// per-face material id. pkg/meshio provides one concrete implementation
// backed by glTF.
type Shape interface {
	ID() int
	NumVertices() int
	NumFaces() int
	Vertex(i int) math3d.Vec3
	Face(i int) [3]int
	// FaceNormal returns the (unnormalized is fine) geometric normal of
	// face i, used by the silhouette test.
	FaceNormal(i int) math3d.Vec3
	MaterialID(faceIdx int) int
}

// Material is the BSDF boundary: roughness and reflectance drive the LTC
// transform; Bsdf evaluates the actual BRDF value used to weight the
// secondary-edge contribution.
type Material interface {
	Roughness(sp SurfacePoint) float64
	DiffuseReflectance(sp SurfacePoint) math3d.Vec3
	SpecularReflectance(sp SurfacePoint) math3d.Vec3
	// Bsdf evaluates the BRDF value for the (wi, wo) pair at sp.
	Bsdf(sp SurfacePoint, wi, wo math3d.Vec3) math3d.Vec3
}

// Intersection is the result of a ray-scene intersection query.
type Intersection struct {
	Hit       bool
	ShapeID   int
	FaceID    int
	Distance  float64
	SurfacePt SurfacePoint
}

// SurfacePoint describes the differential geometry at a hit point.
type SurfacePoint struct {
	Position      math3d.Vec3
	GeomNormal    math3d.Vec3
	ShadingNormal math3d.Vec3
	ShadingFrame  math3d.Mat3 // tangent, bitangent, normal as rows/cols per math3d.FrameFromNormal
	DnDx, DnDy    math3d.Vec3 // normal differentials w.r.t. screen x/y
}

// Envmap is a presence flag only: edgegrad only needs to know
// whether an escaped secondary ray should fall back to an environment map,
// never how to evaluate it.
type Envmap interface {
	Present() bool
}

// ChannelInfo describes the outer pipeline's per-pixel channel layout.
type ChannelInfo struct {
	NumTotalDimensions int
	RadianceDimension  int
}

// NewRGBChannels returns the common 3-channel (R,G,B) layout.
func NewRGBChannels() ChannelInfo {
	return ChannelInfo{NumTotalDimensions: 3, RadianceDimension: 0}
}

// NewRGBAChannels returns a 4-channel (R,G,B,A) layout.
func NewRGBAChannels() ChannelInfo {
	return ChannelInfo{NumTotalDimensions: 4, RadianceDimension: 0}
}

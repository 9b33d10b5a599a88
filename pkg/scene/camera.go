package scene

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/math3d"
)

// PinholeCamera implements Camera for both the pinhole and fisheye
// projection models, with lazily-cached view/projection matrices. The
// fisheye model is equidistant.
type PinholeCamera struct {
	Position math3d.Vec3
	Pitch    float64
	Yaw      float64
	Roll     float64

	FOV         float64 // vertical field of view in radians (pinhole); full angular extent for fisheye
	AspectRatio float64
	Near        float64
	Far         float64

	IsFisheye bool
	ImgWidth  int
	ImgHeight int

	viewMatrix     math3d.Mat4
	projMatrix     math3d.Mat4
	viewProjMatrix math3d.Mat4
	camToWorld     math3d.Mat4
	dirty          bool
}

// NewPinholeCamera creates a perspective camera.
func NewPinholeCamera(pos math3d.Vec3, pitch, yaw, roll, fov, aspect float64, width, height int) *PinholeCamera {
	c := &PinholeCamera{
		Position: pos, Pitch: pitch, Yaw: yaw, Roll: roll,
		FOV: fov, AspectRatio: aspect, Near: 1e-3, Far: 1e6,
		ImgWidth: width, ImgHeight: height, dirty: true,
	}
	c.rebuild()
	return c
}

// NewFisheyeCamera creates an equidistant fisheye camera covering a full
// angular field of view (radians, typically up to 2*pi).
func NewFisheyeCamera(pos math3d.Vec3, pitch, yaw, roll, fov float64, width, height int) *PinholeCamera {
	c := &PinholeCamera{
		Position: pos, Pitch: pitch, Yaw: yaw, Roll: roll,
		FOV: fov, AspectRatio: float64(width) / float64(height), Near: 1e-3, Far: 1e6,
		IsFisheye: true, ImgWidth: width, ImgHeight: height, dirty: true,
	}
	c.rebuild()
	return c
}

func (c *PinholeCamera) rebuild() {
	rot := math3d.RotateZ(-c.Roll).Mul(math3d.RotateX(-c.Pitch)).Mul(math3d.RotateY(-c.Yaw))
	trans := math3d.Translate(c.Position.Negate())
	c.viewMatrix = rot.Mul(trans)
	c.projMatrix = math3d.Perspective(c.FOV, c.AspectRatio, c.Near, c.Far)
	c.viewProjMatrix = c.projMatrix.Mul(c.viewMatrix)
	c.camToWorld = math3d.RotateY(c.Yaw).Mul(math3d.RotateX(c.Pitch)).Mul(math3d.RotateZ(c.Roll))
	c.camToWorld.SetTranslation(c.Position)
	c.dirty = false
}

func (c *PinholeCamera) ensure() {
	if c.dirty {
		c.rebuild()
	}
}

// Fisheye reports whether this camera uses the equidistant fisheye model.
func (c *PinholeCamera) Fisheye() bool       { return c.IsFisheye }
func (c *PinholeCamera) Width() int          { return c.ImgWidth }
func (c *PinholeCamera) Height() int         { return c.ImgHeight }
func (c *PinholeCamera) Origin() math3d.Vec3 { return c.Position }
func (c *PinholeCamera) CamToWorld() math3d.Mat4 {
	c.ensure()
	return c.camToWorld
}

func (c *PinholeCamera) worldToCamDir(p math3d.Vec3) math3d.Vec3 {
	c.ensure()
	return c.viewMatrix.MulVec3(p)
}

// Project maps a world point to screen space in [0,1]^2.
func (c *PinholeCamera) Project(p math3d.Vec3) (math3d.Vec2, bool) {
	c.ensure()
	if c.IsFisheye {
		camDir := c.worldToCamDir(p)
		return c.CameraToScreen(camDir)
	}
	clip := c.viewProjMatrix.MulVec4(math3d.V4FromV3(p, 1))
	if clip.W <= 0 {
		return math3d.Vec2{}, false
	}
	ndc := clip.PerspectiveDivide()
	return math3d.V2((ndc.X+1)*0.5, (1-ndc.Y)*0.5), true
}

// CameraToScreen projects a camera-space direction to screen space.
func (c *PinholeCamera) CameraToScreen(camDir math3d.Vec3) (math3d.Vec2, bool) {
	if !c.IsFisheye {
		clip := c.projMatrix.MulVec4(math3d.V4FromV3(camDir, 1))
		if clip.W <= 0 {
			return math3d.Vec2{}, false
		}
		ndc := clip.PerspectiveDivide()
		return math3d.V2((ndc.X+1)*0.5, (1-ndc.Y)*0.5), true
	}

	// Equidistant fisheye: radius in the image plane proportional to the
	// angle off the forward (-Z) axis, full angular extent c.FOV maps to the
	// image's inscribed circle (radius 0.5 in normalized screen space).
	d := camDir.Normalize()
	forward := math3d.V3(0, 0, -1)
	cosTheta := d.Dot(forward)
	theta := math.Acos(clampUnit(cosTheta))
	if theta > c.FOV/2 {
		return math3d.Vec2{}, false
	}
	// Azimuthal direction in the camera's local XY plane.
	proj := math3d.V2(d.X, d.Y)
	azLen := proj.Len()
	r := theta / (c.FOV / 2) * 0.5
	var dir math3d.Vec2
	if azLen < 1e-12 {
		dir = math3d.V2(0, 0)
	} else {
		dir = proj.Scale(1 / azLen)
	}
	return math3d.V2(0.5+r*dir.X, 0.5-r*dir.Y), true
}

// ScreenToCamera unprojects a screen-space point to a camera-space direction.
func (c *PinholeCamera) ScreenToCamera(s math3d.Vec2) math3d.Vec3 {
	if !c.IsFisheye {
		ndcX := s.X*2 - 1
		ndcY := 1 - s.Y*2
		f := 1.0 / math.Tan(c.FOV/2)
		return math3d.V3(ndcX*c.AspectRatio/f, ndcY/f, -1).Normalize()
	}

	dx := s.X - 0.5
	dy := 0.5 - s.Y
	r := math.Sqrt(dx*dx + dy*dy)
	theta := r / 0.5 * (c.FOV / 2)
	if r < 1e-12 {
		return math3d.V3(0, 0, -1)
	}
	sinTheta := math.Sin(theta)
	return math3d.V3(dx/r*sinTheta, dy/r*sinTheta, -math.Cos(theta)).Normalize()
}

// SamplePrimary returns the world-space ray through a screen-space point.
func (c *PinholeCamera) SamplePrimary(s math3d.Vec2) Ray {
	c.ensure()
	camDir := c.ScreenToCamera(s)
	worldDir := c.camToWorld.MulVec3Dir(camDir).Normalize()
	return Ray{Origin: c.Position, Dir: worldDir}
}

// InScreen reports whether a screen-space point lies within the unit image.
func (c *PinholeCamera) InScreen(s math3d.Vec2) bool {
	return s.X >= 0 && s.X <= 1 && s.Y >= 0 && s.Y <= 1
}

// DProject returns the finite-difference Jacobian of Project at p.
func (c *PinholeCamera) DProject(p math3d.Vec3) (dx, dy math3d.Vec3) {
	const h = 1e-4
	s0, ok0 := c.Project(p)
	if !ok0 {
		return math3d.Vec3{}, math3d.Vec3{}
	}
	for axis := range 3 {
		delta := math3d.Vec3{}
		switch axis {
		case 0:
			delta.X = h
		case 1:
			delta.Y = h
		case 2:
			delta.Z = h
		}
		s1, ok1 := c.Project(p.Add(delta))
		if !ok1 {
			continue
		}
		grad := s1.Sub(s0).Scale(1 / h)
		switch axis {
		case 0:
			dx.X, dy.X = grad.X, grad.Y
		case 1:
			dx.Y, dy.Y = grad.X, grad.Y
		case 2:
			dx.Z, dy.Z = grad.X, grad.Y
		}
	}
	return dx, dy
}

// DScreenToCamera returns the finite-difference Jacobian of ScreenToCamera.
func (c *PinholeCamera) DScreenToCamera(s math3d.Vec2) (dx, dy math3d.Vec3) {
	const h = 1e-4
	base := c.ScreenToCamera(s)
	dx = c.ScreenToCamera(math3d.V2(s.X+h, s.Y)).Sub(base).Scale(1 / h)
	dy = c.ScreenToCamera(math3d.V2(s.X, s.Y+h)).Sub(base).Scale(1 / h)
	return dx, dy
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

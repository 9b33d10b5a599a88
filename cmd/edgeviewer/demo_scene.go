package main

import (
	"math"

	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// demoMaterial is a flat, constant-roughness Lambertian-ish stand-in for the
// external Material boundary that sampler.Build requires. edgeviewer never
// shades a real scene and only samples primary edges, so these values are
// never read by the secondary-edge sampler here; they are stable and
// non-degenerate.
type demoMaterial struct{}

func (demoMaterial) Roughness(scene.SurfacePoint) float64 { return 0.35 }

func (demoMaterial) DiffuseReflectance(scene.SurfacePoint) math3d.Vec3 {
	return math3d.V3(0.7, 0.7, 0.7)
}

func (demoMaterial) SpecularReflectance(scene.SurfacePoint) math3d.Vec3 {
	return math3d.V3(0.15, 0.15, 0.15)
}

func (demoMaterial) Bsdf(sp scene.SurfacePoint, wi, wo math3d.Vec3) math3d.Vec3 {
	n := sp.ShadingNormal
	cos := math.Max(wo.Dot(n), 0)
	return math3d.V3(0.7, 0.7, 0.7).Scale(cos / math.Pi)
}

func demoMaterials(int) scene.Material { return demoMaterial{} }

// demoEnvmap always reports present, so update_secondary_edge_weights
// leaves escaped-ray throughputs for the (nonexistent) outer pipeline to
// combine rather than zeroing them outright.
type demoEnvmap struct{}

func (demoEnvmap) Present() bool { return true }

// demoLTCTable stands in for the external ltc::tabM / ltc::tabSphere
// lookup data, process-wide read-only tables normally loaded once at
// initialization. edgeviewer ships no fitted tables, so it uses
// the identity transform (equivalent to a perfectly diffuse, unskewed
// cosine lobe) and a simple monotonic sphere-integral approximation. This
// is a deliberately crude stand-in: a real integration would load the
// tabulated fits the LTC paper publishes.
type demoLTCTable struct{}

func (demoLTCTable) TabM(rough, cosTheta float64) math3d.Mat3 {
	return math3d.Identity3()
}

func (demoLTCTable) TabSphere(avgDirZ, formFactor float64) float64 {
	return math.Max(avgDirZ, 0) * formFactor
}

// bounds computes the axis-aligned extent of every vertex across shapes,
// used to frame the orbit camera around the loaded mesh.
func bounds(shapes []scene.Shape) (min, max math3d.Vec3) {
	min = math3d.V3(math.Inf(1), math.Inf(1), math.Inf(1))
	max = math3d.V3(math.Inf(-1), math.Inf(-1), math.Inf(-1))
	for _, sh := range shapes {
		for i := range sh.NumVertices() {
			v := sh.Vertex(i)
			min = min.Min(v)
			max = max.Max(v)
		}
	}
	return min, max
}

package secondary

import (
	"math"
	"testing"

	"github.com/taigrr/edgegrad/pkg/edges"
	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

type triShape struct {
	id    int
	verts []math3d.Vec3
	faces [][3]int
}

func (s *triShape) ID() int                  { return s.id }
func (s *triShape) NumVertices() int         { return len(s.verts) }
func (s *triShape) NumFaces() int            { return len(s.faces) }
func (s *triShape) Vertex(i int) math3d.Vec3 { return s.verts[i] }
func (s *triShape) Face(i int) [3]int        { return s.faces[i] }
func (s *triShape) FaceNormal(i int) math3d.Vec3 {
	f := s.faces[i]
	v0, v1, v2 := s.verts[f[0]], s.verts[f[1]], s.verts[f[2]]
	return v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
}
func (s *triShape) MaterialID(faceIdx int) int { return 0 }

type diffuseMaterial struct{}

func (diffuseMaterial) Roughness(sp scene.SurfacePoint) float64 { return 0 }
func (diffuseMaterial) DiffuseReflectance(sp scene.SurfacePoint) math3d.Vec3 {
	return math3d.V3(0.8, 0.8, 0.8)
}
func (diffuseMaterial) SpecularReflectance(sp scene.SurfacePoint) math3d.Vec3 {
	return math3d.Vec3{}
}
func (diffuseMaterial) Bsdf(sp scene.SurfacePoint, wi, wo math3d.Vec3) math3d.Vec3 {
	return math3d.V3(0.8/math.Pi, 0.8/math.Pi, 0.8/math.Pi)
}

type testTable struct{}

func (testTable) TabM(rough, cosTheta float64) math3d.Mat3 { return math3d.Identity3() }
func (testTable) TabSphere(avgDirZ, ff float64) float64 {
	if ff <= 0 || ff >= 1 {
		return 0
	}
	sinSq := math.Min(ff/(1-ff), 1)
	return math.Pi * math.Max(avgDirZ, 0) * (1 - math.Sqrt(1-sinSq)) / ff
}

// occluderScene is a ground triangle (shape 0) with a floating occluder
// triangle (shape 1) above it: shading on the ground sees all three occluder
// boundary edges as silhouettes.
func occluderScene() []scene.Shape {
	ground := &triShape{
		id: 0,
		verts: []math3d.Vec3{
			math3d.V3(-2, -2, 0), math3d.V3(2, -2, 0), math3d.V3(0, 2, 0),
		},
		faces: [][3]int{{0, 1, 2}},
	}
	occluder := &triShape{
		id: 1,
		verts: []math3d.Vec3{
			math3d.V3(-0.5, -0.5, 1), math3d.V3(0.5, -0.5, 1), math3d.V3(0, 0.5, 1),
		},
		faces: [][3]int{{0, 1, 2}},
	}
	return []scene.Shape{ground, occluder}
}

func groundInput(n math3d.Vec3) Input {
	p := math3d.V3(0, 0, 0)
	return Input{
		IncomingRay: scene.Ray{Origin: math3d.V3(0, 0, 3), Dir: math3d.V3(0, 0, -1)},
		Intersection: scene.Intersection{
			Hit:     true,
			ShapeID: 0,
			FaceID:  0,
			SurfacePt: scene.SurfacePoint{
				Position:      p,
				GeomNormal:    n,
				ShadingNormal: n,
				ShadingFrame:  math3d.FrameFromNormal(n),
			},
		},
		Throughput:   math3d.V3(1, 1, 1),
		MinRoughness: 0,
		PixelIndex:   0,
	}
}

func sampleScene(t *testing.T, shapes []scene.Shape, in Input, s Sample) Output {
	t.Helper()
	edgeList, err := edges.Build(shapes)
	if err != nil {
		t.Fatal(err)
	}
	flat := BuildDistribution(shapes, edgeList)
	cam := scene.NewPinholeCamera(math3d.V3(0, 0, 3), 0, 0, 0, math.Pi/2, 1, 16, 16)
	materials := func(materialID int) scene.Material { return diffuseMaterial{} }
	dImage := []float64{1, 1, 1}
	return SampleEdges(shapes, edgeList, flat, nil, materials, testTable{}, cam, []Sample{s}, []Input{in}, dImage, scene.NewRGBChannels())
}

func TestSampleEmitsStraddlingRayPair(t *testing.T) {
	shapes := occluderScene()
	out := sampleScene(t, shapes, groundInput(math3d.V3(0, 0, 1)),
		Sample{EdgeSel: 0.17, ResampleSel: 0.42, T: 0.5, BsdfComponent: 0.3})

	rec := out.Records[0]
	if !rec.Valid() {
		t.Fatal("expected a valid record for a visible occluder silhouette")
	}
	if rec.Edge.ShapeID != 1 {
		t.Fatalf("selected edge from shape %d, want the occluder (1)", rec.Edge.ShapeID)
	}

	up, lo := out.Throughputs[0], out.Throughputs[1]
	if up.LenSq() == 0 {
		t.Fatal("upper throughput is zero")
	}
	if up.Add(lo).LenSq() > 1e-20 {
		t.Fatalf("lower throughput must be the negated upper, got %v and %v", up, lo)
	}

	// The two rays must straddle the half-plane through the edge and the
	// shading point.
	sh := shapes[1]
	v0 := sh.Vertex(rec.Edge.V0)
	v1 := sh.Vertex(rec.Edge.V1)
	p := math3d.V3(0, 0, 0)
	h := v0.Sub(p).Cross(v1.Sub(p)).Normalize()
	s0 := out.Rays[0].Dir.Dot(h)
	s1 := out.Rays[1].Dir.Dot(h)
	if !(s0 > 0 && s1 < 0) {
		t.Fatalf("rays do not straddle the edge half-plane: %v, %v", s0, s1)
	}
}

func TestSampleSkipsHighMinRoughness(t *testing.T) {
	in := groundInput(math3d.V3(0, 0, 1))
	in.MinRoughness = 0.5
	out := sampleScene(t, occluderScene(), in,
		Sample{EdgeSel: 0.17, ResampleSel: 0.42, T: 0.5, BsdfComponent: 0.3})
	if out.Records[0].Valid() {
		t.Fatal("min_roughness above the cutoff must yield an invalid record")
	}
}

func TestSampleAllStrataRejectedYieldsInvalid(t *testing.T) {
	// Shading normal facing away from the occluder: every candidate edge
	// clips away below the tangent plane, so all resampling strata carry
	// zero weight.
	out := sampleScene(t, occluderScene(), groundInput(math3d.V3(0, 0, -1)),
		Sample{EdgeSel: 0.17, ResampleSel: 0.42, T: 0.5, BsdfComponent: 0.3})
	if out.Records[0].Valid() {
		t.Fatal("all-rejected strata must yield an invalid record")
	}
	if (out.Rays[0] != scene.Ray{}) || (out.Rays[1] != scene.Ray{}) {
		t.Fatal("invalid record must carry zero rays")
	}
	if out.Throughputs[0].LenSq() != 0 || out.Throughputs[1].LenSq() != 0 {
		t.Fatal("invalid record must carry zero throughputs")
	}
}

func TestUpdateWeightsAppliesGeometryTerm(t *testing.T) {
	records := []Record{{Edge: edges.Edge{ShapeID: 1}}}
	rays := []scene.Ray{
		{Origin: math3d.V3(0, 0, 0), Dir: math3d.V3(0, 0, 1)},
		{Origin: math3d.V3(0, 0, 0), Dir: math3d.V3(0, 0, 1)},
	}
	hits := []scene.Intersection{
		{
			Hit:      true,
			Distance: 2,
			SurfacePt: scene.SurfacePoint{
				GeomNormal: math3d.V3(0, 0, -1),
			},
		},
		{Hit: false},
	}
	throughputs := []math3d.Vec3{math3d.V3(1, 1, 1), math3d.V3(-1, -1, -1)}
	UpdateWeights(records, rays, hits, throughputs, nil)

	// Hit side: scaled by cos/dist^2 = 1/4. Missed side with no envmap: zeroed.
	if got := throughputs[0].X; math.Abs(got-0.25) > 1e-12 {
		t.Fatalf("hit throughput = %v, want 0.25", got)
	}
	if throughputs[1].LenSq() != 0 {
		t.Fatalf("escaped ray without envmap must be zeroed, got %v", throughputs[1])
	}
}

func TestAccumulateDerivativesCrossProducts(t *testing.T) {
	shapes := occluderScene()
	e := edges.Edge{ShapeID: 1, V0: 0, V1: 1, F0: 0, F1: -1}
	records := []Record{{Edge: e, Point: math3d.V3(0, -0.5, 1)}}
	p := math3d.V3(0, 0, 0)
	x := math3d.V3(0, -1, 2)
	rays := []scene.Ray{{}, {}}
	hits := []scene.Intersection{
		{Hit: true, SurfacePt: scene.SurfacePoint{Position: x}},
		{Hit: false},
	}
	contribs := []float64{2, 0}

	dPoints, dVerts := AccumulateDerivatives(shapes, records, []math3d.Vec3{p}, rays, hits, contribs)
	if len(dPoints) != 1 || len(dVerts) != 2 {
		t.Fatalf("got %d point and %d vertex derivatives, want 1 and 2", len(dPoints), len(dVerts))
	}

	sh := shapes[1]
	d0 := sh.Vertex(e.V0).Sub(p)
	d1 := sh.Vertex(e.V1).Sub(p)
	xp := x.Sub(p)
	wantP := d1.Cross(d0).Add(xp.Cross(d1)).Add(d0.Cross(xp)).Scale(2)
	if dPoints[0].D.Sub(wantP).LenSq() > 1e-18 {
		t.Fatalf("shading-point derivative = %v, want %v", dPoints[0].D, wantP)
	}
	wantV0 := d1.Cross(xp).Scale(2)
	wantV1 := xp.Cross(d0).Scale(2)
	if dVerts[0].D.Sub(wantV0).LenSq() > 1e-18 || dVerts[1].D.Sub(wantV1).LenSq() > 1e-18 {
		t.Fatalf("vertex derivatives = %v, %v; want %v, %v", dVerts[0].D, dVerts[1].D, wantV0, wantV1)
	}
}

package primary

import (
	"math"
	"testing"

	"github.com/taigrr/edgegrad/pkg/distribution"
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

func frontCamera() *scene.PinholeCamera {
	return scene.NewPinholeCamera(math3d.V3(0, 0, 0), 0, 0, 0, math.Pi/2, 1, 64, 64)
}

// octahedron returns the symmetric bipyramid of 8 triangles sharing a square
// equator in the XY plane, apexes on the Z axis, wound outward.
func octahedron() *triShape {
	verts := []math3d.Vec3{
		math3d.V3(0, 0, 1),  // 0 top apex
		math3d.V3(0, 0, -1), // 1 bottom apex
		math3d.V3(1, 0, 0),  // 2 equator
		math3d.V3(0, 1, 0),  // 3
		math3d.V3(-1, 0, 0), // 4
		math3d.V3(0, -1, 0), // 5
	}
	eq := [4]int{2, 3, 4, 5}
	var faces [][3]int
	for i := range 4 {
		a, b := eq[i], eq[(i+1)%4]
		faces = append(faces, [3]int{0, a, b})
	}
	for i := range 4 {
		a, b := eq[i], eq[(i+1)%4]
		faces = append(faces, [3]int{1, b, a})
	}
	return &triShape{id: 0, verts: verts, faces: faces}
}

func TestBuildDistributionSingleVisibleEdge(t *testing.T) {
	// One triangle with one edge fully in front of the camera; the third
	// vertex sits behind the camera plane, so the other two edges fail to
	// project and get zero weight. The surviving edge must take PMF 1.
	tri := &triShape{
		id: 0,
		verts: []math3d.Vec3{
			math3d.V3(-0.5, -0.4, -1),
			math3d.V3(0.5, -0.4, -1),
			math3d.V3(0, 0, 1),
		},
		faces: [][3]int{{0, 1, 2}},
	}
	cam := frontCamera()
	edgeList, err := edges.Build([]scene.Shape{tri})
	if err != nil {
		t.Fatal(err)
	}
	if len(edgeList) != 3 {
		t.Fatalf("got %d edges, want 3", len(edgeList))
	}
	dist := BuildDistribution([]scene.Shape{tri}, edgeList, cam)
	for i, e := range edgeList {
		want := 0.0
		if e.V0 == 0 && e.V1 == 1 {
			want = 1.0
		}
		if math.Abs(dist.PMF[i]-want) > 1e-9 {
			t.Errorf("edge (%d,%d): pmf = %v, want %v", e.V0, e.V1, dist.PMF[i], want)
		}
	}

	// Any edge_sel must come back with the surviving edge.
	samples := []Sample{{EdgeSel: 0, T: 0.5}, {EdgeSel: 0.37, T: 0.1}, {EdgeSel: 0.999, T: 0.9}}
	out := SampleEdges(cam, []scene.Shape{tri}, edgeList, dist, samples, nil, scene.NewRGBChannels())
	for i, r := range out.Records {
		if !r.Valid() {
			t.Fatalf("sample %d: invalid record for a guaranteed-silhouette edge", i)
		}
		if r.Edge.V0 != 0 || r.Edge.V1 != 1 {
			t.Errorf("sample %d: got edge (%d,%d), want (0,1)", i, r.Edge.V0, r.Edge.V1)
		}
	}
}

func TestBuildDistributionOctahedronEquator(t *testing.T) {
	// Viewed down the apex axis, the 4 equatorial edges are the silhouette
	// and share the PMF equally; the 8 apex edges get zero.
	sh := octahedron()
	cam := scene.NewPinholeCamera(math3d.V3(0, 0, 5), 0, 0, 0, math.Pi/2, 1, 64, 64)
	edgeList, err := edges.Build([]scene.Shape{sh})
	if err != nil {
		t.Fatal(err)
	}
	if len(edgeList) != 12 {
		t.Fatalf("got %d edges, want 12", len(edgeList))
	}
	dist := BuildDistribution([]scene.Shape{sh}, edgeList, cam)
	for i, e := range edgeList {
		equatorial := e.V0 >= 2 && e.V1 >= 2
		if equatorial {
			if math.Abs(dist.PMF[i]-0.25) > 1e-6 {
				t.Errorf("equatorial edge (%d,%d): pmf = %v, want 0.25", e.V0, e.V1, dist.PMF[i])
			}
		} else if dist.PMF[i] != 0 {
			t.Errorf("apex edge (%d,%d): pmf = %v, want 0", e.V0, e.V1, dist.PMF[i])
		}
	}
}

func TestFisheyePinholeAgreeAtImageCenter(t *testing.T) {
	// An edge crossing the optical axis: the pinhole screen-space lerp and
	// the fisheye camera-space lerp must agree at the image centre to within
	// 1e-3 angular error on the emitted ray.
	pin := frontCamera()
	fish := scene.NewFisheyeCamera(math3d.V3(0, 0, 0), 0, 0, 0, math.Pi/2, 64, 64)
	v0 := math3d.V3(-1, 0, -2)
	v1 := math3d.V3(1, 0, -2)

	ptPin, ok := samplePinhole(pin, v0, v1, 0.5)
	if !ok {
		t.Fatal("pinhole branch failed")
	}
	ptFish, _, ok := sampleFisheye(fish, v0, v1, 0.5)
	if !ok {
		t.Fatal("fisheye branch failed")
	}

	dirPin := pin.SamplePrimary(ptPin).Dir
	dirFish := fish.SamplePrimary(ptFish).Dir
	cos := math.Min(1, dirPin.Dot(dirFish))
	if angle := math.Acos(cos); angle > 1e-3 {
		t.Fatalf("branch rays diverge by %v rad, want <= 1e-3", angle)
	}
}

func TestFisheyeJacobianFiniteAndPositive(t *testing.T) {
	fish := scene.NewFisheyeCamera(math3d.V3(0, 0, 0), 0, 0, 0, math.Pi/2, 64, 64)
	_, jac, ok := sampleFisheye(fish, math3d.V3(-1, 0.2, -2), math3d.V3(1, 0.3, -2.5), 0.3)
	if !ok {
		t.Fatal("fisheye branch failed")
	}
	if math.IsNaN(jac) || math.IsInf(jac, 0) || jac <= 0 {
		t.Fatalf("jacobian = %v, want finite positive", jac)
	}
}

func TestSampleZeroPMFYieldsInvalidRecord(t *testing.T) {
	tri := &triShape{
		id: 0,
		verts: []math3d.Vec3{
			math3d.V3(0, 0, -1), math3d.V3(1, 0, -1), math3d.V3(0, 1, -1),
		},
		faces: [][3]int{{0, 1, 2}},
	}
	cam := frontCamera()
	edgeList, err := edges.Build([]scene.Shape{tri})
	if err != nil {
		t.Fatal(err)
	}
	dist := distribution.Build([]float64{0, 0, 0})
	out := SampleEdges(cam, []scene.Shape{tri}, edgeList, dist, []Sample{{EdgeSel: 0.5, T: 0.5}}, nil, scene.NewRGBChannels())
	if out.Records[0].Valid() {
		t.Fatal("zero-PMF distribution must yield an invalid record")
	}
	if (out.Rays[0] != scene.Ray{}) || (out.Rays[1] != scene.Ray{}) {
		t.Fatal("invalid record must carry zero rays")
	}
	for side := range 2 {
		for _, m := range out.ChannelMultipliers[side] {
			if m != 0 {
				t.Fatal("invalid record must carry zero channel multipliers")
			}
		}
	}
}

func TestSampleThroughputsAreOpposite(t *testing.T) {
	tri := &triShape{
		id: 0,
		verts: []math3d.Vec3{
			math3d.V3(-0.5, -0.4, -1),
			math3d.V3(0.5, -0.4, -1),
			math3d.V3(0, 0, 1),
		},
		faces: [][3]int{{0, 1, 2}},
	}
	cam := frontCamera()
	edgeList, err := edges.Build([]scene.Shape{tri})
	if err != nil {
		t.Fatal(err)
	}
	dist := BuildDistribution([]scene.Shape{tri}, edgeList, cam)

	dImage := make([]float64, 64*64*3)
	for i := range dImage {
		dImage[i] = 1
	}
	out := SampleEdges(cam, []scene.Shape{tri}, edgeList, dist, []Sample{{EdgeSel: 0.2, T: 0.5}}, dImage, scene.NewRGBChannels())
	if !out.Records[0].Valid() {
		t.Fatal("expected a valid record")
	}
	for c := range 3 {
		up, lo := out.ChannelMultipliers[0][c], out.ChannelMultipliers[1][c]
		if up == 0 {
			t.Fatalf("channel %d: upper multiplier is zero", c)
		}
		if up != -lo {
			t.Fatalf("channel %d: multipliers %v, %v are not opposite", c, up, lo)
		}
	}
	if out.Rays[0].Dir == out.Rays[1].Dir {
		t.Fatal("straddling rays must differ")
	}
	if out.Throughputs[0].Add(out.Throughputs[1]).LenSq() != 0 {
		t.Fatalf("vector throughputs not opposite: %v, %v", out.Throughputs[0], out.Throughputs[1])
	}
	if out.Throughputs[0].LenSq() == 0 {
		t.Fatal("upper vector throughput is zero")
	}
}

package edges

import (
	"testing"

	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// triShape is a minimal scene.Shape over an explicit vertex/face list, used
// across the test suite for small synthetic meshes.
type triShape struct {
	id     int
	verts  []math3d.Vec3
	faces  [][3]int
	matIDs []int
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
func (s *triShape) MaterialID(faceIdx int) int {
	if s.matIDs == nil {
		return 0
	}
	return s.matIDs[faceIdx]
}

func singleTriangle() *triShape {
	return &triShape{
		id: 0,
		verts: []math3d.Vec3{
			math3d.V3(0, 0, 0),
			math3d.V3(1, 0, 0),
			math3d.V3(0, 1, 0),
		},
		faces: [][3]int{{0, 1, 2}},
	}
}

// bipyramid returns 8 triangles sharing a central square equator: 4
// apex-top triangles and 4 apex-bottom triangles.
func bipyramid() *triShape {
	verts := []math3d.Vec3{
		math3d.V3(0, 1, 0),  // 0 top apex
		math3d.V3(0, -1, 0), // 1 bottom apex
		math3d.V3(1, 0, 0),  // 2 equator
		math3d.V3(0, 0, 1),  // 3
		math3d.V3(-1, 0, 0), // 4
		math3d.V3(0, 0, -1), // 5
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

func TestBuildSingleTriangleHasThreeBoundaryEdges(t *testing.T) {
	tri := singleTriangle()
	es, err := Build([]scene.Shape{tri})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(es) != 3 {
		t.Fatalf("got %d edges, want 3", len(es))
	}
	for _, e := range es {
		if !e.Boundary() {
			t.Errorf("edge (%d,%d) should be a boundary edge of a single triangle", e.V0, e.V1)
		}
		if e.V0 >= e.V1 {
			t.Errorf("edge (%d,%d) not canonical (v0 < v1)", e.V0, e.V1)
		}
	}
}

func TestBuildBipyramidHasTwelveEdges(t *testing.T) {
	shape := bipyramid()
	es, err := Build([]scene.Shape{shape})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(es) != 12 {
		t.Fatalf("got %d edges, want 12", len(es))
	}
	boundary := 0
	for _, e := range es {
		if e.Boundary() {
			boundary++
		}
	}
	if boundary != 0 {
		t.Fatalf("closed bipyramid should have no boundary edges, got %d", boundary)
	}
}

func TestBuildRejectsNonManifold(t *testing.T) {
	shape := &triShape{
		id: 0,
		verts: []math3d.Vec3{
			math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(0, 1, 0), math3d.V3(0, -1, 0), math3d.V3(1, -1, 0),
		},
		faces: [][3]int{
			{0, 1, 2},
			{1, 0, 3},
			{0, 1, 4},
		},
	}
	_, err := Build([]scene.Shape{shape})
	if err == nil {
		t.Fatal("expected ErrNonManifoldEdge, got nil")
	}
	var nme *ErrNonManifoldEdge
	if !asErrNonManifold(err, &nme) {
		t.Fatalf("expected *ErrNonManifoldEdge, got %T: %v", err, err)
	}
}

func asErrNonManifold(err error, target **ErrNonManifoldEdge) bool {
	e, ok := err.(*ErrNonManifoldEdge)
	if ok {
		*target = e
	}
	return ok
}

func TestIsSilhouetteBoundaryEdgeAlwaysSilhouette(t *testing.T) {
	shape := singleTriangle()
	es, _ := Build([]scene.Shape{shape})
	q := math3d.V3(0.1, 0.1, 5)
	for _, e := range es {
		if !IsSilhouette(shape, e, q) {
			t.Errorf("boundary edge (%d,%d) should be a silhouette from any point", e.V0, e.V1)
		}
	}
}

func TestIsSilhouetteBipyramidEquatorOnAxis(t *testing.T) {
	shape := bipyramid()
	es, err := Build([]scene.Shape{shape})
	if err != nil {
		t.Fatal(err)
	}
	// Viewed along the apex-to-apex symmetry axis, the 4 equatorial edges
	// form the silhouette outline in equal measure.
	q := math3d.V3(0, 10, 0.001)
	silhouettes := 0
	for _, e := range es {
		if e.V0 == 0 || e.V0 == 1 || e.V1 == 0 || e.V1 == 1 {
			continue // apex edges, not equatorial
		}
		if IsSilhouette(shape, e, q) {
			silhouettes++
		}
	}
	if silhouettes != 4 {
		t.Fatalf("expected 4 equatorial silhouette edges on the symmetry axis, got %d", silhouettes)
	}
}

func TestIsSilhouetteStableForCoplanarFaces(t *testing.T) {
	// Two coplanar triangles sharing an edge: the shared edge must never be
	// a silhouette, and the result must be identical across repeated calls.
	shape := &triShape{
		id: 0,
		verts: []math3d.Vec3{
			math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(1, 1, 0), math3d.V3(0, 1, 0),
		},
		faces: [][3]int{{0, 1, 2}, {0, 2, 3}},
	}
	es, err := Build([]scene.Shape{shape})
	if err != nil {
		t.Fatal(err)
	}
	var shared Edge
	for _, e := range es {
		if !e.Boundary() {
			shared = e
		}
	}
	q := math3d.V3(0.5, 0.5, 5)
	first := IsSilhouette(shape, shared, q)
	for range 100 {
		if IsSilhouette(shape, shared, q) != first {
			t.Fatal("silhouette test is not stable across repeated calls")
		}
	}
	if first {
		t.Fatal("shared edge of two coplanar triangles must not be a silhouette")
	}
}

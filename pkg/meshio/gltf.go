// Package meshio loads glTF/GLB files (github.com/qmuntal/gltf) into
// pkg/scene.Shape values via a manual accessor/buffer-view walk, producing
// one Shape per primitive: edges.Build keeps edges separate per shape, and
// a glTF primitive's material id maps directly onto
// scene.Shape.MaterialID.
package meshio

import (
	"fmt"
	"math"

	"github.com/qmuntal/gltf"

	"github.com/taigrr/edgegrad/pkg/math3d"
	"github.com/taigrr/edgegrad/pkg/scene"
)

// Shape is the concrete scene.Shape backing a single glTF primitive: a flat
// triangle soup with one material id shared by every face (glTF has no
// per-face material, only per-primitive).
type Shape struct {
	id          int
	name        string
	positions   []math3d.Vec3
	faces       [][3]int
	faceNormals []math3d.Vec3
	materialID  int
}

func (s *Shape) ID() int                      { return s.id }
func (s *Shape) NumVertices() int             { return len(s.positions) }
func (s *Shape) NumFaces() int                { return len(s.faces) }
func (s *Shape) Vertex(i int) math3d.Vec3     { return s.positions[i] }
func (s *Shape) Face(i int) [3]int            { return s.faces[i] }
func (s *Shape) FaceNormal(i int) math3d.Vec3 { return s.faceNormals[i] }
func (s *Shape) MaterialID(int) int           { return s.materialID }

// Name returns the glTF mesh name the primitive was extracted from, for
// diagnostics only.
func (s *Shape) Name() string { return s.name }

// Load reads a glTF or GLB file and returns one Shape per triangle
// primitive across every mesh in the document. Buffers must be embedded
// (GLB) or resolved relative to the document by the gltf package itself;
// external-buffer URIs that gltf.Open does not already load are an
// error.
func Load(path string) ([]scene.Shape, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("meshio: open %q: %w", path, err)
	}

	var shapes []scene.Shape
	nextID := 0
	for _, m := range doc.Meshes {
		for _, prim := range m.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
				continue
			}
			sh, err := loadPrimitive(doc, m.Name, prim, nextID)
			if err != nil {
				return nil, fmt.Errorf("meshio: mesh %q: %w", m.Name, err)
			}
			if sh == nil {
				continue
			}
			shapes = append(shapes, sh)
			nextID++
		}
	}
	return shapes, nil
}

func loadPrimitive(doc *gltf.Document, meshName string, prim *gltf.Primitive, id int) (*Shape, error) {
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, nil
	}
	positions, err := readVec3Accessor(doc, posIdx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	var faces [][3]int
	if prim.Indices != nil {
		indices, err := readIndices(doc, *prim.Indices)
		if err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
		for i := 0; i+2 < len(indices); i += 3 {
			faces = append(faces, [3]int{indices[i], indices[i+1], indices[i+2]})
		}
	} else {
		for i := 0; i+2 < len(positions); i += 3 {
			faces = append(faces, [3]int{i, i + 1, i + 2})
		}
	}

	materialID := -1
	if prim.Material != nil {
		materialID = *prim.Material
	}

	sh := &Shape{
		id:         id,
		name:       meshName,
		positions:  positions,
		faces:      faces,
		materialID: materialID,
	}
	sh.faceNormals = make([]math3d.Vec3, len(faces))
	for i, f := range faces {
		v0, v1, v2 := positions[f[0]], positions[f[1]], positions[f[2]]
		sh.faceNormals[i] = v1.Sub(v0).Cross(v2.Sub(v0))
	}
	return sh, nil
}

func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec3 {
		return nil, fmt.Errorf("expected VEC3, got %v", accessor.Type)
	}
	data, err := readAccessorData(doc, accessor)
	if err != nil {
		return nil, err
	}
	floats, ok := data.([][3]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected data type for VEC3")
	}
	result := make([]math3d.Vec3, len(floats))
	for i, f := range floats {
		result[i] = math3d.V3(float64(f[0]), float64(f[1]), float64(f[2]))
	}
	return result, nil
}

func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	accessor := doc.Accessors[accessorIdx]
	data, err := readAccessorData(doc, accessor)
	if err != nil {
		return nil, err
	}
	switch v := data.(type) {
	case []uint8:
		result := make([]int, len(v))
		for i, x := range v {
			result[i] = int(x)
		}
		return result, nil
	case []uint16:
		result := make([]int, len(v))
		for i, x := range v {
			result[i] = int(x)
		}
		return result, nil
	case []uint32:
		result := make([]int, len(v))
		for i, x := range v {
			result[i] = int(x)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unexpected index type: %T", data)
	}
}

func readAccessorData(doc *gltf.Document, accessor *gltf.Accessor) (any, error) {
	if accessor.BufferView == nil {
		return nil, fmt.Errorf("accessor has no buffer view")
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]

	bufData := buffer.Data
	if bufData == nil {
		return nil, fmt.Errorf("buffer has no data (external buffers must be resolved by gltf.Open)")
	}

	start := bufferView.ByteOffset + accessor.ByteOffset
	stride := bufferView.ByteStride
	count := accessor.Count

	switch accessor.Type {
	case gltf.AccessorVec3:
		if stride == 0 {
			stride = 12
		}
		result := make([][3]float32, count)
		for i := range count {
			offset := start + i*stride
			for j := range 3 {
				result[i][j] = readFloat32(bufData[offset+j*4:])
			}
		}
		return result, nil

	case gltf.AccessorScalar:
		if stride == 0 {
			switch accessor.ComponentType {
			case gltf.ComponentUbyte:
				stride = 1
			case gltf.ComponentUshort:
				stride = 2
			case gltf.ComponentUint:
				stride = 4
			}
		}
		switch accessor.ComponentType {
		case gltf.ComponentUbyte:
			result := make([]uint8, count)
			for i := range count {
				result[i] = bufData[start+i*stride]
			}
			return result, nil
		case gltf.ComponentUshort:
			result := make([]uint16, count)
			for i := range count {
				offset := start + i*stride
				result[i] = uint16(bufData[offset]) | uint16(bufData[offset+1])<<8
			}
			return result, nil
		case gltf.ComponentUint:
			result := make([]uint32, count)
			for i := range count {
				offset := start + i*stride
				result[i] = uint32(bufData[offset]) |
					uint32(bufData[offset+1])<<8 |
					uint32(bufData[offset+2])<<16 |
					uint32(bufData[offset+3])<<24
			}
			return result, nil
		}
	}

	return nil, fmt.Errorf("unsupported accessor type: %v / %v", accessor.Type, accessor.ComponentType)
}

func readFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

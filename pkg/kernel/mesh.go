package kernel

import (
	"fmt"
	"math"
	"sort"

	"github.com/chazu/impactmesh/pkg/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ElementType is the shape of a mesh element.
type ElementType int

const (
	Point1 ElementType = iota
	Line2
	Tri3
	Quad4
	Tet4
	Hex8
)

func (t ElementType) String() string {
	switch t {
	case Point1:
		return "point"
	case Line2:
		return "line"
	case Tri3:
		return "triangle"
	case Quad4:
		return "quadrangle"
	case Tet4:
		return "tetrahedron"
	case Hex8:
		return "hexahedron"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// NodeCount returns the number of nodes per element.
func (t ElementType) NodeCount() int {
	return [...]int{1, 2, 3, 4, 4, 8}[t]
}

// Dim returns the topological dimension of the element.
func (t ElementType) Dim() int {
	return [...]int{0, 1, 2, 2, 3, 3}[t]
}

// MSHType returns the gmsh element type code.
func (t ElementType) MSHType() int {
	return [...]int{15, 1, 2, 3, 4, 5}[t]
}

// Element is one mesh cell classified on a geometric entity.
type Element struct {
	Type   ElementType
	Entity geom.Ref
	Nodes  []int // 0-based vertex indices
}

// Mesh is an unstructured mesh. Vertices are flat: 3 floats per vertex.
// NodeEntity classifies each vertex on the lowest dimensional entity it
// lies on, so passes know which nodes may move.
type Mesh struct {
	Vertices   []float64  // [x0,y0,z0, x1,y1,z1, ...]
	NodeEntity []geom.Ref // one per vertex
	Elements   []Element
	Dim        int // dimension requested at generation

	// Geometry is the frozen store the mesh was generated from, if any.
	Geometry *geom.Store
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// ElementCount returns the number of elements.
func (m *Mesh) ElementCount() int {
	return len(m.Elements)
}

// CountByType returns the number of elements of type t.
func (m *Mesh) CountByType(t ElementType) int {
	n := 0
	for _, e := range m.Elements {
		if e.Type == t {
			n++
		}
	}
	return n
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i.
func (m *Mesh) Vertex(i int) r3.Vec {
	return r3.Vec{X: m.Vertices[3*i], Y: m.Vertices[3*i+1], Z: m.Vertices[3*i+2]}
}

// SetVertex moves vertex i to p.
func (m *Mesh) SetVertex(i int, p r3.Vec) {
	m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2] = p.X, p.Y, p.Z
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(p r3.Vec, ent geom.Ref) int {
	m.Vertices = append(m.Vertices, p.X, p.Y, p.Z)
	m.NodeEntity = append(m.NodeEntity, ent)
	return len(m.NodeEntity) - 1
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Vertices:   append([]float64(nil), m.Vertices...),
		NodeEntity: append([]geom.Ref(nil), m.NodeEntity...),
		Elements:   make([]Element, len(m.Elements)),
		Dim:        m.Dim,
		Geometry:   m.Geometry,
	}
	for i, e := range m.Elements {
		c.Elements[i] = Element{Type: e.Type, Entity: e.Entity, Nodes: append([]int(nil), e.Nodes...)}
	}
	return c
}

// BoundingBox returns the axis-aligned box of all vertices.
func (m *Mesh) BoundingBox() r3.Box {
	inf := math.Inf(1)
	b := r3.Box{Min: r3.Vec{X: inf, Y: inf, Z: inf}, Max: r3.Vec{X: -inf, Y: -inf, Z: -inf}}
	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(i)
		b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	}
	return b
}

// HexFaces lists the outward oriented faces of a Hex8 in local numbering:
// -z, +z, -y, +y, +x, -x.
var HexFaces = [6][4]int{
	{0, 3, 2, 1}, {4, 5, 6, 7},
	{0, 1, 5, 4}, {2, 3, 7, 6},
	{1, 2, 6, 5}, {0, 4, 7, 3},
}

// tetFaces lists the outward oriented faces of a Tet4.
var tetFaces = [4][3]int{{0, 2, 1}, {0, 1, 3}, {1, 2, 3}, {0, 3, 2}}

// Triangles returns the outward oriented surface triangles of the mesh:
// the 2D elements split into triangles, or the unshared faces of the 3D
// elements when the mesh has no 2D elements.
func (m *Mesh) Triangles() [][3]int {
	var out [][3]int
	for _, e := range m.Elements {
		switch e.Type {
		case Tri3:
			out = append(out, [3]int{e.Nodes[0], e.Nodes[1], e.Nodes[2]})
		case Quad4:
			out = append(out,
				[3]int{e.Nodes[0], e.Nodes[1], e.Nodes[2]},
				[3]int{e.Nodes[0], e.Nodes[2], e.Nodes[3]})
		}
	}
	if len(out) > 0 {
		return out
	}

	type faceKey [4]int
	key := func(nodes []int) faceKey {
		k := faceKey{-1, -1, -1, -1}
		s := append([]int(nil), nodes...)
		sort.Ints(s)
		copy(k[:], s)
		return k
	}
	count := make(map[faceKey]int)
	var faces [][]int
	for _, e := range m.Elements {
		switch e.Type {
		case Hex8:
			for _, f := range HexFaces {
				nodes := []int{e.Nodes[f[0]], e.Nodes[f[1]], e.Nodes[f[2]], e.Nodes[f[3]]}
				count[key(nodes)]++
				faces = append(faces, nodes)
			}
		case Tet4:
			for _, f := range tetFaces {
				nodes := []int{e.Nodes[f[0]], e.Nodes[f[1]], e.Nodes[f[2]]}
				count[key(nodes)]++
				faces = append(faces, nodes)
			}
		}
	}
	for _, f := range faces {
		if count[key(f)] != 1 {
			continue
		}
		out = append(out, [3]int{f[0], f[1], f[2]})
		if len(f) == 4 {
			out = append(out, [3]int{f[0], f[2], f[3]})
		}
	}
	return out
}

package meshio

import (
	"fmt"
	"io"

	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/hschendel/stl"
	"gonum.org/v1/gonum/spatial/r3"
)

// ToSolid converts the outward boundary triangles of m to an STL solid.
func ToSolid(m *kernel.Mesh, name string) (*stl.Solid, error) {
	tris := m.Triangles()
	if len(tris) == 0 {
		return nil, fmt.Errorf("meshio: mesh has no boundary triangles")
	}
	solid := &stl.Solid{Name: name, IsAscii: true, Triangles: make([]stl.Triangle, 0, len(tris))}
	for _, t := range tris {
		a, b, c := m.Vertex(t[0]), m.Vertex(t[1]), m.Vertex(t[2])
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		solid.Triangles = append(solid.Triangles, stl.Triangle{
			Normal:   vec3(n),
			Vertices: [3]stl.Vec3{vec3(a), vec3(b), vec3(c)},
		})
	}
	return solid, nil
}

// WriteSTL writes the boundary triangles of m as an ASCII STL solid.
func WriteSTL(w io.Writer, m *kernel.Mesh, name string) error {
	solid, err := ToSolid(m, name)
	if err != nil {
		return err
	}
	return solid.WriteAll(w)
}

func vec3(p r3.Vec) stl.Vec3 {
	return stl.Vec3{float32(p.X), float32(p.Y), float32(p.Z)}
}

package meshio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/hschendel/stl"
	"gonum.org/v1/gonum/spatial/r3"
)

// unitHex is one hexahedron with its bottom face and a point element.
func unitHex() *kernel.Mesh {
	m := &kernel.Mesh{Dim: 3}
	for k := 0; k < 2; k++ {
		for _, c := range [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
			m.AddVertex(r3.Vec{X: c[0], Y: c[1], Z: float64(k)}, geom.VolumeRef(1))
		}
	}
	m.Elements = []kernel.Element{
		{Type: kernel.Point1, Entity: geom.PointRef(3), Nodes: []int{0}},
		{Type: kernel.Quad4, Entity: geom.SurfaceRef(2), Nodes: []int{0, 3, 2, 1}},
		{Type: kernel.Hex8, Entity: geom.VolumeRef(1), Nodes: []int{0, 1, 2, 3, 4, 5, 6, 7}},
	}
	return m
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"out/plate.msh", FormatMSH, true},
		{"PLATE.MSH", FormatMSH, true},
		{"cyl.stl", FormatSTL, true},
		{"mesh.vtk", 0, false},
		{"noext", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if (err == nil) != tt.ok || got != tt.want {
				t.Errorf("FormatFromPath(%q) = %v, %v", tt.path, got, err)
			}
		})
	}
}

func TestWriteMSHLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMSH(&buf, unitHex()); err != nil {
		t.Fatalf("WriteMSH: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"$MeshFormat\n2.2 0 8\n$EndMeshFormat\n",
		"$Nodes\n8\n1 0 0 0\n",
		"$Elements\n3\n",
		"1 15 2 0 3 1\n",
		"2 3 2 0 2 1 4 3 2\n",
		"3 5 2 0 1 1 2 3 4 5 6 7 8\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "$EndElements\n") {
		t.Error("output does not end with $EndElements")
	}
}

func TestReadMSHRestoresMesh(t *testing.T) {
	src := unitHex()
	src.SetVertex(6, r3.Vec{X: 1.0 / 3, Y: 1, Z: 1})
	var buf bytes.Buffer
	if err := WriteMSH(&buf, src); err != nil {
		t.Fatalf("WriteMSH: %v", err)
	}
	got, err := ReadMSH(&buf)
	if err != nil {
		t.Fatalf("ReadMSH: %v", err)
	}
	if got.VertexCount() != 8 || got.ElementCount() != 3 || got.Dim != 3 {
		t.Fatalf("read %d vertices, %d elements, dim %d", got.VertexCount(), got.ElementCount(), got.Dim)
	}
	if got.Vertex(6) != src.Vertex(6) {
		t.Errorf("vertex 6 = %v, want %v", got.Vertex(6), src.Vertex(6))
	}
	for i, e := range got.Elements {
		if e.Type != src.Elements[i].Type || e.Entity != src.Elements[i].Entity {
			t.Errorf("element %d = %s on %v", i, e.Type, e.Entity)
		}
	}
}

func TestReadMSHErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"version", "$MeshFormat\n4.1 0 8\n$EndMeshFormat\n"},
		{"short node", "$Nodes\n1\n1 0 0\n$EndNodes\n"},
		{"unknown type", "$Nodes\n1\n1 0 0 0\n$EndNodes\n$Elements\n1\n1 99 2 0 1 1\n$EndElements\n"},
		{"unknown node", "$Nodes\n1\n1 0 0 0\n$EndNodes\n$Elements\n1\n1 15 2 0 1 7\n$EndElements\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadMSH(strings.NewReader(tt.in)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestWriteSTL(t *testing.T) {
	var buf bytes.Buffer
	m := unitHex()
	if err := WriteSTL(&buf, m, "cube"); err != nil {
		t.Fatalf("WriteSTL: %v", err)
	}
	solid, err := stl.ReadAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("stl.ReadAll: %v", err)
	}
	// Only the quadrangle is a 2D element, so it alone is written.
	if len(solid.Triangles) != 2 {
		t.Fatalf("got %d triangles, want 2", len(solid.Triangles))
	}
	if n := solid.Triangles[0].Normal; n[2] > -0.99 {
		t.Errorf("bottom normal = %v, want -z", n)
	}
	if solid.Name != "cube" {
		t.Errorf("solid name = %q", solid.Name)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	m := unitHex()
	for _, name := range []string{"cube.msh", "cube.stl"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, m); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if err := WriteFile(filepath.Join(dir, "cube.obj"), m); err == nil {
		t.Error("expected an error for an unknown extension")
	}
	if err := WriteFile(filepath.Join(dir, "empty.msh"), &kernel.Mesh{}); err == nil {
		t.Error("expected an error for an empty mesh")
	}
}

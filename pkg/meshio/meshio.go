// Package meshio writes generated meshes to disk: gmsh MSH 2.2 ASCII for
// volume and surface meshes, STL for their boundary triangles.
package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/impactmesh/pkg/kernel"
)

// Format is an output file format.
type Format int

const (
	FormatMSH Format = iota
	FormatSTL
)

func (f Format) String() string {
	switch f {
	case FormatMSH:
		return "msh"
	case FormatSTL:
		return "stl"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msh":
		return FormatMSH, nil
	case ".stl":
		return FormatSTL, nil
	}
	return 0, fmt.Errorf("meshio: unsupported output extension %q (want .msh or .stl)", filepath.Ext(path))
}

// WriteFile writes m to path in the format implied by its extension.
func WriteFile(path string, m *kernel.Mesh) error {
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("meshio: refusing to write an empty mesh to %s", path)
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("meshio: %w", err)
	}
	w := bufio.NewWriter(f)
	switch format {
	case FormatSTL:
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		err = WriteSTL(w, m, name)
	default:
		err = WriteMSH(w, m)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("meshio: writing %s: %w", path, err)
	}
	return nil
}

// WriteMSH writes m as a gmsh MSH 2.2 ASCII file. Node and element
// numbers are 1-based; every element carries two tags, the physical group
// (0, none) and the elementary entity tag.
func WriteMSH(w io.Writer, m *kernel.Mesh) error {
	bw := &errWriter{w: w}
	bw.printf("$MeshFormat\n2.2 0 8\n$EndMeshFormat\n")
	bw.printf("$Nodes\n%d\n", m.VertexCount())
	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(i)
		bw.printf("%d %.17g %.17g %.17g\n", i+1, p.X, p.Y, p.Z)
	}
	bw.printf("$EndNodes\n$Elements\n%d\n", m.ElementCount())
	for i, e := range m.Elements {
		bw.printf("%d %d 2 0 %d", i+1, e.Type.MSHType(), int(e.Entity.Tag))
		for _, n := range e.Nodes {
			bw.printf(" %d", n+1)
		}
		bw.printf("\n")
	}
	bw.printf("$EndElements\n")
	return bw.err
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

var mshTypes = map[int]kernel.ElementType{
	15: kernel.Point1,
	1:  kernel.Line2,
	2:  kernel.Tri3,
	3:  kernel.Quad4,
	4:  kernel.Tet4,
	5:  kernel.Hex8,
}

// ReadMSH parses the nodes and elements of a MSH 2.2 ASCII file. Node
// classification is not stored in the format; vertices come back
// unclassified.
func ReadMSH(r io.Reader) (*kernel.Mesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	next := func() ([]string, bool) {
		for sc.Scan() {
			line++
			if f := strings.Fields(sc.Text()); len(f) > 0 {
				return f, true
			}
		}
		return nil, false
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("meshio: line %d: %s", line, fmt.Sprintf(format, args...))
	}

	m := &kernel.Mesh{}
	ids := make(map[int]int)
	for {
		f, ok := next()
		if !ok {
			break
		}
		switch f[0] {
		case "$MeshFormat":
			v, ok := next()
			if !ok || v[0] != "2.2" {
				return nil, fail("unsupported mesh format %v", v)
			}
		case "$Nodes":
			n, err := count(next)
			if err != nil {
				return nil, fail("%v", err)
			}
			for i := 0; i < n; i++ {
				v, ok := next()
				if !ok || len(v) != 4 {
					return nil, fail("malformed node record")
				}
				nums, err := floats(v)
				if err != nil {
					return nil, fail("%v", err)
				}
				ids[int(nums[0])] = m.AddVertex(r3.Vec{X: nums[1], Y: nums[2], Z: nums[3]}, geom.Ref{})
			}
		case "$Elements":
			n, err := count(next)
			if err != nil {
				return nil, fail("%v", err)
			}
			for i := 0; i < n; i++ {
				v, ok := next()
				if !ok || len(v) < 3 {
					return nil, fail("malformed element record")
				}
				e, err := element(v, ids)
				if err != nil {
					return nil, fail("%v", err)
				}
				if d := e.Type.Dim(); d > m.Dim {
					m.Dim = d
				}
				m.Elements = append(m.Elements, e)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("meshio: %w", err)
	}
	return m, nil
}

func count(next func() ([]string, bool)) (int, error) {
	f, ok := next()
	if !ok {
		return 0, fmt.Errorf("missing count")
	}
	return strconv.Atoi(f[0])
}

func floats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func element(f []string, ids map[int]int) (kernel.Element, error) {
	nums := make([]int, len(f))
	for i, s := range f {
		v, err := strconv.Atoi(s)
		if err != nil {
			return kernel.Element{}, err
		}
		nums[i] = v
	}
	typ, ok := mshTypes[nums[1]]
	if !ok {
		return kernel.Element{}, fmt.Errorf("unsupported element type %d", nums[1])
	}
	ntags := nums[2]
	rest := nums[3:]
	if len(rest) != ntags+typ.NodeCount() {
		return kernel.Element{}, fmt.Errorf("element %d: expected %d tags and %d nodes", nums[0], ntags, typ.NodeCount())
	}
	var tag int
	if ntags >= 2 {
		tag = rest[1]
	}
	nodes := make([]int, typ.NodeCount())
	for i, id := range rest[ntags:] {
		idx, ok := ids[id]
		if !ok {
			return kernel.Element{}, fmt.Errorf("element %d references unknown node %d", nums[0], id)
		}
		nodes[i] = idx
	}
	return kernel.Element{
		Type:   typ,
		Entity: geom.Ref{Dim: geom.Dim(typ.Dim()), Tag: geom.Handle(tag)},
		Nodes:  nodes,
	}, nil
}

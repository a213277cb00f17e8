package kernel

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/impactmesh/pkg/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Optimization pass names shared by the meshers.
const (
	PassLaplace2D  = "Laplace2D"
	PassLaplace3D  = "Laplace3D"
	PassRelocate3D = "Relocate3D"
)

// Projector moves a position onto the entity a node is classified on. It
// returns false when it cannot project.
type Projector func(ent geom.Ref, p r3.Vec) (r3.Vec, bool)

// StoreProjector projects onto curves and surfaces of s.
func StoreProjector(s *geom.Store) Projector {
	return func(ent geom.Ref, p r3.Vec) (r3.Vec, bool) {
		if ent.Dim != geom.DimCurve && ent.Dim != geom.DimSurface {
			return p, false
		}
		return s.Closest(ent, p)
	}
}

// CanonicalPass maps a case-insensitive pass name onto its canonical
// spelling. Unknown names are returned unchanged.
func CanonicalPass(name string) string {
	for _, p := range []string{PassLaplace2D, PassLaplace3D, PassRelocate3D} {
		if strings.EqualFold(name, p) {
			return p
		}
	}
	return name
}

// RunPass applies a named pass to m, projecting moved boundary nodes onto
// m.Geometry when it is set. Unknown names return m with a warning.
func RunPass(ctx context.Context, m *Mesh, pass string, niter int) (*Mesh, error) {
	var proj Projector
	if m.Geometry != nil {
		proj = StoreProjector(m.Geometry)
	}
	switch pass {
	case PassLaplace2D:
		return Laplace(ctx, m, pass, geom.DimSurface, niter, proj)
	case PassLaplace3D:
		return Laplace(ctx, m, pass, geom.DimVolume, niter, proj)
	case PassRelocate3D:
		return Snap(ctx, m, pass, proj)
	}
	return m, Warn(pass, "unknown pass")
}

// ----------------------------------------------------------------------------
// Uniform refinement
// ----------------------------------------------------------------------------

// local coordinates of element corners on the doubled lattice.
var (
	quadLocal = [4][3]int{{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0}}
	hexLocal  = [8][3]int{
		{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0},
		{0, 0, 2}, {2, 0, 2}, {2, 2, 2}, {0, 2, 2},
	}
)

type refiner struct {
	src     *Mesh
	dst     *Mesh
	project Projector
	created map[[8]int]int
}

// node returns the vertex at the barycenter of the given source corners,
// creating it on first use. Corners are source vertex indices.
func (r *refiner) node(corners []int, elem geom.Ref) int {
	s := append([]int(nil), corners...)
	sort.Ints(s)
	key := [8]int{-1, -1, -1, -1, -1, -1, -1, -1}
	copy(key[:], s)
	if id, ok := r.created[key]; ok {
		return id
	}
	if len(s) == 1 {
		id := r.dst.AddVertex(r.src.Vertex(s[0]), r.src.NodeEntity[s[0]])
		r.created[key] = id
		return id
	}
	var p r3.Vec
	ents := make([]geom.Ref, len(s))
	for i, c := range s {
		p = r3.Add(p, r.src.Vertex(c))
		ents[i] = r.src.NodeEntity[c]
	}
	p = mean(p, len(s))
	span := r3.Norm(r3.Sub(r.src.Vertex(s[0]), r.src.Vertex(s[len(s)-1])))
	ent := r.classify(ents, elem, p, span)
	if r.project != nil {
		if q, ok := r.project(ent, p); ok {
			p = q
		}
	}
	id := r.dst.AddVertex(p, ent)
	r.created[key] = id
	return id
}

// classify picks the entity of a new node from the entities of the corners
// it was created from: the single highest dimensional corner entity when it
// lies close to the node, otherwise the element's own entity.
func (r *refiner) classify(ents []geom.Ref, elem geom.Ref, p r3.Vec, span float64) geom.Ref {
	hi := ents[0]
	for _, e := range ents[1:] {
		if e.Dim > hi.Dim {
			hi = e
		}
	}
	for _, e := range ents {
		if e.Dim == hi.Dim && e != hi {
			return elem
		}
	}
	if hi.Dim == geom.DimPoint || hi.Dim > elem.Dim {
		return elem
	}
	if r.src.Geometry != nil && (hi.Dim == geom.DimCurve || hi.Dim == geom.DimSurface) {
		if d, ok := r.src.Geometry.Distance(hi, p); ok && d > 0.25*span {
			return elem
		}
	}
	return hi
}

func mean(sum r3.Vec, n int) r3.Vec {
	f := float64(n)
	return r3.Vec{X: sum.X / f, Y: sum.Y / f, Z: sum.Z / f}
}

// RefineUniform splits lines in two, triangles and quadrangles in four
// and hexahedra in eight. New nodes are classified from their parents and
// moved onto their entity by project when it is not nil.
func RefineUniform(ctx context.Context, m *Mesh, project Projector) (*Mesh, error) {
	r := &refiner{
		src:     m,
		dst:     &Mesh{Dim: m.Dim, Geometry: m.Geometry},
		project: project,
		created: make(map[[8]int]int),
	}
	// Keep original vertex numbering for corner nodes.
	for i := 0; i < m.VertexCount(); i++ {
		r.node([]int{i}, m.NodeEntity[i])
	}
	// Lower dimensional elements first so shared nodes take their
	// classification.
	order := make([]int, len(m.Elements))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.Elements[order[a]].Type.Dim() < m.Elements[order[b]].Type.Dim()
	})
	for n, idx := range order {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e := m.Elements[idx]
		switch e.Type {
		case Point1:
			r.emit(Point1, e.Entity, e.Nodes[0])
		case Line2:
			mid := r.node(e.Nodes, e.Entity)
			r.emit(Line2, e.Entity, e.Nodes[0], mid)
			r.emit(Line2, e.Entity, mid, e.Nodes[1])
		case Tri3:
			a, b, c := e.Nodes[0], e.Nodes[1], e.Nodes[2]
			ab := r.node([]int{a, b}, e.Entity)
			bc := r.node([]int{b, c}, e.Entity)
			ca := r.node([]int{c, a}, e.Entity)
			r.emit(Tri3, e.Entity, a, ab, ca)
			r.emit(Tri3, e.Entity, ab, b, bc)
			r.emit(Tri3, e.Entity, ca, bc, c)
			r.emit(Tri3, e.Entity, ab, bc, ca)
		case Quad4:
			at := func(u, v int) int { return r.latticeNode(e, quadLocal[:], []int{u, v}) }
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					r.emit(Quad4, e.Entity, at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1))
				}
			}
		case Hex8:
			at := func(u, v, w int) int { return r.latticeNode(e, hexLocal[:], []int{u, v, w}) }
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					for k := 0; k < 2; k++ {
						r.emit(Hex8, e.Entity,
							at(i, j, k), at(i+1, j, k), at(i+1, j+1, k), at(i, j+1, k),
							at(i, j, k+1), at(i+1, j, k+1), at(i+1, j+1, k+1), at(i, j+1, k+1))
					}
				}
			}
		default:
			return nil, fmt.Errorf("refine: unsupported element %s", e.Type)
		}
	}
	return r.dst, nil
}

// latticeNode returns the node at doubled-lattice position pos of element
// e. It is the barycenter of the corners whose local coordinates agree with
// pos on every axis where pos is even.
func (r *refiner) latticeNode(e Element, local [][3]int, pos []int) int {
	var corners []int
	for ci, lc := range local {
		match := true
		for axis, v := range pos {
			if v != 1 && lc[axis] != v {
				match = false
				break
			}
		}
		if match {
			corners = append(corners, e.Nodes[ci])
		}
	}
	return r.node(corners, e.Entity)
}

func (r *refiner) emit(t ElementType, ent geom.Ref, nodes ...int) {
	r.dst.Elements = append(r.dst.Elements, Element{Type: t, Entity: ent, Nodes: nodes})
}

// ----------------------------------------------------------------------------
// Smoothing and snapping
// ----------------------------------------------------------------------------

// elementEdges lists local edges per element type.
var elementEdges = map[ElementType][][2]int{
	Line2: {{0, 1}},
	Tri3:  {{0, 1}, {1, 2}, {2, 0}},
	Quad4: {{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	Tet4:  {{0, 1}, {1, 2}, {2, 0}, {0, 3}, {1, 3}, {2, 3}},
	Hex8: {
		{0, 1}, {1, 2}, {2, 3}, {3, 0},
		{4, 5}, {5, 6}, {6, 7}, {7, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	},
}

// Laplace moves every node of entity dimension dim to the mean of its
// neighbours across elements of the same dimension, niter times. For
// boundary dimensions only neighbours on the same entity count and the
// result is projected back onto the entity. The returned mesh is validated
// with Accept.
func Laplace(ctx context.Context, m *Mesh, pass string, dim geom.Dim, niter int, project Projector) (*Mesh, error) {
	if niter <= 0 {
		return m, Warn(pass, "no iterations requested")
	}
	out := m.Clone()
	nbrs := make([][]int, out.VertexCount())
	seen := make(map[[2]int]bool)
	for _, e := range out.Elements {
		if geom.Dim(e.Type.Dim()) != dim {
			continue
		}
		for _, ed := range elementEdges[e.Type] {
			a, b := e.Nodes[ed[0]], e.Nodes[ed[1]]
			if a > b {
				a, b = b, a
			}
			if seen[[2]int{a, b}] {
				continue
			}
			seen[[2]int{a, b}] = true
			if dim == geom.DimVolume || out.NodeEntity[a] == e.Entity {
				nbrs[a] = append(nbrs[a], b)
			}
			if dim == geom.DimVolume || out.NodeEntity[b] == e.Entity {
				nbrs[b] = append(nbrs[b], a)
			}
		}
	}
	moved := 0
	next := make([]r3.Vec, out.VertexCount())
	for it := 0; it < niter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range next {
			next[i] = out.Vertex(i)
			if out.NodeEntity[i].Dim != dim || len(nbrs[i]) == 0 {
				continue
			}
			var c r3.Vec
			for _, j := range nbrs[i] {
				c = r3.Add(c, out.Vertex(j))
			}
			p := mean(c, len(nbrs[i]))
			if dim != geom.DimVolume && project != nil {
				if q, ok := project(out.NodeEntity[i], p); ok {
					p = q
				}
			}
			next[i] = p
		}
		for i, p := range next {
			if p != out.Vertex(i) {
				out.SetVertex(i, p)
				moved++
			}
		}
	}
	if moved == 0 {
		return m, Warn(pass, "no movable nodes")
	}
	return Accept(pass, m, out, int(dim))
}

// Snap projects every node classified on a curve or surface onto it.
func Snap(ctx context.Context, m *Mesh, pass string, project Projector) (*Mesh, error) {
	if project == nil {
		return m, Warn(pass, "mesher has no geometry to project onto")
	}
	out := m.Clone()
	moved := 0
	for i := 0; i < out.VertexCount(); i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		p := out.Vertex(i)
		if q, ok := project(out.NodeEntity[i], p); ok && q != p {
			out.SetVertex(i, q)
			moved++
		}
	}
	if moved == 0 {
		return m, Warn(pass, "all nodes already on their entities")
	}
	return Accept(pass, m, out, 3)
}

// Accept returns next when it inverts no element and does not lower the
// mean quality of dimension dim elements; otherwise prev with a warning.
func Accept(pass string, prev, next *Mesh, dim int) (*Mesh, error) {
	for _, e := range next.Elements {
		if e.Type.Dim() >= 2 && next.ScaledJacobian(e) <= 0 {
			return prev, Warn(pass, "pass would invert elements, mesh left unchanged")
		}
	}
	before, after := MeasureQualityOf(prev, dim), MeasureQualityOf(next, dim)
	if after.Elements > 0 && after.Mean < before.Mean-1e-12 {
		return prev, Warn(pass, "mean quality would drop from %.4f to %.4f, mesh left unchanged", before.Mean, after.Mean)
	}
	return next, nil
}
